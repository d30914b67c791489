package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
)

type commandCreator interface {
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
}

// registerCommands creates the /music command in a guild. GuildCreate fires
// again after every gateway resume, so a definition already registered by
// this process is skipped.
func (b *Bot) registerCommands(s commandCreator, appID, guildID string) error {
	def := musicCommand()
	h := hashCommand(def)

	b.mu.RLock()
	done := b.registered[guildID] == h
	b.mu.RUnlock()
	if done {
		return nil
	}

	if _, err := s.ApplicationCommandCreate(appID, guildID, def); err != nil {
		return fmt.Errorf("register %s: %w", def.Name, err)
	}
	b.mu.Lock()
	b.registered[guildID] = h
	b.mu.Unlock()
	return nil
}

// hashCommand is a stable digest of a command's user-visible definition.
func hashCommand(cmd *discordgo.ApplicationCommand) string {
	data, _ := json.Marshal(map[string]any{
		"name":        cmd.Name,
		"description": cmd.Description,
		"type":        cmd.Type,
		"options":     normalizeOptions(cmd.Options),
	})
	return fmt.Sprintf("%x", sha1.Sum(data))
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]any {
	out := make([]map[string]any, 0, len(opts))
	for _, o := range opts {
		entry := map[string]any{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if o.MinValue != nil {
			entry["min"] = *o.MinValue
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
