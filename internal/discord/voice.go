package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/lavalink/internal/lavalink"
)

const voiceForwardTimeout = 5 * time.Second

var ErrNotInVoice = errors.New("user not in any voice channel")

// VoiceState holds minimal voice channel state for a user.
type VoiceState struct {
	ChannelID string
	UserID    string
}

// voiceHandshake collects the two halves the node needs for a voiceUpdate:
// the bot's voice session id and the voice server credentials. Discord sends
// them as separate events in no fixed order.
type voiceHandshake struct {
	sessionID string
	server    *discordgo.VoiceServerUpdate
}

// FindUserVoiceState finds the voice state of a user
func (b *Bot) FindUserVoiceState(guildID, userID string) (*VoiceState, error) {
	guild, err := b.sessionFor(guildID).State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return &VoiceState{
				ChannelID: vs.ChannelID,
				UserID:    vs.UserID,
			}, nil
		}
	}
	return nil, ErrNotInVoice
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || s.State.User == nil || vs.UserID != s.State.User.ID {
		return
	}
	b.handleOwnVoiceState(vs.GuildID, vs.ChannelID, vs.SessionID)
}

func (b *Bot) onVoiceServerUpdate(_ *discordgo.Session, ev *discordgo.VoiceServerUpdate) {
	b.handleVoiceServer(*ev)
}

func (b *Bot) handleOwnVoiceState(guildID, channelID, sessionID string) {
	b.mu.Lock()
	if channelID == "" {
		delete(b.voice, guildID)
		b.mu.Unlock()
		b.logger.Debug().Str("guild_id", guildID).Msg("left voice channel")
		return
	}
	hs := b.handshake(guildID)
	hs.sessionID = sessionID
	server := hs.server
	b.mu.Unlock()

	if server != nil {
		b.forwardVoice(guildID, sessionID, *server)
	}
}

func (b *Bot) handleVoiceServer(ev discordgo.VoiceServerUpdate) {
	b.mu.Lock()
	hs := b.handshake(ev.GuildID)
	hs.server = &ev
	sessionID := hs.sessionID
	b.mu.Unlock()

	if sessionID == "" {
		b.logger.Debug().Str("guild_id", ev.GuildID).Msg("voice server update before session id, holding")
		return
	}
	b.forwardVoice(ev.GuildID, sessionID, ev)
}

// handshake must be called with b.mu held.
func (b *Bot) handshake(guildID string) *voiceHandshake {
	hs, ok := b.voice[guildID]
	if !ok {
		hs = &voiceHandshake{}
		b.voice[guildID] = hs
	}
	return hs
}

func (b *Bot) forwardVoice(guildID, sessionID string, ev discordgo.VoiceServerUpdate) {
	node := b.currentNode()
	if node == nil {
		b.logger.Warn().Str("guild_id", guildID).Msg("voice update with no node attached")
		return
	}

	payload, err := lavalink.Encode(lavalink.VoiceUpdateCommand{
		GuildID:   guildID,
		SessionID: sessionID,
		Event: lavalink.VoiceServerEvent{
			Token:    ev.Token,
			GuildID:  ev.GuildID,
			Endpoint: ev.Endpoint,
		},
	})
	if err != nil {
		b.logger.Error().Err(err).Str("guild_id", guildID).Msg("failed to encode voice update")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), voiceForwardTimeout)
	defer cancel()
	if err := node.GetOrCreatePlayer(guildID).ForwardVoiceServerUpdate(ctx, payload); err != nil {
		b.logger.Warn().Err(err).Str("guild_id", guildID).Msg("failed to forward voice update")
	}
}
