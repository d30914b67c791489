package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/lavalink/internal/lavalink"
)

const (
	commandName    = "music"
	commandTimeout = 15 * time.Second
)

func musicCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Control music playback",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "play",
				Description: "Play a music track",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "input",
						Description: "Link or search query",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop playback and leave the voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pause",
				Description: "Pause playback",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "resume",
				Description: "Resume playback",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "seek",
				Description: "Jump to a position in the current track",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "seconds",
						Description: "Position in seconds",
						Required:    true,
						MinValue:    new(float64),
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "now",
				Description: "Show the current track",
			},
		},
	}
}

// onInteractionCreate is called when an interaction is created
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName {
		return
	}
	if i.GuildID == "" {
		_ = respondEmbed(s, i, reply{Title: "🎵 Error", Description: "This command only works in a server.", Error: true}.embed(), true)
		return
	}
	if len(data.Options) == 0 {
		_ = respondEmbed(s, i, reply{Title: "🎵 Error", Description: "Missing subcommand.", Error: true}.embed(), true)
		return
	}

	sub := data.Options[0]
	userID := interactionUserID(i)
	log := b.logger.With().Str("guild_id", i.GuildID).Str("user_id", userID).Str("sub", sub.Name).Logger()
	log.Info().Msg("music command")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if sub.Name == "play" {
		// Searching and joining can take longer than the interaction deadline.
		if err := respondDeferred(s, i); err != nil {
			log.Error().Err(err).Msg("failed to send deferred response")
			return
		}
		r := b.runPlay(ctx, i.GuildID, i.ChannelID, userID, optionString(sub, "input"))
		if err := followupEmbed(s, i, r.embed(), r.Error); err != nil {
			log.Error().Err(err).Msg("failed to send followup")
		}
		return
	}

	var r reply
	switch sub.Name {
	case "stop":
		r = b.runStop(ctx, i.GuildID)
	case "pause":
		r = b.runPause(ctx, i.GuildID, true)
	case "resume":
		r = b.runPause(ctx, i.GuildID, false)
	case "seek":
		r = b.runSeek(ctx, i.GuildID, optionInt(sub, "seconds"))
	case "now":
		r = b.runNow(i.GuildID)
	default:
		r = reply{Title: "🎵 Error", Description: fmt.Sprintf("Unknown subcommand: %s", sub.Name), Error: true}
	}
	if err := respondEmbed(s, i, r.embed(), r.Error); err != nil {
		log.Error().Err(err).Msg("failed to respond")
	}
}

func (b *Bot) runPlay(ctx context.Context, guildID, channelID, userID, input string) reply {
	input = strings.TrimSpace(input)
	if input == "" {
		return reply{Title: "🎵 Error", Description: "Input is required.", Error: true}
	}
	node := b.currentNode()
	if node == nil {
		return errNodeReply
	}

	vs, err := b.FindUserVoiceState(guildID, userID)
	if err != nil {
		return reply{Title: "🎵 Voice Error", Description: "Join a voice channel first.", Error: true}
	}
	if !b.canJoinVoice(guildID, vs.ChannelID) {
		return reply{Title: "🎵 Voice Error", Description: fmt.Sprintf("I can't connect and speak in <#%s>.", vs.ChannelID), Error: true}
	}

	player := node.GetOrCreatePlayer(guildID)
	res, err := player.Search(ctx, searchQuery(input, b.cfg.SearchPrefix))
	switch {
	case errors.Is(err, lavalink.ErrNoMatch):
		return reply{Title: "🎵 No Matches", Description: fmt.Sprintf("Nothing found for `%s`.", input), Error: true}
	case err != nil:
		b.logger.Warn().Err(err).Str("guild_id", guildID).Str("input", input).Msg("search failed")
		return reply{Title: "🎵 Error", Description: fmt.Sprintf("Failed to resolve track: %v", err), Error: true}
	}

	if err := player.ConnectVoice(ctx, vs.ChannelID, true, false); err != nil {
		return reply{Title: "🎵 Voice Error", Description: fmt.Sprintf("%v", err), Error: true}
	}

	track := res.Primary()
	if err := player.PlayTrack(ctx, track); err != nil {
		return playbackError(err)
	}
	b.setAnnounce(guildID, channelID)

	return reply{
		Title:       "🎵 Now Playing",
		Description: trackLine(track),
		URL:         track.Info.URI,
	}
}

func (b *Bot) runStop(ctx context.Context, guildID string) reply {
	node := b.currentNode()
	if node == nil {
		return errNodeReply
	}
	player := node.GetOrCreatePlayer(guildID)
	if err := player.Stop(ctx); err != nil {
		return playbackError(err)
	}
	if err := player.DisconnectVoice(ctx); err != nil {
		b.logger.Warn().Err(err).Str("guild_id", guildID).Msg("failed to leave voice channel")
	}
	return reply{Title: "🎵 Stopped", Description: "Playback stopped."}
}

func (b *Bot) runPause(ctx context.Context, guildID string, pause bool) reply {
	node := b.currentNode()
	if node == nil {
		return errNodeReply
	}
	player := node.GetOrCreatePlayer(guildID)
	if !player.Playing() {
		return reply{Title: "🎵 Error", Description: "Nothing is playing.", Error: true}
	}
	if err := player.Pause(ctx, pause); err != nil {
		return playbackError(err)
	}
	if pause {
		return reply{Title: "🎵 Paused", Description: "Playback paused."}
	}
	return reply{Title: "🎵 Resumed", Description: "Playback resumed."}
}

func (b *Bot) runSeek(ctx context.Context, guildID string, seconds int64) reply {
	node := b.currentNode()
	if node == nil {
		return errNodeReply
	}
	player := node.GetOrCreatePlayer(guildID)
	if !player.Playing() {
		return reply{Title: "🎵 Error", Description: "Nothing is playing.", Error: true}
	}
	if t, ok := player.Track(); ok && !t.Info.IsSeekable {
		return reply{Title: "🎵 Error", Description: "This track cannot be seeked.", Error: true}
	}
	if err := player.Seek(ctx, seconds*1000); err != nil {
		return playbackError(err)
	}
	return reply{Title: "🎵 Seek", Description: fmt.Sprintf("Jumped to %s.", formatLength(seconds*1000))}
}

func (b *Bot) runNow(guildID string) reply {
	node := b.currentNode()
	if node == nil {
		return errNodeReply
	}
	player := node.GetOrCreatePlayer(guildID)
	t, ok := player.Track()
	if !ok || !player.Playing() {
		return reply{Title: "🎵 Now Playing", Description: "Nothing is playing."}
	}
	desc := trackLine(t)
	if player.Paused() {
		desc += " (paused)"
	}
	return reply{Title: "🎵 Now Playing", Description: desc, URL: t.Info.URI}
}

var errNodeReply = reply{Title: "🎵 Error", Description: "Music node is not ready.", Error: true}

func playbackError(err error) reply {
	if errors.Is(err, lavalink.ErrNotConnected) {
		return reply{Title: "🎵 Error", Description: "Music node is offline, try again shortly.", Error: true}
	}
	return reply{Title: "🎵 Error", Description: fmt.Sprintf("%v", err), Error: true}
}

// searchQuery leaves links alone and prefixes plain terms with the search
// source.
func searchQuery(input, prefix string) string {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return input
	}
	if i := strings.Index(input, ":"); i > 0 && strings.HasSuffix(input[:i], "search") {
		return input
	}
	return prefix + input
}

func trackLine(t lavalink.Track) string {
	line := t.Info.Title
	if t.Info.Author != "" {
		line = fmt.Sprintf("%s by %s", line, t.Info.Author)
	}
	if t.Info.IsStream {
		return line + " [live]"
	}
	return fmt.Sprintf("%s [%s]", line, formatLength(t.Info.Length))
}

// formatLength renders milliseconds as m:ss or h:mm:ss.
func formatLength(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optionString(sub *discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range sub.Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optionInt(sub *discordgo.ApplicationCommandInteractionDataOption, name string) int64 {
	for _, opt := range sub.Options {
		if opt.Name == name {
			return opt.IntValue()
		}
	}
	return 0
}
