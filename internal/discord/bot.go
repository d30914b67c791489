// Package discord connects the lavalink node to Discord: it joins voice
// channels through the gateway, forwards the voice handshake to the node and
// exposes a /music slash command.
package discord

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/keshon/lavalink/internal/lavalink"
	applog "github.com/keshon/lavalink/internal/log"
	"github.com/rs/zerolog"
)

type Config struct {
	Token        string
	Shards       int
	SearchPrefix string // prepended to plain search terms, e.g. "ytsearch:"
	Logger       zerolog.Logger
}

// Bot is a Discord bot
type Bot struct {
	cfg      Config
	logger   zerolog.Logger
	sessions []*discordgo.Session
	gateway  *Gateway

	// send posts a plain message to a text channel.
	send func(channelID, content string) error

	mu         sync.RWMutex
	node       *lavalink.Node
	voice      map[string]*voiceHandshake
	announce   map[string]string
	registered map[string]string // guild id -> command hash
}

// New builds one session per shard and registers the event handlers.
// Nothing is opened until Open.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.SearchPrefix == "" {
		cfg.SearchPrefix = "ytsearch:"
	}

	b := &Bot{
		cfg:        cfg,
		logger:     applog.WithComponent(cfg.Logger, "discord"),
		voice:      make(map[string]*voiceHandshake),
		announce:   make(map[string]string),
		registered: make(map[string]string),
	}

	for shard := range cfg.Shards {
		dg, err := discordgo.New("Bot " + cfg.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		dg.ShardID = shard
		dg.ShardCount = cfg.Shards
		dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

		dg.AddHandler(b.onReady)
		dg.AddHandler(b.onGuildCreate)
		dg.AddHandler(b.onVoiceStateUpdate)
		dg.AddHandler(b.onVoiceServerUpdate)
		dg.AddHandler(b.onInteractionCreate)

		b.sessions = append(b.sessions, dg)
	}

	b.gateway = NewGateway(b.sessions)
	b.send = func(channelID, content string) error {
		_, err := b.sessions[0].ChannelMessageSend(channelID, content)
		return err
	}
	return b, nil
}

// Gateway is the voice gateway to hand to the lavalink node.
func (b *Bot) Gateway() *Gateway { return b.gateway }

// Attach sets the node that commands and voice events are routed to.
func (b *Bot) Attach(n *lavalink.Node) {
	b.mu.Lock()
	b.node = n
	b.mu.Unlock()
}

func (b *Bot) currentNode() *lavalink.Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.node
}

// Open connects every shard and returns the bot's own user id, which the
// node needs for its handshake.
func (b *Bot) Open() (string, error) {
	for i, dg := range b.sessions {
		if err := dg.Open(); err != nil {
			for _, opened := range b.sessions[:i] {
				_ = opened.Close()
			}
			return "", fmt.Errorf("failed to open Discord session (shard %d): %w", i, err)
		}
	}
	user := b.sessions[0].State.User
	if user == nil {
		_ = b.Close()
		return "", errors.New("discord: ready event carried no user")
	}
	return user.ID, nil
}

// Close disconnects every shard.
func (b *Bot) Close() error {
	var errs []error
	for _, dg := range b.sessions {
		if err := dg.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sessionFor returns the session of the shard that owns guildID.
func (b *Bot) sessionFor(guildID string) *discordgo.Session {
	return b.sessions[lavalink.ShardForGuild(guildID, len(b.sessions))]
}

// onReady is called when the bot is ready
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	username := ""
	if r.User != nil {
		username = r.User.Username
	}
	b.logger.Info().
		Str("user", username).
		Int("shard", s.ShardID).
		Int("guilds", len(r.Guilds)).
		Msg("discord shard ready")
}

// onGuildCreate registers the slash command for every guild the bot sees.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if s.State.User == nil {
		return
	}
	if err := b.registerCommands(s, s.State.User.ID, g.ID); err != nil {
		b.logger.Error().Err(err).Str("guild_id", g.ID).Msg("failed to register commands")
		return
	}
	b.logger.Debug().Str("guild_id", g.ID).Str("guild", g.Name).Msg("registered commands")
}

// OnTrackEnd announces finished tracks in the channel the track was
// requested from. It runs on the node's receive loop.
func (b *Bot) OnTrackEnd(ev lavalink.TrackEndEvent) {
	if ev.Reason != "FINISHED" && ev.Reason != "LOAD_FAILED" {
		return
	}
	b.mu.RLock()
	channelID := b.announce[ev.GuildID]
	node := b.node
	b.mu.RUnlock()
	if channelID == "" || node == nil {
		return
	}

	title := "track"
	if p, ok := node.Player(ev.GuildID); ok {
		if t, ok := p.Track(); ok && t.Track == ev.Track {
			title = fmt.Sprintf("**%s**", t.Info.Title)
		}
	}
	msg := fmt.Sprintf("🎵 Finished %s", title)
	if ev.Reason == "LOAD_FAILED" {
		msg = fmt.Sprintf("🎵 Could not play %s", title)
	}
	if err := b.send(channelID, msg); err != nil {
		b.logger.Warn().Err(err).Str("guild_id", ev.GuildID).Msg("failed to announce track end")
	}
}

func (b *Bot) setAnnounce(guildID, channelID string) {
	b.mu.Lock()
	b.announce[guildID] = channelID
	b.mu.Unlock()
}
