package lavalink

import (
	"context"
	"errors"
	"strconv"
	"sync"

	applog "github.com/keshon/lavalink/internal/log"
	"github.com/rs/zerolog"
)

var ErrNoVoiceGateway = errors.New("lavalink: no voice gateway configured")

// Player controls playback for one guild. All of its commands carry its own
// guild id and go through the owning node's send path.
type Player struct {
	guildID string
	node    *Node
	logger  zerolog.Logger

	mu      sync.Mutex
	track   *Track
	current string
	playing bool
	paused  bool
}

func newPlayer(guildID string, node *Node) *Player {
	return &Player{
		guildID: guildID,
		node:    node,
		logger:  applog.WithComponent(node.cfg.Logger, "player").With().Str("node_id", node.id).Str("guild_id", guildID).Logger(),
	}
}

func (p *Player) GuildID() string { return p.guildID }

// ConnectVoice asks the chat gateway to join channelID. This is the only
// player operation that does not talk to the node.
func (p *Player) ConnectVoice(ctx context.Context, channelID string, deaf, mute bool) error {
	gw := p.node.cfg.Voice
	if gw == nil {
		return ErrNoVoiceGateway
	}
	shard := ShardForGuild(p.guildID, p.node.Shards())
	if err := gw.UpdateVoiceState(ctx, shard, p.guildID, channelID, mute, deaf); err != nil {
		return err
	}
	p.logger.Info().Str("channel_id", channelID).Int("shard", shard).Bool("deaf", deaf).Bool("mute", mute).Msg("joined voice channel")
	return nil
}

// DisconnectVoice leaves whatever voice channel the bot is in for the guild.
func (p *Player) DisconnectVoice(ctx context.Context) error {
	gw := p.node.cfg.Voice
	if gw == nil {
		return ErrNoVoiceGateway
	}
	return gw.UpdateVoiceState(ctx, ShardForGuild(p.guildID, p.node.Shards()), p.guildID, "", false, false)
}

// Play starts track on the node, replacing anything already playing.
func (p *Player) Play(ctx context.Context, track string) error {
	if track == "" {
		return ErrNoTrack
	}
	if err := p.node.Send(ctx, PlayCommand{Track: track, GuildID: p.guildID}); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = track
	p.playing = true
	p.paused = false
	p.mu.Unlock()
	p.logger.Info().Msg("playback started")
	return nil
}

// PlayTrack plays a resolved track and keeps it as the current snapshot.
func (p *Player) PlayTrack(ctx context.Context, t Track) error {
	if err := p.Play(ctx, t.Track); err != nil {
		return err
	}
	p.mu.Lock()
	p.track = &t
	p.mu.Unlock()
	return nil
}

func (p *Player) Stop(ctx context.Context) error {
	if err := p.node.Send(ctx, StopCommand{GuildID: p.guildID}); err != nil {
		return err
	}
	p.mu.Lock()
	p.playing = false
	p.paused = false
	p.mu.Unlock()
	p.logger.Info().Msg("playback stopped")
	return nil
}

// Pause pauses playback when pause is true and resumes it otherwise.
func (p *Player) Pause(ctx context.Context, pause bool) error {
	if err := p.node.Send(ctx, PauseCommand{GuildID: p.guildID, Pause: pause}); err != nil {
		return err
	}
	p.mu.Lock()
	p.paused = pause
	p.mu.Unlock()
	if pause {
		p.logger.Info().Msg("playback paused")
	} else {
		p.logger.Info().Msg("playback resumed")
	}
	return nil
}

// Seek moves the playhead to position milliseconds.
func (p *Player) Seek(ctx context.Context, position int64) error {
	return p.node.Send(ctx, SeekCommand{GuildID: p.guildID, Position: strconv.FormatInt(position, 10)})
}

// ForwardVoiceServerUpdate passes a voice server handshake payload to the
// node verbatim.
func (p *Player) ForwardVoiceServerUpdate(ctx context.Context, payload []byte) error {
	if err := p.node.SendRaw(ctx, payload); err != nil {
		return err
	}
	p.logger.Debug().Msg("sent voice server update")
	return nil
}

// ForwardVoiceStateUpdate passes a voice state payload to the node verbatim.
func (p *Player) ForwardVoiceStateUpdate(ctx context.Context, payload []byte) error {
	if err := p.node.SendRaw(ctx, payload); err != nil {
		return err
	}
	p.logger.Debug().Msg("sent voice state update")
	return nil
}

// Search resolves query through the node and remembers the primary result.
// A NoMatch outcome leaves the snapshot untouched.
func (p *Player) Search(ctx context.Context, query string) (*SearchResult, error) {
	res, err := p.node.Resolver().Search(ctx, query)
	if err != nil {
		return nil, err
	}
	primary := res.Primary()
	p.mu.Lock()
	p.track = &primary
	p.mu.Unlock()
	return res, nil
}

// Track returns the last resolved or played track.
func (p *Player) Track() (Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return Track{}, false
	}
	return *p.track, true
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) trackEnded(ev TrackEndEvent) {
	// A replaced track ends after its successor started, possibly with the
	// same handle.
	if ev.Reason == "REPLACED" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" && p.current != ev.Track {
		return
	}
	p.playing = false
	p.paused = false
}

// ShardForGuild returns the gateway shard responsible for guildID. Invalid
// snowflakes map to shard 0.
func ShardForGuild(guildID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	id, err := strconv.ParseUint(guildID, 10, 64)
	if err != nil {
		return 0
	}
	return int((id >> 22) % uint64(shards))
}
