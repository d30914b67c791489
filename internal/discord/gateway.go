package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// voiceJoiner is the part of *discordgo.Session the gateway needs.
type voiceJoiner interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
}

// Gateway sends voice state updates on the shard that owns a guild. It
// implements lavalink.VoiceGateway; audio itself is handled by the node.
type Gateway struct {
	shards []voiceJoiner
}

// NewGateway wraps one session per shard, indexed by shard id.
func NewGateway(sessions []*discordgo.Session) *Gateway {
	shards := make([]voiceJoiner, len(sessions))
	for i, s := range sessions {
		shards[i] = s
	}
	return &Gateway{shards: shards}
}

func (g *Gateway) UpdateVoiceState(ctx context.Context, shardID int, guildID, channelID string, mute, deaf bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if shardID < 0 || shardID >= len(g.shards) {
		return fmt.Errorf("discord: no session for shard %d (have %d)", shardID, len(g.shards))
	}
	if err := g.shards[shardID].ChannelVoiceJoinManual(guildID, channelID, mute, deaf); err != nil {
		return fmt.Errorf("discord: voice state update: %w", err)
	}
	return nil
}
