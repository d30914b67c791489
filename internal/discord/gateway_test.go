package discord

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type joinCall struct {
	guildID, channelID string
	mute, deaf         bool
}

type fakeJoiner struct {
	mu    sync.Mutex
	calls []joinCall
	err   error
}

func (f *fakeJoiner) ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, joinCall{gID, cID, mute, deaf})
	return f.err
}

func (f *fakeJoiner) joins() []joinCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]joinCall(nil), f.calls...)
}

func TestGatewayRoutesByShard(t *testing.T) {
	a, b := &fakeJoiner{}, &fakeJoiner{}
	g := &Gateway{shards: []voiceJoiner{a, b}}

	require.NoError(t, g.UpdateVoiceState(context.Background(), 1, "123", "456", false, true))
	assert.Empty(t, a.joins())
	assert.Equal(t, []joinCall{{"123", "456", false, true}}, b.joins())
}

func TestGatewayUnknownShard(t *testing.T) {
	g := &Gateway{shards: []voiceJoiner{&fakeJoiner{}}}
	assert.ErrorContains(t, g.UpdateVoiceState(context.Background(), 3, "1", "2", false, false), "no session for shard 3")
	assert.Error(t, g.UpdateVoiceState(context.Background(), -1, "1", "2", false, false))
}

func TestGatewayWrapsErrors(t *testing.T) {
	boom := errors.New("websocket closed")
	g := &Gateway{shards: []voiceJoiner{&fakeJoiner{err: boom}}}
	assert.ErrorIs(t, g.UpdateVoiceState(context.Background(), 0, "1", "2", false, false), boom)
}

func TestGatewayCancelledContext(t *testing.T) {
	j := &fakeJoiner{}
	g := &Gateway{shards: []voiceJoiner{j}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, g.UpdateVoiceState(ctx, 0, "1", "2", false, false), context.Canceled)
	assert.Empty(t, j.joins())
}
