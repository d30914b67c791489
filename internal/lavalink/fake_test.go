package lavalink

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeChannel is an in-memory Channel. Frames pushed with push are returned
// by Receive in order; fail makes the next Receive return a transport error.
type fakeChannel struct {
	in   chan Frame
	errs chan error

	mu      sync.Mutex
	sent    []Frame
	sendErr error

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan Frame, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Send(_ context.Context, f Frame) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case err := <-c.errs:
		return Frame{}, err
	case <-c.closed:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) push(s string) {
	c.in <- Frame{Kind: FrameText, Data: []byte(s)}
}

func (c *fakeChannel) fail(err error) {
	c.errs <- err
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeChannel) sentFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.sent))
	copy(out, c.sent)
	return out
}

type dialCall struct {
	url    string
	header http.Header
}

// fakeDialer hands out a fresh fakeChannel per Dial, or err when set.
type fakeDialer struct {
	mu       sync.Mutex
	calls    []dialCall
	channels []*fakeChannel
	err      error
}

func (d *fakeDialer) Dial(_ context.Context, url string, header http.Header) (Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dialCall{url: url, header: header})
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type stateChange struct {
	from, to State
	err      error
}

type voiceCall struct {
	shard              int
	guildID, channelID string
	mute, deaf         bool
}

type fakeVoice struct {
	mu    sync.Mutex
	calls []voiceCall
}

func (v *fakeVoice) UpdateVoiceState(_ context.Context, shardID int, guildID, channelID string, mute, deaf bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, voiceCall{shardID, guildID, channelID, mute, deaf})
	return nil
}

type testNode struct {
	*Node
	dialer *fakeDialer
	voice  *fakeVoice
	ends   chan TrackEndEvent
	states chan stateChange
}

func testConfig() Config {
	return Config{
		Host:     "localhost",
		Port:     2333,
		Password: "youshallnotpass",
		UserID:   "170939974227591168",
		Shards:   1,
		Logger:   zerolog.Nop(),
	}
}

func newTestNode(t *testing.T, mutate ...func(*Config)) *testNode {
	t.Helper()
	tn := &testNode{
		dialer: &fakeDialer{},
		voice:  &fakeVoice{},
		ends:   make(chan TrackEndEvent, 16),
		states: make(chan stateChange, 32),
	}
	cfg := testConfig()
	cfg.Dialer = tn.dialer
	cfg.Voice = tn.voice
	cfg.Registerer = prometheus.NewRegistry()
	cfg.OnTrackEnd = func(ev TrackEndEvent) { tn.ends <- ev }
	cfg.OnStateChange = func(from, to State, err error) { tn.states <- stateChange{from, to, err} }
	for _, m := range mutate {
		m(&cfg)
	}
	n, err := NewNode(cfg)
	require.NoError(t, err)
	tn.Node = n
	t.Cleanup(n.Destroy)
	return tn
}

func (tn *testNode) connect(t *testing.T) *fakeChannel {
	t.Helper()
	require.NoError(t, tn.Connect(context.Background()))
	ch := tn.dialer.last()
	require.NotNil(t, ch)
	return ch
}
