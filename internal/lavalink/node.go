// Package lavalink is a control-plane client for a Lavalink audio node. A
// Node owns one websocket to the node and multiplexes per-guild Players over
// it; a Resolver looks tracks up through the node's REST endpoint.
package lavalink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	applog "github.com/keshon/lavalink/internal/log"
	"github.com/keshon/lavalink/pkg/jobmgr"
	"github.com/keshon/lavalink/pkg/retrylimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultClientName = "lavalink-go"
	receiveJob        = "receive"
)

var errConnectInProgress = errors.New("lavalink: connect already in progress")

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// VoiceGateway carries voice state updates to the chat gateway shard that
// owns the guild. An empty channelID leaves voice.
type VoiceGateway interface {
	UpdateVoiceState(ctx context.Context, shardID int, guildID, channelID string, mute, deaf bool) error
}

type Config struct {
	Host       string
	Port       int
	Password   string
	UserID     string
	Shards     int
	ClientName string

	Dialer         Dialer
	Voice          VoiceGateway
	Resolver       *Resolver
	ConnectTimeout time.Duration
	Reconnect      retrylimit.RetryConfig

	// Used only when Resolver is nil.
	SearchTimeout time.Duration
	SearchLimiter *retrylimit.AdaptiveLimiter

	Logger     zerolog.Logger
	Registerer prometheus.Registerer

	// OnTrackEnd and OnStateChange may run on the receive loop goroutine
	// and must not call Connect or Destroy synchronously.
	OnTrackEnd    func(TrackEndEvent)
	OnStateChange func(from, to State, err error)
}

func (c Config) validate() error {
	switch {
	case c.Host == "":
		return errors.New("lavalink: host is required")
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("lavalink: invalid port %d", c.Port)
	case c.Shards < 1:
		return fmt.Errorf("lavalink: invalid shard count %d", c.Shards)
	case c.UserID == "":
		return errors.New("lavalink: user id is required")
	}
	return nil
}

// Snapshot is the last inbound frame the node sent, kept for observability.
type Snapshot struct {
	Probe Probe
	Class Class
	At    time.Time
	Raw   []byte
}

// Node is one connection to a Lavalink node.
type Node struct {
	id     string
	cfg    Config
	addr   string
	header http.Header

	logger   zerolog.Logger
	metrics  *Metrics
	jobs     *jobmgr.Manager
	resolver *Resolver

	mu    sync.Mutex
	state State
	ch    Channel
	gen   uint64
	last  *Snapshot

	playersMu sync.RWMutex
	players   map[string]*Player
}

// NewNode validates cfg and builds an idle node. Nothing is dialed until
// Connect.
func NewNode(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}

	id := uuid.NewString()
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	logger := applog.WithComponent(cfg.Logger, "node").With().Str("node_id", id).Str("addr", addr).Logger()
	metrics := NewMetrics(cfg.Registerer)

	n := &Node{
		id:      id,
		cfg:     cfg,
		addr:    addr,
		logger:  logger,
		metrics: metrics,
		players: make(map[string]*Player),
		header: http.Header{
			"Authorization": {cfg.Password},
			"Num-Shards":    {strconv.Itoa(cfg.Shards)},
			"User-Id":       {cfg.UserID},
			"Client-Name":   {cfg.ClientName},
		},
	}
	n.jobs = jobmgr.NewManager(func(name string, s jobmgr.Status, err error) {
		logger.Debug().Str("job", name).Str("status", string(s)).Err(err).Msg("job status")
	})

	n.resolver = cfg.Resolver
	if n.resolver == nil {
		n.resolver = NewResolver(ResolverConfig{
			BaseURL:  "http://" + addr,
			Password: cfg.Password,
			Limiter:  cfg.SearchLimiter,
			Timeout:  cfg.SearchTimeout,
			Logger:   cfg.Logger,
			Metrics:  metrics,
		})
	}
	metrics.state.WithLabelValues(addr).Set(float64(StateIdle))
	return n, nil
}

func (n *Node) ID() string          { return n.id }
func (n *Node) Addr() string        { return n.addr }
func (n *Node) Shards() int         { return n.cfg.Shards }
func (n *Node) Resolver() *Resolver { return n.resolver }
func (n *Node) URL() string         { return "ws://" + n.addr + "/" }

func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Connect opens the channel and starts the receive loop. Connecting while
// already connected closes the previous channel first.
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateConnecting {
		n.mu.Unlock()
		return errConnectInProgress
	}
	prev := n.state
	old := n.ch
	n.ch = nil
	n.gen++
	gen := n.gen
	n.setState(StateConnecting)
	n.mu.Unlock()
	n.notify(prev, StateConnecting, nil)

	if old != nil {
		n.logger.Warn().Msg("replacing open channel")
		if err := old.Close(); err != nil {
			n.logger.Debug().Err(err).Msg("close previous channel")
		}
	}
	_ = n.jobs.Stop(receiveJob)

	dialCtx := ctx
	if n.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, n.cfg.ConnectTimeout)
		defer cancel()
	}
	ch, err := n.cfg.Dialer.Dial(dialCtx, n.URL(), n.header.Clone())
	if err != nil {
		terr := &TransportError{Op: "connect", Err: err}
		n.mu.Lock()
		superseded := n.gen != gen
		if !superseded {
			n.setState(StateIdle)
		}
		n.mu.Unlock()
		if !superseded {
			n.notify(StateConnecting, StateIdle, terr)
		}
		n.logger.Error().Err(err).Msg("failed to connect to node")
		return terr
	}

	n.mu.Lock()
	if n.gen != gen {
		n.mu.Unlock()
		_ = ch.Close()
		return ErrClosed
	}
	n.ch = ch
	n.setState(StateConnected)
	n.mu.Unlock()

	if err := n.jobs.StartAsync(context.Background(), receiveJob, func(ctx context.Context) error {
		return n.receiveLoop(ctx, ch, gen)
	}); err != nil {
		// Only reachable if a stale loop survived Stop above.
		n.logger.Error().Err(err).Msg("receive loop not started")
	}

	n.logger.Info().Msg("connected to node")
	n.notify(StateConnecting, StateConnected, nil)
	return nil
}

// ConnectWithRetry calls Connect until it succeeds or cfg.Reconnect gives up.
func (n *Node) ConnectWithRetry(ctx context.Context) error {
	retry := n.cfg.Reconnect
	if retry.MaxAttempts == 0 {
		retry = retrylimit.DefaultRetryConfig()
		retry.MaxAttempts = 5
	}
	retry.Logger = n.logger
	return retrylimit.WithRetryConfig(ctx, func() error {
		err := n.Connect(ctx)
		if errors.Is(err, errConnectInProgress) || errors.Is(err, ErrClosed) {
			return retrylimit.Fatal(err)
		}
		return err
	}, nil, retry)
}

// Destroy closes the channel and waits for the receive loop to exit. It is
// a no-op on an idle or already closing node.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.state == StateIdle || n.state == StateClosing {
		n.mu.Unlock()
		return
	}
	prev := n.state
	ch := n.ch
	n.ch = nil
	n.gen++
	n.setState(StateClosing)
	n.mu.Unlock()
	n.notify(prev, StateClosing, nil)

	n.logger.Warn().Msg("destroying node connection")
	if ch != nil {
		if err := ch.Close(); err != nil {
			n.logger.Debug().Err(err).Msg("close channel")
		}
	}
	_ = n.jobs.Stop(receiveJob)

	n.mu.Lock()
	done := n.state == StateClosing
	if done {
		n.setState(StateIdle)
	}
	n.mu.Unlock()
	if done {
		n.notify(StateClosing, StateIdle, nil)
	}
}

// Send encodes cmd and writes it to the channel. There is no queue: the
// frame goes straight to the transport or the call fails.
func (n *Node) Send(ctx context.Context, cmd Command) error {
	b, err := Encode(cmd)
	if err != nil {
		return err
	}
	return n.send(ctx, string(cmd.Op()), b)
}

// SendRaw writes an already encoded text frame, such as a voice handshake
// payload relayed from the chat gateway.
func (n *Node) SendRaw(ctx context.Context, payload []byte) error {
	return n.send(ctx, "raw", payload)
}

func (n *Node) send(ctx context.Context, op string, payload []byte) error {
	n.mu.Lock()
	ch := n.ch
	connected := n.state == StateConnected
	n.mu.Unlock()
	if !connected || ch == nil {
		return ErrNotConnected
	}

	if err := ch.Send(ctx, Frame{Kind: FrameText, Data: payload}); err != nil {
		return &TransportError{Op: "send " + op, Err: err}
	}
	n.metrics.framesSent.WithLabelValues(n.addr, op).Inc()
	n.logger.Debug().Str("op", op).Int("bytes", len(payload)).Msg("sent frame")
	return nil
}

// GetOrCreatePlayer returns the player for guildID, creating it on first use.
func (n *Node) GetOrCreatePlayer(guildID string) *Player {
	n.playersMu.RLock()
	p, ok := n.players[guildID]
	n.playersMu.RUnlock()
	if ok {
		return p
	}

	n.playersMu.Lock()
	defer n.playersMu.Unlock()
	if p, ok := n.players[guildID]; ok {
		return p
	}
	p = newPlayer(guildID, n)
	n.players[guildID] = p
	return p
}

// Player returns the player for guildID without creating one.
func (n *Node) Player(guildID string) (*Player, bool) {
	n.playersMu.RLock()
	defer n.playersMu.RUnlock()
	p, ok := n.players[guildID]
	return p, ok
}

// Players lists the guilds that have a player. Players are never evicted.
func (n *Node) Players() []string {
	n.playersMu.RLock()
	defer n.playersMu.RUnlock()
	out := make([]string, 0, len(n.players))
	for k := range n.players {
		out = append(out, k)
	}
	return out
}

// LastEvent returns the most recent successfully probed inbound frame.
func (n *Node) LastEvent() (Snapshot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return Snapshot{}, false
	}
	return *n.last, true
}

// receiveLoop reads frames strictly in order until the channel fails or the
// job is stopped. It never re-enters after a transport error.
func (n *Node) receiveLoop(ctx context.Context, ch Channel, gen uint64) error {
	for {
		f, err := ch.Receive(ctx)
		if err != nil {
			return n.channelLost(ch, gen, err)
		}
		n.handleFrame(f)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// channelLost moves the node to idle unless a Destroy or reconnect already
// replaced the channel this loop was reading.
func (n *Node) channelLost(ch Channel, gen uint64, cause error) error {
	n.mu.Lock()
	if n.gen != gen {
		n.mu.Unlock()
		return nil
	}
	prev := n.state
	n.ch = nil
	n.setState(StateIdle)
	n.mu.Unlock()

	_ = ch.Close()
	terr := &TransportError{Op: "receive", Err: cause}
	n.logger.Error().Err(cause).Msg("node channel lost")
	n.notify(prev, StateIdle, terr)
	return terr
}

func (n *Node) handleFrame(f Frame) {
	if f.Kind == FrameBinary {
		n.metrics.framesReceived.WithLabelValues(n.addr, "binary").Inc()
		n.logger.Debug().Int("bytes", len(f.Data)).Msg("ignoring binary frame")
		return
	}

	probe, err := ProbeFrame(f.Data)
	if err != nil {
		n.metrics.decodeFailures.WithLabelValues(n.addr, "probe").Inc()
		n.logger.Warn().Err(err).Bytes("frame", f.Data).Msg("dropping undecodable frame")
		return
	}
	class := Classify(probe)
	n.metrics.framesReceived.WithLabelValues(n.addr, class.String()).Inc()

	n.mu.Lock()
	n.last = &Snapshot{Probe: probe, Class: class, At: time.Now(), Raw: f.Data}
	n.mu.Unlock()

	if !class.Deliver() {
		n.logger.Trace().Str("op", string(probe.Op)).Str("class", class.String()).Msg("dropped frame")
		return
	}

	ev, err := DecodeTrackEnd(f.Data)
	if err != nil {
		n.metrics.decodeFailures.WithLabelValues(n.addr, "track_end").Inc()
		n.logger.Warn().Err(err).Bytes("frame", f.Data).Msg("dropping malformed track end")
		return
	}
	if p, ok := n.Player(ev.GuildID); ok {
		p.trackEnded(ev)
	}
	n.logger.Debug().Str("guild_id", ev.GuildID).Str("reason", ev.Reason).Msg("track ended")
	if n.cfg.OnTrackEnd != nil {
		n.cfg.OnTrackEnd(ev)
	}
}

// setState must be called with n.mu held.
func (n *Node) setState(s State) {
	n.state = s
	n.metrics.state.WithLabelValues(n.addr).Set(float64(s))
}

func (n *Node) notify(from, to State, err error) {
	if n.cfg.OnStateChange != nil {
		n.cfg.OnStateChange(from, to, err)
	}
}
