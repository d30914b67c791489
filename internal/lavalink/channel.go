package lavalink

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

// Frame is one message on the duplex channel.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Channel is the duplex message channel to a node. Receive blocks until a
// frame arrives or the channel fails; after Close it must return an error.
type Channel interface {
	Send(ctx context.Context, f Frame) error
	Receive(ctx context.Context) (Frame, error)
	Close() error
}

// Dialer opens a Channel to url with the given handshake headers.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Channel, error)
}

// WebsocketDialer dials nodes with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Channel, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsChannel{conn: conn}, nil
}

// wsChannel serialises writers since gorilla allows one concurrent writer.
type wsChannel struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsChannel) Send(ctx context.Context, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	kind := websocket.TextMessage
	if f.Kind == FrameBinary {
		kind = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(kind, f.Data)
}

func (c *wsChannel) Receive(_ context.Context) (Frame, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Frame{}, ErrClosed
		}
		return Frame{}, err
	}
	if kind == websocket.BinaryMessage {
		return Frame{Kind: FrameBinary, Data: data}, nil
	}
	return Frame{Kind: FrameText, Data: data}, nil
}

// Close sends a close frame best-effort and tears down the socket, which
// unblocks a pending Receive.
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
