package lavalink

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected = errors.New("lavalink: node is not connected")
	ErrDecode       = errors.New("lavalink: frame does not match its discriminator")
	ErrTransport    = errors.New("lavalink: transport failure")
	ErrNoMatch      = errors.New("lavalink: no matches")
	ErrLoadFailed   = errors.New("lavalink: node failed to load track")
	ErrNoTrack      = errors.New("lavalink: empty track handle")
	ErrClosed       = errors.New("lavalink: channel closed")
)

// DecodeError reports a frame or response body that could not be decoded
// into the shape its discriminator implies.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("lavalink: decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// TransportError wraps failures of the websocket or HTTP transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lavalink: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// StatusError is returned when the REST endpoint answers with a non-2xx code.
// It satisfies retrylimit.HTTPError so 429 and 5xx answers are retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lavalink: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("lavalink: unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }
