package lavalink

import (
	"encoding/json"
	"fmt"
)

// Probe holds only the discriminator fields of an inbound frame. It is
// decoded first so the dispatcher can decide whether the strict decode of
// the full body is worth attempting.
type Probe struct {
	Op     Op
	Type   string
	Reason string
}

// ProbeFrame runs the first, lenient decode pass. Only "op" is required.
func ProbeFrame(b []byte) (Probe, error) {
	var raw struct {
		Op     *string `json:"op"`
		Type   *string `json:"type"`
		Reason *string `json:"reason"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Probe{}, &DecodeError{Op: "probe", Err: err}
	}
	if raw.Op == nil {
		return Probe{}, &DecodeError{Op: "probe", Err: fmt.Errorf("missing op")}
	}
	p := Probe{Op: Op(*raw.Op)}
	if raw.Type != nil {
		p.Type = *raw.Type
	}
	if raw.Reason != nil {
		p.Reason = *raw.Reason
	}
	return p, nil
}

// Class is the outcome of classifying a probed frame.
type Class int

const (
	ClassStats Class = iota
	ClassPlayerUpdate
	ClassTrackStart
	ClassDisconnected
	ClassTrackEnd
)

func (c Class) String() string {
	switch c {
	case ClassStats:
		return "stats"
	case ClassPlayerUpdate:
		return "player_update"
	case ClassTrackStart:
		return "track_start"
	case ClassDisconnected:
		return "disconnected"
	case ClassTrackEnd:
		return "track_end"
	default:
		return "unknown"
	}
}

// Deliver reports whether frames of this class reach the application.
func (c Class) Deliver() bool { return c == ClassTrackEnd }

const (
	eventTrackStart    = "TrackStartEvent"
	reasonDisconnected = "Disconnected."
)

// Classify applies the dispatch rules in order; the first match wins. Every
// frame that survives the first four rules is expected to be a track end.
func Classify(p Probe) Class {
	switch {
	case p.Op == OpStats:
		return ClassStats
	case p.Op == OpPlayerUpdate:
		return ClassPlayerUpdate
	case p.Type == eventTrackStart:
		return ClassTrackStart
	case p.Reason == reasonDisconnected:
		return ClassDisconnected
	default:
		return ClassTrackEnd
	}
}

// TrackEndEvent is delivered when the node finishes (or abandons) a track.
type TrackEndEvent struct {
	Op      Op     `json:"op"`
	Reason  string `json:"reason"`
	Type    string `json:"type"`
	Track   string `json:"track"`
	GuildID string `json:"guildId"`
}

// DecodeTrackEnd is the strict second pass: every field must be present.
func DecodeTrackEnd(b []byte) (TrackEndEvent, error) {
	var raw struct {
		Op      *string `json:"op"`
		Reason  *string `json:"reason"`
		Type    *string `json:"type"`
		Track   *string `json:"track"`
		GuildID *string `json:"guildId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return TrackEndEvent{}, &DecodeError{Op: "track end", Err: err}
	}
	for name, v := range map[string]*string{
		"op":      raw.Op,
		"reason":  raw.Reason,
		"type":    raw.Type,
		"track":   raw.Track,
		"guildId": raw.GuildID,
	} {
		if v == nil {
			return TrackEndEvent{}, &DecodeError{Op: "track end", Err: fmt.Errorf("missing %s", name)}
		}
	}
	return TrackEndEvent{
		Op:      Op(*raw.Op),
		Reason:  *raw.Reason,
		Type:    *raw.Type,
		Track:   *raw.Track,
		GuildID: *raw.GuildID,
	}, nil
}

type Memory struct {
	Reservable int64 `json:"reservable"`
	Used       int64 `json:"used"`
	Free       int64 `json:"free"`
	Allocated  int64 `json:"allocated"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// Stats is the periodic node telemetry frame. The dispatcher never delivers
// it; DecodeStats exists for callers that read raw frames themselves.
type Stats struct {
	Op             Op     `json:"op"`
	Players        int    `json:"players"`
	PlayingPlayers int    `json:"playingPlayers"`
	Uptime         int64  `json:"uptime"`
	Memory         Memory `json:"memory"`
	CPU            CPU    `json:"cpu"`
}

func DecodeStats(b []byte) (Stats, error) {
	var raw struct {
		Stats
		Memory *Memory `json:"memory"`
		CPU    *CPU    `json:"cpu"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Stats{}, &DecodeError{Op: "stats", Err: err}
	}
	if raw.Op != OpStats {
		return Stats{}, &DecodeError{Op: "stats", Err: fmt.Errorf("unexpected op %q", raw.Op)}
	}
	if raw.Memory == nil || raw.CPU == nil {
		return Stats{}, &DecodeError{Op: "stats", Err: fmt.Errorf("missing memory or cpu")}
	}
	s := raw.Stats
	s.Memory = *raw.Memory
	s.CPU = *raw.CPU
	return s, nil
}
