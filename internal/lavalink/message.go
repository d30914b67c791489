package lavalink

import (
	"encoding/json"
	"fmt"
)

// Op is the discriminator carried in the "op" field of every node frame.
type Op string

const (
	OpPlay         Op = "play"
	OpStop         Op = "stop"
	OpPause        Op = "pause"
	OpSeek         Op = "seek"
	OpVoiceUpdate  Op = "voiceUpdate"
	OpStats        Op = "stats"
	OpPlayerUpdate Op = "playerUpdate"
	OpEvent        Op = "event"
)

// Command is an outbound frame. Every command knows its discriminator and
// the guild it is routed to.
type Command interface {
	Op() Op
	Guild() string
}

// PlayCommand starts a track, replacing whatever the node is playing for the guild.
type PlayCommand struct {
	Track   string
	GuildID string
}

func (c PlayCommand) Op() Op        { return OpPlay }
func (c PlayCommand) Guild() string { return c.GuildID }
func (c PlayCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op      Op     `json:"op"`
		Track   string `json:"track"`
		GuildID string `json:"guildId"`
	}{OpPlay, c.Track, c.GuildID})
}

type StopCommand struct {
	GuildID string
}

func (c StopCommand) Op() Op        { return OpStop }
func (c StopCommand) Guild() string { return c.GuildID }
func (c StopCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op      Op     `json:"op"`
		GuildID string `json:"guildId"`
	}{OpStop, c.GuildID})
}

// PauseCommand pauses (Pause=true) or resumes (Pause=false) playback.
type PauseCommand struct {
	GuildID string
	Pause   bool
}

func (c PauseCommand) Op() Op        { return OpPause }
func (c PauseCommand) Guild() string { return c.GuildID }
func (c PauseCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op      Op     `json:"op"`
		GuildID string `json:"guildId"`
		Pause   bool   `json:"pause"`
	}{OpPause, c.GuildID, c.Pause})
}

// SeekCommand moves the playhead. Position is kept as a string on the wire.
type SeekCommand struct {
	GuildID  string
	Position string
}

func (c SeekCommand) Op() Op        { return OpSeek }
func (c SeekCommand) Guild() string { return c.GuildID }
func (c SeekCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op       Op     `json:"op"`
		GuildID  string `json:"guildId"`
		Position string `json:"position"`
	}{OpSeek, c.GuildID, c.Position})
}

// VoiceServerEvent mirrors the gateway VOICE_SERVER_UPDATE body.
type VoiceServerEvent struct {
	Token    string `json:"token"`
	GuildID  string `json:"guild_id"`
	Endpoint string `json:"endpoint"`
}

// VoiceUpdateCommand hands the node what it needs to open the voice connection.
type VoiceUpdateCommand struct {
	GuildID   string
	SessionID string
	Event     VoiceServerEvent
}

func (c VoiceUpdateCommand) Op() Op        { return OpVoiceUpdate }
func (c VoiceUpdateCommand) Guild() string { return c.GuildID }
func (c VoiceUpdateCommand) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Op        Op               `json:"op"`
		GuildID   string           `json:"guildId"`
		SessionID string           `json:"sessionId"`
		Event     VoiceServerEvent `json:"event"`
	}{OpVoiceUpdate, c.GuildID, c.SessionID, c.Event})
}

// Encode renders a command as the UTF-8 JSON text frame the node expects.
func Encode(cmd Command) ([]byte, error) {
	if cmd == nil {
		return nil, fmt.Errorf("lavalink: encode: nil command")
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("lavalink: encode %s: %w", cmd.Op(), err)
	}
	return b, nil
}

// TrackInfo is the human readable metadata of a resolved track.
type TrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri"`
}

// Track is a resolved track: the opaque base64 handle plus its info.
type Track struct {
	Track string    `json:"track"`
	Info  TrackInfo `json:"info"`
}

// LoadType values returned by /loadtracks.
const (
	LoadTrack     = "TRACK_LOADED"
	LoadPlaylist  = "PLAYLIST_LOADED"
	LoadSearch    = "SEARCH_RESULT"
	LoadNoMatches = "NO_MATCHES"
	LoadFailed    = "LOAD_FAILED"
)

type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// LoadResult is the /loadtracks response body.
type LoadResult struct {
	LoadType  string         `json:"loadType"`
	Tracks    []Track        `json:"tracks"`
	Exception *LoadException `json:"exception,omitempty"`
}

// DecodeLoadResult decodes a /loadtracks body. A NO_MATCHES body decodes
// successfully; callers decide what an empty result means.
func DecodeLoadResult(b []byte) (LoadResult, error) {
	var probe struct {
		LoadType *string `json:"loadType"`
	}
	if err := json.Unmarshal(b, &probe); err != nil {
		return LoadResult{}, &DecodeError{Op: "loadtracks", Err: err}
	}
	if probe.LoadType == nil {
		return LoadResult{}, &DecodeError{Op: "loadtracks", Err: fmt.Errorf("missing loadType")}
	}
	if *probe.LoadType == LoadNoMatches {
		return LoadResult{LoadType: LoadNoMatches}, nil
	}
	var res LoadResult
	if err := json.Unmarshal(b, &res); err != nil {
		return LoadResult{}, &DecodeError{Op: "loadtracks", Err: err}
	}
	for i, t := range res.Tracks {
		if t.Track == "" {
			return LoadResult{}, &DecodeError{Op: "loadtracks", Err: fmt.Errorf("track %d has no handle", i)}
		}
	}
	return res, nil
}
