package audio

import "io"

// EventType tags asynchronous engine notifications.
type EventType string

const (
	// EventFault reports an engine failure outside a direct call, for
	// example the encoder process dying mid-recording.
	EventFault EventType = "fault"

	// EventPlaybackComplete reports natural end-of-file during playback.
	EventPlaybackComplete EventType = "playback-complete"
)

// Event is one asynchronous engine notification. Events flow through a
// single channel so the consumer can keep transition ordering serialized.
type Event struct {
	Type  EventType
	Fault *Fault
}

// Config is everything the engine needs to start one recording.
type Config struct {
	Codec      Codec
	SampleRate int
	Channels   int
	Source     string
	OutputPath string
}

// Engine is the audio capture/playback capability. Implementations own
// exactly one active recording or playback at a time; start/stop calls are
// treated as atomic request/response pairs that may be slow and fallible.
type Engine interface {
	Start(cfg Config) error
	Pause() error
	Resume() error
	Stop() error

	StartPlayback(path string) error
	StopPlayback() error

	// Events delivers faults and playback completion. The channel is
	// owned by the engine and closed by Close.
	Events() <-chan Event

	Close() error
}

// NewEngine creates the default capture engine for this platform.
func NewEngine(logWriter io.Writer) Engine {
	return NewFFmpegEngine(logWriter)
}
