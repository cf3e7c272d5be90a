// Package session holds the recording state machine and the controller
// that sequences user actions against it.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/audio"
)

// State is the recorder's position in the record/playback cycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRecording:
		return "RECORDING"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// ErrBusy is returned when a start is requested while a recording or
// playback is already active. A double start is rejected, never silently
// absorbed.
var ErrBusy = errors.New("session busy")

// ErrFileDeleted is returned when playback is requested but the sample
// file no longer exists on disk.
var ErrFileDeleted = errors.New("recording file has been deleted")

// Recorder is the four-state machine around one output file. It owns the
// file exclusively from the first start until accept or discard. All
// methods are safe for concurrent use; transitions are applied under one
// mutex so they serialize in call order.
type Recorder struct {
	engine audio.Engine

	mu           sync.Mutex
	state        State
	samplePath   string
	mimeType     string
	sampleLength time.Duration
	segmentStart time.Time
	startedAt    time.Time
	interrupted  bool

	now           func() time.Time
	onStateChange func(State)
}

// NewRecorder creates an idle recorder with no sample.
func NewRecorder(engine audio.Engine) *Recorder {
	return &Recorder{
		engine: engine,
		state:  StateIdle,
		now:    time.Now,
	}
}

// OnStateChange registers a listener invoked after every transition. Must
// be set before the recorder is used.
func (r *Recorder) OnStateChange(fn func(State)) {
	r.onStateChange = fn
}

func (r *Recorder) setState(s State) {
	if r.state == s {
		return
	}
	slog.Debug("Session state change", "from", r.state, "to", s)
	r.state = s
	if r.onStateChange != nil {
		r.onStateChange(s)
	}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SamplePath returns the output file path, empty when no sample exists.
func (r *Recorder) SamplePath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samplePath
}

// MIMEType returns the MIME type the sample was recorded with, empty when
// no sample exists.
func (r *Recorder) MIMEType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mimeType
}

// HasSample reports whether a recorded sample exists.
func (r *Recorder) HasSample() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samplePath != "" && r.sampleLength > 0
}

// SampleLength returns the accumulated recorded length, excluding time
// spent paused.
func (r *Recorder) SampleLength() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampleLengthLocked()
}

func (r *Recorder) sampleLengthLocked() time.Duration {
	if r.state == StateRecording {
		return r.sampleLength + r.now().Sub(r.segmentStart)
	}
	return r.sampleLength
}

// Progress returns the elapsed time of the current activity: recorded
// length while recording or paused, playback position while playing.
func (r *Recorder) Progress() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRecording, StatePaused:
		return r.sampleLengthLocked()
	case StatePlaying:
		return r.now().Sub(r.segmentStart)
	default:
		return 0
	}
}

// StartedAt returns when the current sample's recording began. Used as
// the catalog title on accept.
func (r *Recorder) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedAt
}

// Interrupted reports whether the last session was cut short by an
// external signal. Cleared on the next successful start.
func (r *Recorder) Interrupted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// StartRecording allocates a fresh output file in dir and starts the
// engine. On engine failure the partial file is deleted and the state
// stays Idle; the returned error carries the typed fault.
func (r *Recorder) StartRecording(cfg audio.Config, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("%w: cannot start recording while %s", ErrBusy, r.state)
	}

	// Restarting before accept replaces the previous take.
	if r.samplePath != "" {
		r.deleteLocked()
	}

	start := r.now()
	path := filepath.Join(dir, "recording"+start.Format("20060102150405")+cfg.Codec.Extension)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return audio.NewFault(audio.FaultStorageAccess, fmt.Errorf("failed to create recording directory: %w", err))
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return audio.NewFault(audio.FaultStorageAccess, fmt.Errorf("failed to create recording file: %w", err))
	}
	file.Close()

	cfg.OutputPath = path
	if err := r.engine.Start(cfg); err != nil {
		os.Remove(path)
		return err
	}

	r.samplePath = path
	r.mimeType = cfg.Codec.MIMEType
	r.sampleLength = 0
	r.segmentStart = start
	r.startedAt = start
	r.interrupted = false
	r.setState(StateRecording)
	slog.Info("Recording started", "file", path, "codec", cfg.Codec.Name)
	return nil
}

// Pause suspends recording, banking the current segment into the sample
// length. A failed engine pause leaves the state at Recording.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		slog.Debug("Pause ignored", "state", r.state)
		return nil
	}
	if err := r.engine.Pause(); err != nil {
		return err
	}
	r.sampleLength += r.now().Sub(r.segmentStart)
	r.setState(StatePaused)
	return nil
}

// Resume restarts a paused recording into the same file.
func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused {
		slog.Debug("Resume ignored", "state", r.state)
		return nil
	}
	if err := r.engine.Resume(); err != nil {
		return err
	}
	r.segmentStart = r.now()
	r.setState(StateRecording)
	return nil
}

// StopRecording finalizes the sample length and releases the engine.
// Stopping while idle or playing is a no-op.
func (r *Recorder) StopRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRecordingLocked()
}

func (r *Recorder) stopRecordingLocked() error {
	switch r.state {
	case StateRecording:
		r.sampleLength += r.now().Sub(r.segmentStart)
	case StatePaused:
	default:
		return nil
	}

	err := r.engine.Stop()
	r.setState(StateIdle)
	if err != nil {
		return err
	}
	slog.Info("Recording stopped", "file", r.samplePath, "length", r.sampleLength)
	return nil
}

// StartPlayback plays the recorded sample. Valid only from Idle with an
// existing sample file; a vanished file surfaces ErrFileDeleted without a
// transition.
func (r *Recorder) StartPlayback() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle {
		return fmt.Errorf("%w: cannot start playback while %s", ErrBusy, r.state)
	}
	if r.samplePath == "" {
		return ErrFileDeleted
	}
	if _, err := os.Stat(r.samplePath); err != nil {
		return ErrFileDeleted
	}

	if err := r.engine.StartPlayback(r.samplePath); err != nil {
		return err
	}
	r.segmentStart = r.now()
	r.setState(StatePlaying)
	return nil
}

// StopPlayback ends playback. Explicit stop and natural end-of-file both
// land here.
func (r *Recorder) StopPlayback() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePlaying {
		return nil
	}
	err := r.engine.StopPlayback()
	r.setState(StateIdle)
	return err
}

// PlaybackCompleted handles the engine's natural end-of-file event.
func (r *Recorder) PlaybackCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePlaying {
		return
	}
	r.setState(StateIdle)
}

// Stop forces whatever is active to Idle. Used on teardown and external
// interrupts.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateRecording, StatePaused:
		return r.stopRecordingLocked()
	case StatePlaying:
		err := r.engine.StopPlayback()
		r.setState(StateIdle)
		return err
	default:
		return nil
	}
}

// Interrupt force-stops the session and marks it interrupted so the
// caller can explain the stoppage. When deleteSample is set (storage
// ejected) the output file is removed as well.
func (r *Recorder) Interrupt(deleteSample bool) error {
	err := r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted = true
	if deleteSample {
		r.deleteLocked()
	}
	return err
}

// Delete discards the sample file and clears the sample state.
func (r *Recorder) Delete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleteLocked()
}

func (r *Recorder) deleteLocked() {
	if r.samplePath != "" {
		if err := os.Remove(r.samplePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to delete recording file", "file", r.samplePath, "error", err)
		}
	}
	r.clearLocked()
}

// Clear drops the sample reference without touching the file. Used after
// accept, when ownership has moved to the catalog.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

func (r *Recorder) clearLocked() {
	r.samplePath = ""
	r.mimeType = ""
	r.sampleLength = 0
	r.startedAt = time.Time{}
}
