package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/estimate"
	"github.com/audiolibrelab/voicecapture/internal/storage"
)

// Interrupt is an external signal that forces the session out of a busy
// state.
type Interrupt int

const (
	// InterruptStorageEjected means the target volume disappeared. The
	// partial file is deleted because its blocks went with the volume.
	InterruptStorageEjected Interrupt = iota + 1

	// InterruptShutdown means the host is going down. The recording is
	// stopped and kept.
	InterruptShutdown

	// InterruptAudioFocusLoss means another consumer took the audio
	// path. Stop and keep.
	InterruptAudioFocusLoss
)

func (i Interrupt) String() string {
	switch i {
	case InterruptStorageEjected:
		return "storage-ejected"
	case InterruptShutdown:
		return "shutdown"
	case InterruptAudioFocusLoss:
		return "audio-focus-loss"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the session for display.
type Status struct {
	State            State         `json:"state"`
	Progress         time.Duration `json:"progress"`
	SampleLength     time.Duration `json:"sample_length"`
	SamplePath       string        `json:"sample_path,omitempty"`
	Remaining        int64         `json:"remaining_seconds"`
	Limit            string        `json:"limit"`
	CountdownVisible bool          `json:"countdown_visible"`
	Interrupted      bool          `json:"interrupted"`
	LastError        string        `json:"last_error,omitempty"`
}

// Result is the exit contract: whether a recording was accepted and the
// catalog URI it received.
type Result struct {
	Accepted bool   `json:"accepted"`
	URI      string `json:"uri,omitempty"`
}

// Controller sequences user actions against the recorder, feeds codec
// rates and limits into the estimator before each attempt, polls the
// estimate once per second while recording, and forces a stop the moment
// remaining time runs out. One transition is in flight at a time.
type Controller struct {
	cfg      *config.Config
	engine   audio.Engine
	recorder *Recorder
	calc     *estimate.Calculator
	volume   *storage.Volume
	policy   storage.ReservePolicy
	catalog  catalog.Catalog

	// actionMu serializes user actions so a second action arriving
	// before the first completes never interleaves.
	actionMu sync.Mutex

	mu           sync.Mutex
	remaining    int64
	limit        estimate.Limit
	callActive   bool
	lastError    string
	result       Result
	tickStop     chan struct{}
	tickInterval time.Duration
	onUpdate     func(Status)
	closed       bool
}

// NewController wires the session together. The estimator and recorder
// are created here; engine, volume and catalog are supplied by the
// caller.
func NewController(cfg *config.Config, engine audio.Engine, volume *storage.Volume, cat catalog.Catalog) *Controller {
	c := &Controller{
		cfg:          cfg,
		engine:       engine,
		recorder:     NewRecorder(engine),
		calc:         estimate.NewCalculator(volume.Path, nil),
		volume:       volume,
		policy:       storage.PolicyFromConfig(cfg.Storage.Reserve),
		catalog:      cat,
		tickInterval: time.Second,
	}
	c.recorder.OnStateChange(c.handleStateChange)
	go c.consumeEngineEvents()
	return c
}

// OnUpdate registers a listener for tick and transition updates. Must be
// set before actions are issued.
func (c *Controller) OnUpdate(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = fn
}

// SetCallActive records the current telephony state. Call state is
// explicit input, not a global: the telephony observer pushes it here.
// A call becoming active while recording from a call-audio source force
// stops the recording.
func (c *Controller) SetCallActive(active bool) {
	c.mu.Lock()
	c.callActive = active
	c.mu.Unlock()

	if active && isCallSource(c.cfg.Output.SourceType) && c.recorder.State() == StateRecording {
		slog.Warn("Call became active while recording call audio, stopping")
		c.setLastError(audio.NewFault(audio.FaultInCallRecord, fmt.Errorf("call became active during recording")).Error())
		c.recorder.Interrupt(false)
	}
}

func isCallSource(source string) bool {
	switch source {
	case "voice-uplink", "voice-downlink", "voice-call":
		return true
	}
	return false
}

// Record starts a new recording using the configured output format.
func (c *Controller) Record() error {
	codec, err := audio.CodecByName(c.cfg.Output.Format)
	if err != nil {
		c.setLastError(err.Error())
		return err
	}
	return c.record(codec)
}

// RecordMIME starts a new recording for a caller-requested MIME type.
// An unsupported type is rejected, never replaced with a default.
func (c *Controller) RecordMIME(mimeType string) error {
	codec, err := audio.CodecByMIME(mimeType)
	if err != nil {
		c.setLastError(err.Error())
		return err
	}
	return c.record(codec)
}

func (c *Controller) record(codec audio.Codec) error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	if !c.volume.Mounted() {
		err := audio.NewFault(audio.FaultStorageAccess, fmt.Errorf("storage volume %s is not mounted", c.volume.Path))
		c.setLastError(err.Error())
		return err
	}
	usable, err := c.calc.DiskSpaceAvailable(c.policy, c.volume.Removable)
	if err != nil {
		fault := audio.NewFault(audio.FaultStorageAccess, err)
		c.setLastError(fault.Error())
		return fault
	}
	if !usable {
		fault := audio.NewFault(audio.FaultStorageAccess, fmt.Errorf("not enough free space on %s", c.volume.Path))
		c.setLastError(fault.Error())
		return fault
	}

	c.mu.Lock()
	callActive := c.callActive
	c.mu.Unlock()
	if callActive && isCallSource(c.cfg.Output.SourceType) {
		fault := audio.NewFault(audio.FaultInCallRecord, fmt.Errorf("cannot record call audio while a call is active"))
		c.setLastError(fault.Error())
		return fault
	}

	c.calc.Reset()
	if err := c.calc.SetBitRate(codec.EffectiveBitRate(c.cfg.Output.SampleRate, c.cfg.Output.Channels)); err != nil {
		c.setLastError(err.Error())
		return err
	}

	engineCfg := audio.Config{
		Codec:      codec,
		SampleRate: c.cfg.Output.SampleRate,
		Channels:   c.cfg.Output.Channels,
		Source:     c.cfg.Output.SourceType,
	}
	if err := c.recorder.StartRecording(engineCfg, c.cfg.Storage.Path); err != nil {
		c.setLastError(err.Error())
		return err
	}

	if c.cfg.Output.MaxFileSize > 0 {
		c.calc.SetFileSizeLimit(c.recorder.SamplePath(), c.cfg.Output.MaxFileSize)
	} else {
		c.calc.ClearFileSizeLimit()
	}

	c.clearLastError()
	return nil
}

// Pause suspends the active recording.
func (c *Controller) Pause() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()
	if err := c.recorder.Pause(); err != nil {
		c.setLastError(err.Error())
		return err
	}
	return nil
}

// Resume continues a paused recording.
func (c *Controller) Resume() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()
	if err := c.recorder.Resume(); err != nil {
		c.setLastError(err.Error())
		return err
	}
	return nil
}

// Stop ends the active recording or playback.
func (c *Controller) Stop() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()
	if err := c.recorder.Stop(); err != nil {
		c.setLastError(err.Error())
		return err
	}
	return nil
}

// Play starts playback of the recorded sample.
func (c *Controller) Play() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()
	if err := c.recorder.StartPlayback(); err != nil {
		c.setLastError(err.Error())
		return err
	}
	c.clearLastError()
	return nil
}

// Accept finalizes the sample and hands it to the catalog. On catalog
// failure the file is kept so no data is lost; the error is returned and
// the sample stays attached to the session.
func (c *Controller) Accept() (Result, error) {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	if err := c.recorder.Stop(); err != nil {
		c.setLastError(err.Error())
		return Result{}, err
	}
	if !c.recorder.HasSample() {
		return Result{}, fmt.Errorf("no recording to accept")
	}

	// The entry is cataloged with the type the sample was actually
	// recorded with, not whatever format is configured right now.
	mimeType := c.recorder.MIMEType()
	if mimeType == "" {
		codec, err := audio.CodecByName(c.cfg.Output.Format)
		if err != nil {
			return Result{}, err
		}
		mimeType = codec.MIMEType
	}

	startedAt := c.recorder.StartedAt()
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	entry := catalog.Entry{
		Title:     "recording " + startedAt.Format("2006-01-02 15:04:05"),
		Path:      c.recorder.SamplePath(),
		Duration:  c.recorder.SampleLength().Milliseconds(),
		MIMEType:  mimeType,
		DateAdded: startedAt,
	}
	uri, err := c.catalog.Insert(entry)
	if err != nil {
		c.setLastError(fmt.Sprintf("failed to catalog recording: %v", err))
		return Result{}, fmt.Errorf("failed to catalog recording: %w", err)
	}

	c.recorder.Clear()
	c.mu.Lock()
	c.result = Result{Accepted: true, URI: uri}
	result := c.result
	c.mu.Unlock()
	c.clearLastError()
	slog.Info("Recording accepted", "uri", uri, "title", entry.Title)
	return result, nil
}

// Discard stops any activity, deletes the sample file and clears the
// session.
func (c *Controller) Discard() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	if err := c.recorder.Stop(); err != nil {
		c.setLastError(err.Error())
		return err
	}
	c.recorder.Delete()
	c.clearLastError()
	return nil
}

// HandleInterrupt applies an external signal. Interrupts work even when
// no tick is scheduled.
func (c *Controller) HandleInterrupt(i Interrupt) {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	slog.Warn("Session interrupted", "reason", i)
	switch i {
	case InterruptStorageEjected:
		c.recorder.Interrupt(true)
		c.setLastError("storage was removed during the session")
	case InterruptShutdown, InterruptAudioFocusLoss:
		c.recorder.Interrupt(false)
	}
	c.notify()
}

// Status reports the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	remaining := c.remaining
	limit := c.limit
	lastError := c.lastError
	c.mu.Unlock()

	state := c.recorder.State()
	countdown := state == StateRecording &&
		remaining > 0 && remaining < int64(c.cfg.Display.CountdownThreshold)

	return Status{
		State:            state,
		Progress:         c.recorder.Progress(),
		SampleLength:     c.recorder.SampleLength(),
		SamplePath:       c.recorder.SamplePath(),
		Remaining:        remaining,
		Limit:            limit.String(),
		CountdownVisible: countdown,
		Interrupted:      c.recorder.Interrupted(),
		LastError:        lastError,
	}
}

// Result returns the exit contract value: zero until a recording has
// been accepted.
func (c *Controller) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Recorder exposes the underlying state machine for snapshot handling.
func (c *Controller) Recorder() *Recorder {
	return c.recorder
}

// Close synchronously stops whatever is active and releases the engine.
func (c *Controller) Close() error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.recorder.Stop()
	if closeErr := c.engine.Close(); err == nil {
		err = closeErr
	}
	return err
}

// handleStateChange starts the poll loop when the session becomes busy
// and stops it the instant the state leaves Recording/Playing.
func (c *Controller) handleStateChange(s State) {
	c.mu.Lock()
	switch s {
	case StateRecording, StatePlaying:
		if c.tickStop == nil {
			c.tickStop = make(chan struct{})
			go c.tickLoop(c.tickStop)
		}
	default:
		if c.tickStop != nil {
			close(c.tickStop)
			c.tickStop = nil
		}
	}
	c.mu.Unlock()

	// The recorder invokes this listener with its lock held; reading the
	// status back must happen on another goroutine.
	go c.notify()
}

// tickLoop fires once per second while the session is busy. While
// recording it refreshes the remaining-time estimate and forces a stop
// when it runs out, attributing the stop to the binding constraint.
func (c *Controller) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	if c.recorder.State() != StateRecording {
		c.notify()
		return
	}

	remaining, err := c.calc.TimeRemaining()
	if err != nil {
		slog.Warn("Remaining-time estimate failed", "error", err)
		return
	}
	limit := c.calc.CurrentLowerLimit()

	c.mu.Lock()
	c.remaining = remaining
	c.limit = limit
	c.mu.Unlock()

	if remaining <= 0 {
		slog.Warn("Recording limit reached, stopping", "limit", limit)
		c.setLastError(fmt.Sprintf("recording stopped: %s limit reached", limit))
		if err := c.recorder.StopRecording(); err != nil {
			slog.Error("Forced stop failed", "error", err)
		}
		return
	}
	c.notify()
}

// consumeEngineEvents is the single consumer of the engine's event
// channel, preserving serialized transition ordering.
func (c *Controller) consumeEngineEvents() {
	for ev := range c.engine.Events() {
		switch ev.Type {
		case audio.EventPlaybackComplete:
			c.recorder.PlaybackCompleted()
		case audio.EventFault:
			c.handleFault(ev.Fault)
		}
	}
}

func (c *Controller) handleFault(fault *audio.Fault) {
	if fault == nil {
		return
	}
	slog.Error("Engine fault", "code", fault.Code, "error", fault.Err, "session_ending", fault.SessionEnding())
	c.setLastError(fault.Error())

	// A fault mid-recording is fatal to the attempt: roll back to Idle
	// and drop the partial file.
	switch c.recorder.State() {
	case StateRecording, StatePaused:
		c.recorder.Stop()
		c.recorder.Delete()
	case StatePlaying:
		c.recorder.StopPlayback()
	}
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(c.Status())
	}
}

func (c *Controller) setLastError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = msg
}

func (c *Controller) clearLastError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = ""
}

// FormatDuration renders a duration as M:SS for progress display.
func FormatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
