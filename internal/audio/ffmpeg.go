package audio

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// FFmpegEngine implements Engine by driving an ffmpeg capture process and
// an external player for playback.
type FFmpegEngine struct {
	logWriter io.Writer

	mutex sync.Mutex

	recordCmd  *exec.Cmd
	recordDone chan error
	stopping   bool
	paused     bool

	playCmd      *exec.Cmd
	playStopping bool

	events chan Event
	closed bool
}

// NewFFmpegEngine creates an engine that captures from the default input
// device via ffmpeg.
func NewFFmpegEngine(logWriter io.Writer) *FFmpegEngine {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &FFmpegEngine{
		logWriter: logWriter,
		events:    make(chan Event, 8),
	}
}

// Events returns the asynchronous fault/completion channel.
func (e *FFmpegEngine) Events() <-chan Event {
	return e.events
}

// Start launches the ffmpeg capture process for one recording.
func (e *FFmpegEngine) Start(cfg Config) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.recordCmd != nil {
		return NewFault(FaultEngineBusy, fmt.Errorf("recording already in progress"))
	}
	if e.playCmd != nil {
		return NewFault(FaultEngineBusy, fmt.Errorf("playback in progress"))
	}

	// Only the microphone source is capturable on this backend. Call
	// audio sources exist on telephony hardware, not here.
	if cfg.Source != "" && cfg.Source != "mic" {
		return NewFault(FaultUnsupportedFormat, fmt.Errorf("source %q not supported by capture backend", cfg.Source))
	}

	args, err := buildRecordArgs(cfg)
	if err != nil {
		return err
	}

	slog.Info("Starting capture", "command", "ffmpeg "+strings.Join(args, " "))

	cmd := exec.Command("ffmpeg", args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return NewFault(FaultInternal, fmt.Errorf("failed to create stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		if isBusyError(err) {
			return NewFault(FaultEngineBusy, err)
		}
		return NewFault(FaultInternal, fmt.Errorf("failed to start ffmpeg: %w", err))
	}

	e.recordCmd = cmd
	e.stopping = false
	e.paused = false
	e.recordDone = make(chan error, 1)

	go e.readOutput(stderr, "ffmpeg")
	go e.watchRecording(cmd)

	return nil
}

// watchRecording waits for the capture process and reports unexpected
// exits as faults.
func (e *FFmpegEngine) watchRecording(cmd *exec.Cmd) {
	err := cmd.Wait()

	e.mutex.Lock()
	stopping := e.stopping
	done := e.recordDone
	e.mutex.Unlock()

	if done != nil {
		done <- err
	}

	if err != nil && !stopping && !isSignalExit(err) {
		slog.Error("Capture process died", "error", err)
		e.emit(Event{Type: EventFault, Fault: NewFault(FaultInternal, fmt.Errorf("capture process died: %w", err))})
	}
}

// Pause suspends the capture process. ffmpeg keeps the output file open,
// so resume continues into the same file.
func (e *FFmpegEngine) Pause() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.recordCmd == nil || e.recordCmd.Process == nil {
		return NewFault(FaultInternal, fmt.Errorf("no recording in progress"))
	}
	if e.paused {
		return nil
	}
	if err := e.recordCmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return NewFault(FaultInternal, fmt.Errorf("failed to pause capture: %w", err))
	}
	e.paused = true
	slog.Debug("Capture paused")
	return nil
}

// Resume continues a paused capture.
func (e *FFmpegEngine) Resume() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.recordCmd == nil || e.recordCmd.Process == nil {
		return NewFault(FaultInternal, fmt.Errorf("no recording in progress"))
	}
	if !e.paused {
		return nil
	}
	if err := e.recordCmd.Process.Signal(syscall.SIGCONT); err != nil {
		return NewFault(FaultInternal, fmt.Errorf("failed to resume capture: %w", err))
	}
	e.paused = false
	slog.Debug("Capture resumed")
	return nil
}

// Stop terminates the capture process, giving it a chance to flush the
// container before falling back to a hard kill.
func (e *FFmpegEngine) Stop() error {
	e.mutex.Lock()
	cmd := e.recordCmd
	done := e.recordDone
	paused := e.paused
	e.stopping = true
	e.mutex.Unlock()

	if cmd == nil {
		return nil
	}

	// A paused process cannot handle SIGINT; wake it first.
	if paused && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGCONT)
	}

	if cmd.Process != nil {
		slog.Debug("Sending SIGINT to capture process")
		if err := cmd.Process.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to interrupt capture process, killing", "error", err)
			cmd.Process.Kill()
		}
	}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("Capture process did not exit within timeout, force killing")
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		waitErr = <-done
	}

	e.mutex.Lock()
	e.recordCmd = nil
	e.recordDone = nil
	e.paused = false
	e.mutex.Unlock()

	if waitErr != nil && !isSignalExit(waitErr) {
		return NewFault(FaultInternal, fmt.Errorf("capture process failed: %w", waitErr))
	}
	return nil
}

// StartPlayback plays a finished recording with the first available
// player and reports natural completion through the event channel.
func (e *FFmpegEngine) StartPlayback(path string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.recordCmd != nil {
		return NewFault(FaultEngineBusy, fmt.Errorf("recording in progress"))
	}
	if e.playCmd != nil {
		return NewFault(FaultEngineBusy, fmt.Errorf("playback already in progress"))
	}

	if _, err := os.Stat(path); err != nil {
		return NewFault(FaultStorageAccess, fmt.Errorf("recording file not found: %s", path))
	}

	player, err := findAudioPlayer()
	if err != nil {
		return NewFault(FaultInternal, err)
	}

	var cmd *exec.Cmd
	switch player {
	case "ffplay":
		cmd = exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "error", path)
	case "mpv":
		cmd = exec.Command("mpv", "--no-video", "--really-quiet", path)
	case "aplay":
		cmd = exec.Command("aplay", "-q", path)
	default:
		return NewFault(FaultInternal, fmt.Errorf("unsupported player: %s", player))
	}

	if err := cmd.Start(); err != nil {
		return NewFault(FaultInternal, fmt.Errorf("failed to start playback: %w", err))
	}

	e.playCmd = cmd
	e.playStopping = false

	go e.watchPlayback(cmd)
	slog.Info("Playback started", "file", path, "player", player)
	return nil
}

// watchPlayback waits for the player and distinguishes natural completion
// from an explicit stop.
func (e *FFmpegEngine) watchPlayback(cmd *exec.Cmd) {
	err := cmd.Wait()

	e.mutex.Lock()
	stopping := e.playStopping
	e.playCmd = nil
	e.mutex.Unlock()

	if stopping {
		return
	}

	if err != nil && !isSignalExit(err) {
		e.emit(Event{Type: EventFault, Fault: NewFault(FaultStorageAccess, fmt.Errorf("playback failed: %w", err))})
		return
	}
	e.emit(Event{Type: EventPlaybackComplete})
}

// StopPlayback terminates the player.
func (e *FFmpegEngine) StopPlayback() error {
	e.mutex.Lock()
	cmd := e.playCmd
	e.playStopping = true
	e.mutex.Unlock()

	if cmd == nil {
		return nil
	}
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
	return nil
}

// Close releases any active process and closes the event channel.
func (e *FFmpegEngine) Close() error {
	e.Stop()
	e.StopPlayback()

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

func (e *FFmpegEngine) emit(ev Event) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.closed {
		return
	}
	select {
	case e.events <- ev:
	default:
		slog.Warn("Engine event dropped, consumer not keeping up", "type", ev.Type)
	}
}

// readOutput drains a process pipe into the log writer.
func (e *FFmpegEngine) readOutput(pipe io.ReadCloser, label string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(e.logWriter, line)
		slog.Debug("Capture output", "stream", label, "line", line)
	}
	pipe.Close()
}

// buildRecordArgs constructs the ffmpeg argument list for one recording.
func buildRecordArgs(cfg Config) ([]string, error) {
	if cfg.OutputPath == "" {
		return nil, NewFault(FaultInternal, fmt.Errorf("no output path configured"))
	}

	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = cfg.Codec.SampleRate
	}
	channels := cfg.Channels
	if channels == 0 {
		channels = cfg.Codec.Channels
	}

	args := []string{
		"-f", "alsa",
		"-i", "default",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-c:a", cfg.Codec.Encoder,
	}
	if cfg.Codec.BitRate > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%d", cfg.Codec.BitRate))
	}
	args = append(args,
		"-f", cfg.Codec.Container,
		"-y",
		cfg.OutputPath,
	)
	return args, nil
}

// findAudioPlayer probes for an available playback binary in order of
// preference.
func findAudioPlayer() (string, error) {
	players := []string{"ffplay", "mpv", "aplay"}
	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

// isSignalExit reports whether a Wait error is the expected result of our
// own interrupt or kill.
func isSignalExit(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	// Exit code 255 often means ffmpeg was interrupted gracefully.
	if exitErr.ExitCode() == 255 {
		return true
	}
	if exitErr.ProcessState != nil {
		state := exitErr.ProcessState.String()
		if state == "signal: interrupt" || state == "signal: killed" {
			return true
		}
	}
	return false
}

func isBusyError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "busy")
}
