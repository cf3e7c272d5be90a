package session

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/estimate"
	"github.com/audiolibrelab/voicecapture/internal/storage"
)

// scriptedStater replays a list of free-space readings, sticking on the
// last one.
type scriptedStater struct {
	mu       sync.Mutex
	readings []storage.VolumeStats
	next     int
}

func (s *scriptedStater) Stats(string) (storage.VolumeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reading := s.readings[s.next]
	if s.next < len(s.readings)-1 {
		s.next++
	}
	return reading, nil
}

type failingCatalog struct{}

func (failingCatalog) Insert(catalog.Entry) (string, error) {
	return "", errors.New("index is read-only")
}
func (failingCatalog) Contains(string) (bool, error)    { return false, nil }
func (failingCatalog) Entries() ([]catalog.Entry, error) { return nil, nil }
func (failingCatalog) Remove(string) error              { return nil }

func newTestController(t *testing.T) (*Controller, *fakeEngine, *testClock) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()

	engine := newFakeEngine()
	volume := storage.NewVolume(cfg.Storage.Path, cfg.Storage.Removable, nil)
	cat := catalog.NewFileCatalog(cfg.Storage.Path)

	c := NewController(cfg, engine, volume, cat)
	t.Cleanup(func() { c.Close() })

	// Keep the poll loop quiet so tests control the countdown fields.
	c.tickInterval = time.Hour

	clock := newTestClock()
	c.recorder.now = clock.Now
	return c, engine, clock
}

func TestControllerRecordStopAccept(t *testing.T) {
	c, engine, clock := newTestController(t)

	require.NoError(t, c.Record())
	assert.Equal(t, StateRecording, c.Status().State)
	assert.Equal(t, "amr", engine.lastConfig.Codec.Name)

	clock.Advance(30 * time.Second)
	require.NoError(t, c.Stop())
	assert.Equal(t, StateIdle, c.Status().State)

	path := c.Recorder().SamplePath()
	result, err := c.Accept()
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, "voicecapture://recording/1", result.URI)
	assert.Equal(t, result, c.Result())

	// Ownership moved to the catalog; the file stays on disk.
	assert.False(t, c.Recorder().HasSample())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}

func TestControllerAcceptKeepsFileOnCatalogFailure(t *testing.T) {
	c, _, clock := newTestController(t)
	c.catalog = failingCatalog{}

	require.NoError(t, c.Record())
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Stop())

	path := c.Recorder().SamplePath()
	_, err := c.Accept()
	require.Error(t, err)

	// No data loss: the sample stays attached and on disk.
	assert.True(t, c.Recorder().HasSample())
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	assert.False(t, c.Result().Accepted)
}

func TestControllerAcceptWithoutSample(t *testing.T) {
	c, _, _ := newTestController(t)
	_, err := c.Accept()
	assert.Error(t, err)
}

func TestControllerDiscard(t *testing.T) {
	c, _, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(5 * time.Second)
	path := c.Recorder().SamplePath()

	require.NoError(t, c.Discard())
	assert.Equal(t, StateIdle, c.Status().State)
	assert.False(t, c.Recorder().HasSample())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestControllerRecordFailsWhenVolumeMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = "/nonexistent/voicecapture-test"

	engine := newFakeEngine()
	volume := storage.NewVolume(cfg.Storage.Path, false, nil)
	c := NewController(cfg, engine, volume, failingCatalog{})
	defer c.Close()

	err := c.Record()
	require.Error(t, err)
	fault, ok := audio.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, audio.FaultStorageAccess, fault.Code)
	assert.NotEmpty(t, c.Status().LastError)
}

func TestControllerRejectsUnknownMIME(t *testing.T) {
	c, engine, _ := newTestController(t)

	err := c.RecordMIME("audio/ogg")
	require.Error(t, err)
	fault, ok := audio.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, audio.FaultUnsupportedFormat, fault.Code)
	assert.Equal(t, 0, engine.startCount)
}

func TestControllerRecordMIMEWildcard(t *testing.T) {
	c, engine, _ := newTestController(t)

	require.NoError(t, c.RecordMIME("audio/*"))
	assert.Equal(t, "3gpp", engine.lastConfig.Codec.Name)
}

func TestControllerCallSourceBlockedDuringCall(t *testing.T) {
	c, engine, _ := newTestController(t)
	c.cfg.Output.SourceType = "voice-uplink"
	c.SetCallActive(true)

	err := c.Record()
	require.Error(t, err)
	fault, ok := audio.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, audio.FaultInCallRecord, fault.Code)
	assert.Equal(t, 0, engine.startCount)
}

func TestControllerCallBecomingActiveStopsCallRecording(t *testing.T) {
	c, _, clock := newTestController(t)
	c.cfg.Output.SourceType = "voice-uplink"

	require.NoError(t, c.Record())
	clock.Advance(time.Second)

	c.SetCallActive(true)
	assert.Equal(t, StateIdle, c.Status().State)
	assert.True(t, c.Status().Interrupted)
}

func TestControllerMicRecordingSurvivesCall(t *testing.T) {
	c, _, _ := newTestController(t)

	require.NoError(t, c.Record())
	c.SetCallActive(true)
	assert.Equal(t, StateRecording, c.Status().State)
}

func TestControllerStorageEjectedInterrupt(t *testing.T) {
	c, _, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	path := c.Recorder().SamplePath()

	c.HandleInterrupt(InterruptStorageEjected)

	status := c.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.True(t, status.Interrupted)
	assert.NotEmpty(t, status.LastError)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "ejected storage deletes the partial file")
}

func TestControllerShutdownInterruptKeepsFile(t *testing.T) {
	c, _, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	path := c.Recorder().SamplePath()

	c.HandleInterrupt(InterruptShutdown)

	assert.Equal(t, StateIdle, c.Status().State)
	assert.True(t, c.Status().Interrupted)
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestControllerPlaybackCompletionEvent(t *testing.T) {
	c, engine, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Stop())
	require.NoError(t, c.Play())
	assert.Equal(t, StatePlaying, c.Status().State)

	engine.events <- audio.Event{Type: audio.EventPlaybackComplete}
	require.Eventually(t, func() bool {
		return c.Status().State == StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.True(t, c.Recorder().HasSample())
}

func TestControllerFaultEventRollsBackRecording(t *testing.T) {
	c, engine, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	path := c.Recorder().SamplePath()

	engine.events <- audio.Event{
		Type:  audio.EventFault,
		Fault: audio.NewFault(audio.FaultInternal, errors.New("encoder died")),
	}

	require.Eventually(t, func() bool {
		return c.Status().State == StateIdle
	}, time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, c.Status().LastError)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "partial file deleted after mid-recording fault")
}

func TestControllerForcedStopWhenDiskRunsOut(t *testing.T) {
	c, _, clock := newTestController(t)

	// Plenty of space for the start precheck, then the volume reports
	// empty on the next poll.
	c.calc = estimate.NewCalculator(c.volume.Path, &scriptedStater{readings: []storage.VolumeStats{
		{AvailableBlocks: 1000, BlockSize: 4096, TotalBlocks: 10000},
		{AvailableBlocks: 0, BlockSize: 4096, TotalBlocks: 10000},
	}})

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	c.tick()

	status := c.Status()
	assert.Equal(t, StateIdle, status.State, "tick must force a stop once the estimate hits zero")
	assert.Contains(t, status.LastError, "disk-space")
	assert.Equal(t, "disk-space", status.Limit)
}

func TestControllerForcedStopAtFileSizeLimit(t *testing.T) {
	c, _, clock := newTestController(t)

	// A limit under one second's worth of AMR output; the empty file's
	// estimate is already negative after the safety margin.
	c.cfg.Output.MaxFileSize = 500

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	c.tick()

	status := c.Status()
	assert.Equal(t, StateIdle, status.State)
	assert.Contains(t, status.LastError, "file-size")
	assert.Equal(t, "file-size", status.Limit)
}

func TestControllerTickWhileRecordingKeepsGoing(t *testing.T) {
	c, _, clock := newTestController(t)

	require.NoError(t, c.Record())
	clock.Advance(time.Second)
	c.tick()

	status := c.Status()
	assert.Equal(t, StateRecording, status.State)
	assert.Greater(t, status.Remaining, int64(0))
}

func TestControllerAcceptUsesRecordedMIME(t *testing.T) {
	c, _, clock := newTestController(t)

	// The configured format stays amr; the caller asked for AAC.
	require.NoError(t, c.RecordMIME("audio/aac"))
	clock.Advance(5 * time.Second)
	require.NoError(t, c.Stop())

	// Even a format change before accept must not relabel the sample.
	c.cfg.Output.Format = "qcelp"

	_, err := c.Accept()
	require.NoError(t, err)

	entries, err := c.catalog.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "audio/aac", entries[0].MIMEType)
	assert.Equal(t, ".m4a", filepath.Ext(entries[0].Path))
}

func TestControllerCountdownVisibility(t *testing.T) {
	c, _, _ := newTestController(t)
	require.NoError(t, c.Record())

	c.mu.Lock()
	c.remaining = 700
	c.limit = estimate.LimitDiskSpace
	c.mu.Unlock()
	assert.False(t, c.Status().CountdownVisible, "above threshold the countdown is hidden")

	c.mu.Lock()
	c.remaining = 30
	c.mu.Unlock()
	status := c.Status()
	assert.True(t, status.CountdownVisible)
	assert.Equal(t, "disk-space", status.Limit)
}

func TestControllerClose(t *testing.T) {
	c, engine, _ := newTestController(t)

	require.NoError(t, c.Record())
	require.NoError(t, c.Close())

	assert.Equal(t, StateIdle, c.Recorder().State())
	assert.True(t, engine.closed)

	// Closing twice is safe.
	assert.NoError(t, c.Close())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "00:59", FormatDuration(59*time.Second))
	assert.Equal(t, "01:05", FormatDuration(65*time.Second))
	assert.Equal(t, "12:34", FormatDuration(12*time.Minute+34*time.Second))
}
