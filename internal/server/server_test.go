package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/session"
	"github.com/audiolibrelab/voicecapture/internal/storage"
)

// stubEngine accepts every operation without touching real audio.
type stubEngine struct {
	mu     sync.Mutex
	events chan audio.Event
	closed bool
}

func newStubEngine() *stubEngine {
	return &stubEngine{events: make(chan audio.Event, 8)}
}

func (e *stubEngine) Start(audio.Config) error   { return nil }
func (e *stubEngine) Pause() error               { return nil }
func (e *stubEngine) Resume() error              { return nil }
func (e *stubEngine) Stop() error                { return nil }
func (e *stubEngine) StartPlayback(string) error { return nil }
func (e *stubEngine) StopPlayback() error        { return nil }
func (e *stubEngine) Events() <-chan audio.Event { return e.events }

func (e *stubEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *session.Controller) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.Path = t.TempDir()

	volume := storage.NewVolume(cfg.Storage.Path, false, nil)
	cat := catalog.NewFileCatalog(cfg.Storage.Path)
	controller := session.NewController(cfg, newStubEngine(), volume, cat)
	t.Cleanup(func() { controller.Close() })

	return New(controller, cfg, volume, cat, "0"), controller
}

func doPost(t *testing.T, s *Server, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[StatusResponse](t, rec)
	assert.Equal(t, session.StateIdle, resp.Status.State)
	assert.Equal(t, "amr", resp.Format)
	assert.Equal(t, "00:00", resp.Progress)
}

func TestStatusRejectsPost(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doPost(t, s, "/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRecordStopLifecycle(t *testing.T) {
	s, c := newTestServer(t)

	rec := doPost(t, s, "/api/record", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StateRecording, c.Status().State)

	// A second start is a conflict, not a silent double-start.
	rec = doPost(t, s, "/api/record", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doPost(t, s, "/api/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StatePaused, c.Status().State)

	rec = doPost(t, s, "/api/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doPost(t, s, "/api/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StateIdle, c.Status().State)
}

func TestRecordUnknownMIME(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doPost(t, s, "/api/record", url.Values{"mime": {"audio/ogg"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[GenericResponse](t, rec)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "audio/ogg")
}

func TestPlayWithoutSample(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doPost(t, s, "/api/play", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAcceptFlow(t *testing.T) {
	s, _ := newTestServer(t)

	require.Equal(t, http.StatusOK, doPost(t, s, "/api/record", nil).Code)
	require.Equal(t, http.StatusOK, doPost(t, s, "/api/stop", nil).Code)

	rec := doPost(t, s, "/api/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AcceptResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "voicecapture://recording/1", resp.URI)

	// The accepted recording shows up in the listing.
	listRec := doGet(t, s, "/api/recordings")
	require.Equal(t, http.StatusOK, listRec.Code)
	list := decode[RecordingsResponse](t, listRec)
	assert.Equal(t, 1, list.TotalCount)
}

func TestDiscardFlow(t *testing.T) {
	s, c := newTestServer(t)

	require.Equal(t, http.StatusOK, doPost(t, s, "/api/record", nil).Code)
	rec := doPost(t, s, "/api/discard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StateIdle, c.Status().State)
	assert.Empty(t, c.Status().SamplePath)
}

func TestVolumeEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doGet(t, s, "/api/volume")
	require.Equal(t, http.StatusOK, rec.Code)

	report := decode[storage.Report](t, rec)
	assert.True(t, report.Mounted)
	assert.Greater(t, report.BlockSize, uint64(0))
}

func TestInterruptEndpoint(t *testing.T) {
	s, c := newTestServer(t)

	require.Equal(t, http.StatusOK, doPost(t, s, "/api/record", nil).Code)
	rec := doPost(t, s, "/api/interrupt", url.Values{"reason": {"storage-ejected"}})
	require.Equal(t, http.StatusOK, rec.Code)

	status := c.Status()
	assert.Equal(t, session.StateIdle, status.State)
	assert.True(t, status.Interrupted)
}

func TestInterruptUnknownReason(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doPost(t, s, "/api/interrupt", url.Values{"reason": {"earthquake"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallStateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, doPost(t, s, "/api/call-state", url.Values{"active": {"true"}}).Code)
	assert.Equal(t, http.StatusOK, doPost(t, s, "/api/call-state", url.Values{"active": {"false"}}).Code)
	assert.Equal(t, http.StatusBadRequest, doPost(t, s, "/api/call-state", url.Values{"active": {"maybe"}}).Code)
}
