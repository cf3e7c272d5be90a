// Package server exposes the recording session over a small JSON API so
// external frontends can drive it.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/audiolibrelab/voicecapture/internal/audio"
	"github.com/audiolibrelab/voicecapture/internal/catalog"
	"github.com/audiolibrelab/voicecapture/internal/config"
	"github.com/audiolibrelab/voicecapture/internal/session"
	"github.com/audiolibrelab/voicecapture/internal/storage"
)

// Server wires the session controller to HTTP handlers.
type Server struct {
	controller *session.Controller
	cfg        *config.Config
	volume     *storage.Volume
	catalog    catalog.Catalog
	port       string
	mux        *http.ServeMux
}

// GenericResponse is the common API response shape.
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResponse carries the session snapshot plus progress rendered for
// display.
type StatusResponse struct {
	Status    session.Status `json:"status"`
	Progress  string         `json:"progress"`
	Format    string         `json:"format"`
	Countdown string         `json:"countdown,omitempty"`
}

// AcceptResponse reports the catalog handoff result.
type AcceptResponse struct {
	Success bool   `json:"success"`
	URI     string `json:"uri,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RecordingsResponse lists cataloged recordings.
type RecordingsResponse struct {
	Recordings []catalog.Entry `json:"recordings"`
	TotalCount int             `json:"total_count"`
}

// New creates a server around an existing controller.
func New(controller *session.Controller, cfg *config.Config, volume *storage.Volume, cat catalog.Catalog, port string) *Server {
	s := &Server{
		controller: controller,
		cfg:        cfg,
		volume:     volume,
		catalog:    cat,
		port:       port,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/record", s.handleRecord)
	s.mux.HandleFunc("/api/pause", s.action(s.controller.Pause))
	s.mux.HandleFunc("/api/resume", s.action(s.controller.Resume))
	s.mux.HandleFunc("/api/stop", s.action(s.controller.Stop))
	s.mux.HandleFunc("/api/play", s.action(s.controller.Play))
	s.mux.HandleFunc("/api/accept", s.handleAccept)
	s.mux.HandleFunc("/api/discard", s.action(s.controller.Discard))
	s.mux.HandleFunc("/api/recordings", s.handleRecordings)
	s.mux.HandleFunc("/api/volume", s.handleVolume)
	s.mux.HandleFunc("/api/interrupt", s.handleInterrupt)
	s.mux.HandleFunc("/api/call-state", s.handleCallState)
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start blocks serving the API.
func (s *Server) Start() error {
	slog.Info("API server listening", "port", s.port)
	return http.ListenAndServe(":"+s.port, s.mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := s.controller.Status()
	resp := StatusResponse{
		Status:   status,
		Progress: session.FormatDuration(status.Progress),
		Format:   s.cfg.Output.Format,
	}
	if status.CountdownVisible {
		resp.Countdown = fmt.Sprintf("%ds", status.Remaining)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	var err error
	if mimeType := r.FormValue("mime"); mimeType != "" {
		err = s.controller.RecordMIME(mimeType)
	} else {
		err = s.controller.Record()
	}
	if err != nil {
		slog.Error("Record request failed", "error", err)
		s.sendError(w, statusFor(err), err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "recording started"})
}

// action wraps the simple controller verbs that share a response shape.
func (s *Server) action(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := fn(); err != nil {
			s.sendError(w, statusFor(err), err.Error())
			return
		}
		s.sendJSON(w, http.StatusOK, GenericResponse{Success: true})
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.controller.Accept()
	if err != nil {
		slog.Error("Accept request failed", "error", err)
		s.sendJSON(w, statusFor(err), AcceptResponse{Error: err.Error()})
		return
	}
	s.sendJSON(w, http.StatusOK, AcceptResponse{Success: true, URI: result.URI})
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := s.catalog.Entries()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, RecordingsResponse{
		Recordings: entries,
		TotalCount: len(entries),
	})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	policy := storage.PolicyFromConfig(s.cfg.Storage.Reserve)
	s.sendJSON(w, http.StatusOK, s.volume.Describe(policy))
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	var interrupt session.Interrupt
	switch reason := r.FormValue("reason"); reason {
	case "storage-ejected":
		interrupt = session.InterruptStorageEjected
	case "shutdown":
		interrupt = session.InterruptShutdown
	case "audio-focus-loss":
		interrupt = session.InterruptAudioFocusLoss
	default:
		s.sendError(w, http.StatusBadRequest, fmt.Sprintf("unknown interrupt reason: %q", reason))
		return
	}

	s.controller.HandleInterrupt(interrupt)
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true})
}

func (s *Server) handleCallState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	switch r.FormValue("active") {
	case "true":
		s.controller.SetCallActive(true)
	case "false":
		s.controller.SetCallActive(false)
	default:
		s.sendError(w, http.StatusBadRequest, "active must be true or false")
		return
	}
	s.sendJSON(w, http.StatusOK, GenericResponse{Success: true})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, GenericResponse{Success: false, Error: msg})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, session.ErrBusy) {
		return http.StatusConflict
	}
	if errors.Is(err, session.ErrFileDeleted) {
		return http.StatusNotFound
	}
	if fault, ok := audio.AsFault(err); ok {
		switch fault.Code {
		case audio.FaultStorageAccess:
			return http.StatusServiceUnavailable
		case audio.FaultEngineBusy, audio.FaultInCallRecord:
			return http.StatusConflict
		case audio.FaultUnsupportedFormat:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
