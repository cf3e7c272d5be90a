package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is the serialized session state carried across a process
// restart: enough to re-attach to a finished-but-unaccepted sample.
type Snapshot struct {
	SamplePath     string `yaml:"sample_path"`
	MIMEType       string `yaml:"mime_type"`
	SampleLengthMS int64  `yaml:"sample_length_ms"`
	Interrupted    bool   `yaml:"interrupted"`
}

// Snapshot captures the recorder's restorable state. Only meaningful
// while Idle; an active recording cannot be carried across a restart.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		SamplePath:     r.samplePath,
		MIMEType:       r.mimeType,
		SampleLengthMS: r.sampleLength.Milliseconds(),
		Interrupted:    r.interrupted,
	}
}

// Restore re-attaches a previously recorded sample. A snapshot whose
// file no longer exists restores to an empty session.
func (r *Recorder) Restore(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.SamplePath == "" {
		return
	}
	if _, err := os.Stat(snap.SamplePath); err != nil {
		return
	}
	r.samplePath = snap.SamplePath
	r.mimeType = snap.MIMEType
	r.sampleLength = time.Duration(snap.SampleLengthMS) * time.Millisecond
	r.interrupted = snap.Interrupted
}

// SaveSnapshot writes a snapshot to path.
func SaveSnapshot(path string, snap Snapshot) error {
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize session snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing file yields an
// empty snapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read session snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse session snapshot: %w", err)
	}
	return snap, nil
}
