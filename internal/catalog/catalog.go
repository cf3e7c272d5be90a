// Package catalog maintains the index of finished recordings. Accepted
// recordings are registered here so other tools can enumerate them without
// scanning the storage directory.
package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPlaylist is the playlist every accepted recording is added to.
const DefaultPlaylist = "My recordings"

const indexFileName = "catalog.yaml"

// Entry is one indexed recording.
type Entry struct {
	ID           int64     `yaml:"id"`
	Title        string    `yaml:"title"`
	Path         string    `yaml:"path"`
	Duration     int64     `yaml:"duration_ms"`
	MIMEType     string    `yaml:"mime_type"`
	Playlist     string    `yaml:"playlist"`
	DateAdded    time.Time `yaml:"date_added"`
	DateModified time.Time `yaml:"date_modified"`
}

// URI returns the stable identifier handed back to callers on accept.
func (e Entry) URI() string {
	return fmt.Sprintf("voicecapture://recording/%d", e.ID)
}

// Catalog registers finished recordings and answers membership queries.
type Catalog interface {
	// Insert registers a recording and returns its URI. Inserting a path
	// that is already indexed updates the existing entry instead of
	// creating a duplicate.
	Insert(entry Entry) (string, error)

	// Contains reports whether a file path is already indexed.
	Contains(path string) (bool, error)

	// Entries returns all indexed recordings, newest first.
	Entries() ([]Entry, error)

	// Remove drops the entry for a path, if present.
	Remove(path string) error
}

// FileCatalog stores the index as a yaml file next to the recordings.
type FileCatalog struct {
	indexPath string
}

// NewFileCatalog creates a catalog backed by dir/catalog.yaml.
func NewFileCatalog(dir string) *FileCatalog {
	return &FileCatalog{indexPath: filepath.Join(dir, indexFileName)}
}

type indexFile struct {
	NextID  int64   `yaml:"next_id"`
	Entries []Entry `yaml:"entries"`
}

func (c *FileCatalog) load() (*indexFile, error) {
	data, err := os.ReadFile(c.indexPath)
	if os.IsNotExist(err) {
		return &indexFile{NextID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog index: %w", err)
	}

	var idx indexFile
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse catalog index: %w", err)
	}
	if idx.NextID < 1 {
		idx.NextID = 1
	}
	return &idx, nil
}

func (c *FileCatalog) save(idx *indexFile) error {
	data, err := yaml.Marshal(idx)
	if err != nil {
		return fmt.Errorf("failed to serialize catalog index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.indexPath), 0o755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	if err := os.WriteFile(c.indexPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write catalog index: %w", err)
	}
	return nil
}

// Insert registers a recording. Paths are normalized to absolute form so
// re-registering the same file is idempotent.
func (c *FileCatalog) Insert(entry Entry) (string, error) {
	path, err := filepath.Abs(entry.Path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve recording path: %w", err)
	}
	entry.Path = path

	if entry.Playlist == "" {
		entry.Playlist = DefaultPlaylist
	}
	now := time.Now()
	if entry.DateAdded.IsZero() {
		entry.DateAdded = now
	}
	entry.DateModified = now

	idx, err := c.load()
	if err != nil {
		return "", err
	}

	for i, existing := range idx.Entries {
		if existing.Path == path {
			entry.ID = existing.ID
			entry.DateAdded = existing.DateAdded
			idx.Entries[i] = entry
			if err := c.save(idx); err != nil {
				return "", err
			}
			slog.Debug("Catalog entry updated", "path", path, "id", entry.ID)
			return entry.URI(), nil
		}
	}

	entry.ID = idx.NextID
	idx.NextID++
	idx.Entries = append(idx.Entries, entry)

	if err := c.save(idx); err != nil {
		return "", err
	}
	slog.Info("Recording added to catalog", "path", path, "id", entry.ID, "playlist", entry.Playlist)
	return entry.URI(), nil
}

// Contains reports whether the path is already indexed.
func (c *FileCatalog) Contains(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve recording path: %w", err)
	}
	idx, err := c.load()
	if err != nil {
		return false, err
	}
	for _, entry := range idx.Entries {
		if entry.Path == abs {
			return true, nil
		}
	}
	return false, nil
}

// Entries returns all indexed recordings, newest first.
func (c *FileCatalog) Entries() ([]Entry, error) {
	idx, err := c.load()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(idx.Entries))
	copy(entries, idx.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].DateAdded.After(entries[j].DateAdded)
	})
	return entries, nil
}

// Remove drops the entry for a path. Removing an unindexed path is not an
// error.
func (c *FileCatalog) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve recording path: %w", err)
	}
	idx, err := c.load()
	if err != nil {
		return err
	}
	for i, entry := range idx.Entries {
		if entry.Path == abs {
			idx.Entries = append(idx.Entries[:i], idx.Entries[i+1:]...)
			return c.save(idx)
		}
	}
	return nil
}
