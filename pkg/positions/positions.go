// Package positions persists the tail offset of each file source across
// restarts, so a dserv restart resumes a tailed file from where it left
// off instead of re-ingesting (or skipping) lines.
package positions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Position struct {
	Path     string    `json:"path"`
	Offset   int64     `json:"offset"`
	Size     int64     `json:"size"`
	UpdateAt time.Time `json:"updated_at"`
}

// Store is a mutex-protected table of per-path positions, flushed to a
// single JSON file on disk.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*Position
	filename string
	log      *logrus.Logger
}

func New(dir string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		entries:  make(map[string]*Position),
		filename: filepath.Join(dir, "positions.json"),
		log:      log,
	}
	return s, s.Load()
}

// Load reads the persisted positions file, if present; a missing file is
// not an error — dserv is starting fresh.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var entries map[string]*Position
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Save writes the current table to disk via a temp-file-then-rename so a
// crash mid-write never leaves a truncated positions file behind.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	tmp := s.filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filename)
}

// Update records the current read offset for path, resetting to zero when
// the file's size has shrunk (truncation or rotation under the same name).
func (s *Store) Update(path string, offset, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.entries[path]
	if !ok {
		pos = &Position{Path: path}
		s.entries[path] = pos
	}
	if size < pos.Size {
		s.log.WithField("path", path).Info("file truncated or rotated, resetting tail offset")
		offset = 0
	}
	pos.Offset = offset
	pos.Size = size
	pos.UpdateAt = time.Now()
}

// Offset returns the last recorded offset for path, or 0 if unknown.
func (s *Store) Offset(path string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos, ok := s.entries[path]; ok {
		return pos.Offset
	}
	return 0
}

func (s *Store) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, path)
}
