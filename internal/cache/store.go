package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

const (
	threadsDir = "threads"
	entryExt   = ".json"
)

// Store keeps one Entry file per thread.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. Directories are created lazily.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Store{root: dir, logger: logger}
}

// Root returns the cache root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(id gmail.ThreadID) (string, error) {
	raw := string(id)
	if raw == "" || raw == "." || raw == ".." || strings.ContainsAny(raw, `/\`) || strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidThreadID, raw)
	}
	return filepath.Join(s.root, threadsDir, raw+entryExt), nil
}

// Get returns the cached entry for id. A missing file yields ok=false and no
// error; an undecodable file yields a *ReadError.
func (s *Store) Get(id gmail.ThreadID) (Entry, bool, error) {
	path, err := s.path(id)
	if err != nil {
		return Entry{}, false, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path built from validated thread id
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, &ReadError{Thread: id, Path: path, Err: err}
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return Entry{}, false, &ReadError{Thread: id, Path: path, Err: err}
	}
	return entry, true, nil
}

// Put writes entry for id. An invalid entry is skipped with a warning and
// leaves any existing file untouched; only I/O failures return an error.
func (s *Store) Put(id gmail.ThreadID, entry Entry) error {
	if !entry.Valid() {
		s.logger.Warn("skipping cache write: label data is not a list", slog.String("thread", string(id)))
		return nil
	}
	path, err := s.path(id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", id, err)
	}
	return writeFileAtomic(path, data)
}

// Evict removes the entry for id. Missing entries are ignored.
func (s *Store) Evict(id gmail.ThreadID) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("evict %s: %w", id, err)
	}
	return nil
}

// IDs lists the thread IDs that currently have an entry file.
func (s *Store) IDs() ([]gmail.ThreadID, error) {
	dir := filepath.Join(s.root, threadsDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache entries: %w", err)
	}
	ids := make([]gmail.ThreadID, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, entryExt) {
			continue
		}
		ids = append(ids, gmail.ThreadID(strings.TrimSuffix(name, entryExt)))
	}
	return ids, nil
}
