package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

const idsFile = "thread_ids.json"

// IDList persists the inbox enumeration. Once saved it is never refreshed by
// the scan; delete the file to force a new enumeration.
type IDList struct {
	path   string
	logger *slog.Logger
}

func NewIDList(dir string, logger *slog.Logger) *IDList {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &IDList{path: filepath.Join(dir, idsFile), logger: logger}
}

// Load returns the saved IDs. An absent or unreadable snapshot yields
// ok=false; unreadable ones are logged.
func (l *IDList) Load() ([]gmail.ThreadID, bool) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		l.logger.Warn("thread id cache unreadable", slog.String("path", l.path), slog.Any("error", err))
		return nil, false
	}
	var ids []gmail.ThreadID
	if err := json.Unmarshal(data, &ids); err != nil || ids == nil {
		l.logger.Warn("thread id cache malformed", slog.String("path", l.path), slog.Any("error", err))
		return nil, false
	}
	return ids, true
}

func (l *IDList) Save(ids []gmail.ThreadID) error {
	if ids == nil {
		ids = []gmail.ThreadID{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode thread ids: %w", err)
	}
	if err := writeFileAtomic(l.path, data); err != nil {
		return fmt.Errorf("save thread ids: %w", err)
	}
	return nil
}
