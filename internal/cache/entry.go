package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

var (
	errLabelsNotArray = errors.New("labelIds is not an array")
	errMissingTime    = errors.New("cachedAt is missing")
)

// Entry is the cached label state of one thread.
type Entry struct {
	LabelIDs []gmail.LabelID `json:"labelIds"`
	CachedAt time.Time       `json:"cachedAt"`
}

// Valid reports whether the entry may be written. A nil label slice stands
// for label data that never arrived; an empty slice is a valid result.
func (e Entry) Valid() bool {
	return e.LabelIDs != nil
}

func decodeEntry(data []byte) (Entry, error) {
	var raw struct {
		LabelIDs json.RawMessage `json:"labelIds"`
		CachedAt *time.Time      `json:"cachedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if len(raw.LabelIDs) == 0 || raw.LabelIDs[0] != '[' {
		return Entry{}, errLabelsNotArray
	}
	labels := []gmail.LabelID{}
	if err := json.Unmarshal(raw.LabelIDs, &labels); err != nil {
		return Entry{}, fmt.Errorf("decode labelIds: %w", err)
	}
	if raw.CachedAt == nil || raw.CachedAt.IsZero() {
		return Entry{}, errMissingTime
	}
	return Entry{LabelIDs: labels, CachedAt: *raw.CachedAt}, nil
}
