package tally

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

// CountLabels counts, per label, the threads carrying it. Threads outside
// inbox are ignored and INBOX itself is never counted.
func CountLabels(
	threads map[gmail.ThreadID][]gmail.LabelID,
	inbox map[gmail.ThreadID]struct{},
) map[gmail.LabelID]int {
	counts := map[gmail.LabelID]int{}
	for id, labels := range threads {
		if _, ok := inbox[id]; !ok {
			continue
		}
		for _, l := range labels {
			if l == gmail.LabelInbox {
				continue
			}
			counts[l]++
		}
	}
	return counts
}

// MissingName is the display name for a label without a name binding.
func MissingName(id gmail.LabelID) string {
	return fmt.Sprintf("<missing name: %s>", id)
}

// Rows renders counts as report rows sorted by case-insensitive name. Each
// label without a name is logged once.
func Rows(counts map[gmail.LabelID]int, dir gmail.LabelDirectory, logger *slog.Logger) []LabelCount {
	rows := make([]LabelCount, 0, len(counts))
	for id, n := range counts {
		name, ok := dir.Name(id)
		if !ok {
			logger.Warn("label has no name", slog.String("label", string(id)))
			name = MissingName(id)
		}
		rows = append(rows, LabelCount{ID: id, Name: name, Count: n})
	}
	// ID order first so equal names come out the same way every run.
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	sort.SliceStable(rows, func(i, j int) bool {
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows
}

// UntaggedQuery matches inbox threads carrying none of the given labels, or
// no user label at all when names is empty.
func UntaggedQuery(names []string) gmail.Query {
	if len(names) == 0 {
		return gmail.Query{Raw: inboxQuery + " has:nouserlabels"}
	}
	parts := []string{inboxQuery}
	for _, name := range names {
		parts = append(parts, fmt.Sprintf(`-label:"%s"`, name))
	}
	return gmail.Query{Raw: strings.Join(parts, " ")}
}
