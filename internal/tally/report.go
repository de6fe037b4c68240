package tally

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

// Report is the outcome of one scan.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Total       int                   `json:"total"`
	FromCache   int                   `json:"from_cache"`
	Fetched     int                   `json:"fetched"`
	Evicted     int                   `json:"evicted"`
	Counts      map[gmail.LabelID]int `json:"counts"`
	Labels      []LabelCount          `json:"labels"`
	Unread      int                   `json:"unread"`
	Untagged    int                   `json:"untagged"`
	Failures    []Failure             `json:"failures,omitempty"`
}

// LabelCount is one row of the label table.
type LabelCount struct {
	ID    gmail.LabelID `json:"id"`
	Name  string        `json:"name"`
	Count int           `json:"count"`
}

// Failure records a thread that could not be fetched this run.
type Failure struct {
	Thread gmail.ThreadID `json:"thread"`
	Error  string         `json:"error"`
}

// PrintHuman writes the label table and summary lines.
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var builder strings.Builder
	table := tablewriter.NewWriter(&builder)
	table.SetHeader([]string{"Label", "Threads"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, row := range rep.Labels {
		table.Append([]string{row.Name, humanize.Comma(int64(row.Count))})
	}
	table.Render()

	fmt.Fprintf(&builder, "\nUnread inbox threads: %s\n", humanize.Comma(int64(rep.Unread)))
	fmt.Fprintf(&builder, "Untagged inbox threads: %s\n", humanize.Comma(int64(rep.Untagged)))
	if len(rep.Failures) > 0 {
		fmt.Fprintf(&builder, "\n%d thread(s) could not be fetched and were not counted:\n", len(rep.Failures))
		for _, f := range rep.Failures {
			fmt.Fprintf(&builder, "  %s: %s\n", f.Thread, f.Error)
		}
	}
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// WriteJSON serializes the report to a path relative to the working
// directory.
func WriteJSON(rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if encodeErr := enc.Encode(rep); encodeErr != nil {
		return fmt.Errorf("encode report: %w", encodeErr)
	}
	return nil
}
