// Package gmailctl reads the labels a gmailctl configuration manages.
package gmailctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Export mirrors the subset of `gmailctl compile --format=json` we read.
type Export struct {
	Filters []Filter `json:"filters"`
	Labels  []Label  `json:"labels"`
}

type Filter struct {
	Name   string       `json:"name,omitempty"`
	Action FilterAction `json:"action"`
}

type FilterAction struct {
	AddLabelIDs []string `json:"addLabelIds,omitempty"`
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Runner shells out to the gmailctl binary.
type Runner struct {
	Binary    string
	ConfigDir string
}

// ManagedLabels returns the sorted, de-duplicated label names declared by
// the gmailctl configuration or applied by its filters.
func (r Runner) ManagedLabels(ctx context.Context) ([]string, error) {
	bin := r.Binary
	if bin == "" {
		bin = "gmailctl"
	}
	args := []string{"compile", "--format=json"}
	if strings.TrimSpace(r.ConfigDir) != "" {
		args = append(args, "--config", r.ConfigDir)
	}
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 - binary determined by user config
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run gmailctl: %w", err)
	}
	export, err := ParseExport(out)
	if err != nil {
		return nil, err
	}
	return export.LabelNames(), nil
}

// ParseExport decodes compiled gmailctl output.
func ParseExport(data []byte) (Export, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return Export{}, fmt.Errorf("decode gmailctl output: %w", err)
	}
	if len(export.Filters) == 0 && len(export.Labels) == 0 {
		return Export{}, errors.New("gmailctl returned no filters or labels")
	}
	return export, nil
}

// LabelNames collects label names from both the label list and the filters.
func (e Export) LabelNames() []string {
	seen := map[string]struct{}{}
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	for _, l := range e.Labels {
		add(l.Name)
	}
	for _, f := range e.Filters {
		for _, name := range f.Action.AddLabelIDs {
			add(name)
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
