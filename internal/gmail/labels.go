package gmail

import "strings"

// LabelDirectory maps label IDs to names and back. It is built once per run
// and read-only afterwards.
type LabelDirectory struct {
	byID   map[LabelID]string
	byName map[string]LabelID
}

// NewLabelDirectory indexes labels in both directions. A later duplicate
// name wins the name lookup.
func NewLabelDirectory(labels []Label) LabelDirectory {
	dir := LabelDirectory{
		byID:   make(map[LabelID]string, len(labels)),
		byName: make(map[string]LabelID, len(labels)),
	}
	for _, l := range labels {
		dir.byID[l.ID] = l.Name
		dir.byName[l.Name] = l.ID
	}
	return dir
}

// Name returns the human-readable name bound to id.
func (d LabelDirectory) Name(id LabelID) (string, bool) {
	name, ok := d.byID[id]
	return name, ok
}

// ID returns the label ID bound to name. Matching is exact first, then
// case-insensitive.
func (d LabelDirectory) ID(name string) (LabelID, bool) {
	if id, ok := d.byName[name]; ok {
		return id, true
	}
	for n, id := range d.byName {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return "", false
}

// Resolve maps names to IDs. Names without a binding are used verbatim,
// which covers system labels such as STARRED whose ID equals the name.
func (d LabelDirectory) Resolve(names []string) []LabelID {
	out := make([]LabelID, 0, len(names))
	for _, name := range names {
		if id, ok := d.ID(name); ok {
			out = append(out, id)
			continue
		}
		out = append(out, LabelID(name))
	}
	return out
}

func (d LabelDirectory) Len() int { return len(d.byID) }
