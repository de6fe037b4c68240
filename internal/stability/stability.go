// Package stability decides whether a cached label set can be trusted
// without asking Gmail again.
package stability

import "github.com/joshsymonds/inboxtally/internal/gmail"

// Predicate reports whether a thread with the given cached labels is stable.
type Predicate func(labels []gmail.LabelID) bool

// NonEmpty trusts every cached entry that has at least one label. It is the
// default and deliberately lenient.
func NonEmpty(labels []gmail.LabelID) bool {
	return len(labels) > 0
}

// Terminal trusts an entry only when it carries one of the given labels,
// e.g. the labels a user applies once a thread is triaged. With no labels it
// never trusts the cache.
func Terminal(terminal ...gmail.LabelID) Predicate {
	set := make(map[gmail.LabelID]struct{}, len(terminal))
	for _, id := range terminal {
		set[id] = struct{}{}
	}
	return func(labels []gmail.LabelID) bool {
		for _, id := range labels {
			if _, ok := set[id]; ok {
				return true
			}
		}
		return false
	}
}

// ForLabels builds the predicate for a configured list of terminal label
// names, falling back to NonEmpty when the list is empty.
func ForLabels(dir gmail.LabelDirectory, names []string) Predicate {
	if len(names) == 0 {
		return NonEmpty
	}
	return Terminal(dir.Resolve(names)...)
}
