package graph

import (
	"encoding/json"
	"slices"
	"sort"
)

// Visibility is the label set attached to an element, property or hidden
// marker. An item is readable under a set of authorizations only when
// every one of its labels is held; an empty label set is public.
type Visibility struct {
	labels []string
}

// NewVisibility returns a visibility over the given labels. Duplicate
// labels are collapsed.
func NewVisibility(labels ...string) Visibility {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return Visibility{labels: out}
}

// Public is the empty visibility, readable by everyone.
func Public() Visibility { return Visibility{} }

// Labels returns the label set. Callers must not modify the result.
func (v Visibility) Labels() []string { return v.labels }

// HasLabel reports whether the label is part of the set.
func (v Visibility) HasLabel(label string) bool {
	return slices.Contains(v.labels, label)
}

// IsPublic reports whether the visibility carries no labels at all.
func (v Visibility) IsPublic() bool { return len(v.labels) == 0 }

// Readable reports whether a caller holding auths may read an item
// carrying this visibility.
func (v Visibility) Readable(auths Authorizations) bool {
	for _, l := range v.labels {
		if !auths.Has(l) {
			return false
		}
	}
	return true
}

// Equal reports whether both visibilities cover the same label set.
func (v Visibility) Equal(other Visibility) bool {
	return slices.Equal(v.labels, other.labels)
}

// String renders the visibility as its label list joined by "&", the form
// surfaced in diff items. Public visibility renders as "".
func (v Visibility) String() string {
	out := ""
	for i, l := range v.labels {
		if i > 0 {
			out += "&"
		}
		out += l
	}
	return out
}

func (v Visibility) MarshalJSON() ([]byte, error) {
	labels := v.labels
	if labels == nil {
		labels = []string{}
	}
	return json.Marshal(map[string]any{"labels": labels})
}

// Authorizations is the token gating what a call may read. It is a plain
// label set; the lock and authorization service decides which labels a
// user holds.
type Authorizations struct {
	labels map[string]struct{}
}

// NewAuthorizations returns an authorization token over the given labels.
func NewAuthorizations(labels ...string) Authorizations {
	set := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if l != "" {
			set[l] = struct{}{}
		}
	}
	return Authorizations{labels: set}
}

// Has reports whether the token holds the label.
func (a Authorizations) Has(label string) bool {
	_, ok := a.labels[label]
	return ok
}

// With returns a new token extended by the given labels.
func (a Authorizations) With(labels ...string) Authorizations {
	all := make([]string, 0, len(a.labels)+len(labels))
	for l := range a.labels {
		all = append(all, l)
	}
	all = append(all, labels...)
	return NewAuthorizations(all...)
}

// Labels returns the held labels in sorted order.
func (a Authorizations) Labels() []string {
	out := make([]string, 0, len(a.labels))
	for l := range a.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
