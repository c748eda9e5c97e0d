package model

import "sort"

// EntityKind names a class of business entity extracted from message text.
type EntityKind string

const (
	EntityPONumbers     EntityKind = "po_numbers"
	EntityQuoteNumbers  EntityKind = "quote_numbers"
	EntityCaseNumbers   EntityKind = "case_numbers"
	EntityPartNumbers   EntityKind = "part_numbers"
	EntityDollarAmounts EntityKind = "dollar_amounts"
	EntityDates         EntityKind = "dates"
)

// EntityKinds lists the built-in entity kinds in table order.
var EntityKinds = []EntityKind{
	EntityPONumbers,
	EntityQuoteNumbers,
	EntityCaseNumbers,
	EntityPartNumbers,
	EntityDollarAmounts,
	EntityDates,
}

// EntitySet maps an entity kind to its matches in first-seen order.
// Values within a kind are unique.
type EntitySet map[EntityKind][]string

// NewEntitySet returns a set with an empty, non-nil slice for every
// built-in kind.
func NewEntitySet() EntitySet {
	s := make(EntitySet, len(EntityKinds))
	for _, k := range EntityKinds {
		s[k] = []string{}
	}
	return s
}

// Add appends value to kind unless it is already present. It reports
// whether the value was new.
func (s EntitySet) Add(kind EntityKind, value string) bool {
	if value == "" {
		return false
	}
	for _, v := range s[kind] {
		if v == value {
			return false
		}
	}
	s[kind] = append(s[kind], value)
	return true
}

// Get returns the matches for kind, never nil.
func (s EntitySet) Get(kind EntityKind) []string {
	if v := s[kind]; v != nil {
		return v
	}
	return []string{}
}

// Count returns the total number of matches across all kinds.
func (s EntitySet) Count() int {
	n := 0
	for _, v := range s {
		n += len(v)
	}
	return n
}

// Clone returns a deep copy of the set.
func (s EntitySet) Clone() EntitySet {
	out := make(EntitySet, len(s))
	for k, v := range s {
		out[k] = append([]string{}, v...)
	}
	return out
}

// Merge returns a new set holding every match of s followed by the matches
// of other that s did not already contain. Neither input is modified.
func (s EntitySet) Merge(other EntitySet) EntitySet {
	out := s.Clone()
	if out == nil {
		out = NewEntitySet()
	}
	for _, k := range other.Kinds() {
		if out[k] == nil {
			out[k] = []string{}
		}
		for _, v := range other[k] {
			out.Add(k, v)
		}
	}
	return out
}

// Kinds returns the kinds present in the set, built-in kinds first in table
// order, then any custom kinds sorted by name.
func (s EntitySet) Kinds() []EntityKind {
	seen := make(map[EntityKind]bool, len(s))
	var kinds []EntityKind
	for _, k := range EntityKinds {
		if _, ok := s[k]; ok {
			kinds = append(kinds, k)
			seen[k] = true
		}
	}
	var extra []string
	for k := range s {
		if !seen[k] {
			extra = append(extra, string(k))
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		kinds = append(kinds, EntityKind(k))
	}
	return kinds
}
