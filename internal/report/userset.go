// Package report aggregates application assignments into user reports and exports them.
package report

import "sort"

// UserSet is an insertion-ordered set of user identifiers
type UserSet struct {
	order []string
	seen  map[string]struct{}
}

// NewUserSet creates a set seeded with ids
func NewUserSet(ids ...string) *UserSet {
	s := &UserSet{seen: make(map[string]struct{})}
	s.Add(ids...)
	return s
}

// Add inserts ids that are not already present. Empty ids are ignored.
func (s *UserSet) Add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.order = append(s.order, id)
	}
}

// Contains reports whether id is in the set
func (s *UserSet) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of distinct ids
func (s *UserSet) Len() int {
	return len(s.order)
}

// IDs returns the ids in first-seen order
func (s *UserSet) IDs() []string {
	return append([]string(nil), s.order...)
}

// Sorted returns the ids in lexical order, for reproducible output
func (s *UserSet) Sorted() []string {
	ids := s.IDs()
	sort.Strings(ids)
	return ids
}
