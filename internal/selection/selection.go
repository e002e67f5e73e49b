// Package selection tracks which recognized ingredients the user wants to
// cook with.
package selection

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotRecognized is returned when toggling a name that was never recognized.
var ErrNotRecognized = errors.New("ingredient was not recognized")

// Set holds the recognized ingredient list and the selected subset. The
// selected names are always a subset of the recognized ones.
type Set struct {
	mu         sync.RWMutex
	recognized []string
	known      map[string]struct{}
	selected   map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		known:    make(map[string]struct{}),
		selected: make(map[string]struct{}),
	}
}

// SetRecognized replaces the recognized list and selects every name.
// Duplicates keep their first position.
func (s *Set) SetRecognized(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recognized = make([]string, 0, len(names))
	s.known = make(map[string]struct{}, len(names))
	s.selected = make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := s.known[n]; dup {
			continue
		}
		s.recognized = append(s.recognized, n)
		s.known[n] = struct{}{}
		s.selected[n] = struct{}{}
	}
}

// Toggle flips membership of name and reports whether it is now selected.
func (s *Set) Toggle(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.known[name]; !ok {
		return false, fmt.Errorf("%w: %q", ErrNotRecognized, name)
	}
	if _, ok := s.selected[name]; ok {
		delete(s.selected, name)
		return false, nil
	}
	s.selected[name] = struct{}{}
	return true, nil
}

// Clear empties the selection. The recognized list is left as is; callers
// restarting the flow pair it with SetRecognized(nil).
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{})
}

// Reset forgets both the recognized and the selected names.
func (s *Set) Reset() {
	s.SetRecognized(nil)
}

// Selected returns the selected names in recognition order.
func (s *Set) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.selected))
	for _, n := range s.recognized {
		if _, ok := s.selected[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Recognized returns a copy of the recognized names.
func (s *Set) Recognized() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.recognized...)
}

func (s *Set) IsSelected(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[name]
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}
