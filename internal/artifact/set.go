package artifact

import "fmt"

// Set holds the artifacts produced during one pipeline run, keyed by name and
// kept in insertion order. Entries are write-once.
type Set struct {
	byName map[string]Artifact
	order  []string
}

// NewSet builds a set from the provided artifacts.
func NewSet(items ...Artifact) (*Set, error) {
	s := &Set{byName: make(map[string]Artifact, len(items))}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add records a new artifact. Adding a name twice is an error.
func (s *Set) Add(a Artifact) error {
	if s.byName == nil {
		s.byName = make(map[string]Artifact)
	}
	name := a.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("artifact %s already produced in this run", name)
	}
	s.byName[name] = a
	s.order = append(s.order, name)
	return nil
}

// Get returns the artifact matching spec.
func (s *Set) Get(spec Spec) (Artifact, bool) {
	if s == nil {
		return Artifact{}, false
	}
	a, ok := s.byName[spec.Name()]
	return a, ok
}

// Len reports the number of artifacts in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns artifacts in insertion order.
func (s *Set) All() []Artifact {
	if s == nil {
		return nil
	}
	out := make([]Artifact, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}
