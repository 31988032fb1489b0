package procedure

import (
	"fmt"
	"sort"
	"strings"
)

// Action is the remote call chosen for a script.
type Action string

const (
	ActionCreate  Action = "create"
	ActionReplace Action = "replace"
)

// Snapshot is a point-in-time listing of the procedure identifiers deployed
// in one container. It is built once per container per run and never
// mutated afterwards, so it is safe to share across the deploy fan-out.
type Snapshot struct {
	ids    map[string]struct{}
	folded map[string][]string
}

// NewSnapshot builds a snapshot from a remote listing. Duplicate entries
// are collapsed.
func NewSnapshot(ids []string) *Snapshot {
	s := &Snapshot{
		ids:    make(map[string]struct{}, len(ids)),
		folded: make(map[string][]string, len(ids)),
	}
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			continue
		}
		s.ids[id] = struct{}{}
		key := FoldID(id)
		s.folded[key] = append(s.folded[key], id)
	}
	for key := range s.folded {
		sort.Strings(s.folded[key])
	}
	return s
}

// Contains reports whether id is deployed exactly as given.
func (s *Snapshot) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of distinct identifiers in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.ids)
}

// IDs returns the identifiers in sorted order.
func (s *Snapshot) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Classify decides between create and replace for a script identifier.
//
// An identifier that matches two or more snapshot entries under case
// folding cannot be classified and yields an *AmbiguousIDError.
func (s *Snapshot) Classify(id string) (Action, error) {
	if matches := s.folded[FoldID(id)]; len(matches) > 1 {
		return "", &AmbiguousIDError{ID: id, Matches: append([]string(nil), matches...)}
	}
	if s.Contains(id) {
		return ActionReplace, nil
	}
	return ActionCreate, nil
}

// AmbiguousIDError reports a script identifier that appears in the snapshot
// under multiple casings.
type AmbiguousIDError struct {
	ID      string
	Matches []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("identifier %q is ambiguous: remote has %s", e.ID, strings.Join(e.Matches, ", "))
}
