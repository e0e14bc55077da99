// Package store holds the cumulative, deduplicated set of findings for
// a run. All mutation funnels through Merge; the query generator and
// report compiler only ever read.
package store

import (
	"sort"
	"strings"
	"time"

	"prospector/internal/model"
)

// MergeOutcome reports what a Merge call did
type MergeOutcome int

const (
	MergeCreated MergeOutcome = iota
	MergeUpdated
	MergeNoop
)

// Store is the finding store. Not safe for concurrent use; the
// orchestrator is the only writer and serializes merges within a cycle.
type Store struct {
	entities map[string]*model.Finding
	order    []string // identity keys in first-seen order, for determinism
}

// New creates an empty store
func New() *Store {
	return &Store{
		entities: make(map[string]*model.Finding),
	}
}

// Restore rebuilds a store from a checkpoint's finding list. Merging in
// saved order reproduces the exact pre-crash state.
func Restore(findings []model.Finding) *Store {
	s := New()
	for _, f := range findings {
		s.Merge(f)
	}
	return s
}

// Len returns the number of distinct entities
func (s *Store) Len() int {
	return len(s.entities)
}

// Keys returns identity keys in first-seen order
func (s *Store) Keys() []string {
	return append([]string(nil), s.order...)
}

// Get returns the entity for an identity key
func (s *Store) Get(key string) (*model.Finding, bool) {
	f, ok := s.entities[key]
	return f, ok
}

// All returns copies of every finding in first-seen order
func (s *Store) All() []model.Finding {
	out := make([]model.Finding, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, cloneFinding(s.entities[key]))
	}
	return out
}

// Merge folds a candidate record into the store. Matching is by
// identity key; merging the same record twice is a no-op the second
// time.
func (s *Store) Merge(candidate model.Finding) MergeOutcome {
	key := candidate.IdentityKey()
	if key == "" {
		return MergeNoop
	}

	key, existing := s.match(key)
	if existing == nil {
		f := cloneFinding(&candidate)
		s.entities[key] = &f
		s.order = append(s.order, key)
		return MergeCreated
	}

	changed := false

	// Field union: keep the existing non-empty value unless the new
	// record's confidence strictly exceeds it.
	for name, value := range candidate.Attributes {
		if value == "" {
			continue
		}
		newConf := candidate.AttrConfidence[name]
		oldConf := existing.AttrConfidence[name]

		if existing.Attributes[name] == "" || newConf > oldConf {
			if existing.Attributes == nil {
				existing.Attributes = make(map[string]string)
			}
			if existing.AttrConfidence == nil {
				existing.AttrConfidence = make(map[string]float64)
			}
			if existing.Attributes[name] != value || existing.AttrConfidence[name] != newConf {
				existing.Attributes[name] = value
				if newConf > oldConf {
					existing.AttrConfidence[name] = newConf
				}
				changed = true
			}
		}
	}

	for _, c := range candidate.Contacts {
		if mergeContact(existing, c) {
			changed = true
		}
	}

	for _, sig := range candidate.Signals {
		sig = strings.TrimSpace(sig)
		if sig == "" || containsString(existing.Signals, sig) {
			continue
		}
		existing.Signals = append(existing.Signals, sig)
		changed = true
	}

	for _, p := range candidate.Provenance {
		if containsProvenance(existing.Provenance, p) {
			continue
		}
		existing.Provenance = append(existing.Provenance, p)
		changed = true
	}

	if changed {
		return MergeUpdated
	}
	return MergeNoop
}

// match resolves a candidate key against stored entities. An exact hit
// wins; otherwise a candidate without a location merges into the single
// stored entity carrying the same name, and a candidate with a location
// upgrades a location-less entity under the more specific key. Two
// stored entities with the same name but different locations stay
// distinct.
func (s *Store) match(key string) (string, *model.Finding) {
	if f, ok := s.entities[key]; ok {
		return key, f
	}

	name, _, hasLoc := strings.Cut(key, "|")

	var matchKey string
	matches := 0
	for _, k := range s.order {
		n, _, _ := strings.Cut(k, "|")
		if n == name {
			matchKey = k
			matches++
		}
	}
	if matches != 1 {
		return key, nil
	}

	if hasLoc && !strings.Contains(matchKey, "|") {
		// Re-key under the more specific identity
		f := s.entities[matchKey]
		delete(s.entities, matchKey)
		s.entities[key] = f
		for i, k := range s.order {
			if k == matchKey {
				s.order[i] = key
				break
			}
		}
		return key, f
	}

	if hasLoc {
		// Same name, different known location: distinct entity
		return key, nil
	}

	return matchKey, s.entities[matchKey]
}

// mergeContact appends a contact or enriches an existing one matched by
// normalized name
func mergeContact(f *model.Finding, c model.Contact) bool {
	if strings.TrimSpace(c.Name) == "" {
		return false
	}

	for i := range f.Contacts {
		if model.IdentityKey(f.Contacts[i].Name, "") != model.IdentityKey(c.Name, "") {
			continue
		}
		changed := false
		if f.Contacts[i].Title == "" && c.Title != "" {
			f.Contacts[i].Title = c.Title
			changed = true
		}
		if f.Contacts[i].Email == "" && c.Email != "" {
			f.Contacts[i].Email = c.Email
			changed = true
		}
		return changed
	}

	f.Contacts = append(f.Contacts, c)
	return true
}

// Snapshot returns a read-only tier-segmented view for the report
// compiler. Within a tier, findings keep first-seen order except Hot,
// which sorts by corroboration strength.
func (s *Store) Snapshot(runID string, a model.Assignment, state model.RunState, cycles []model.Cycle, elapsed time.Duration) *model.Snapshot {
	snap := &model.Snapshot{
		RunID:       runID,
		Assignment:  a,
		State:       state,
		Cycles:      append([]model.Cycle(nil), cycles...),
		Elapsed:     elapsed,
		GeneratedAt: time.Now().UTC(),
	}

	for _, key := range s.order {
		f := cloneFinding(s.entities[key])
		switch f.Tier() {
		case model.TierHot:
			snap.Hot = append(snap.Hot, f)
		case model.TierWarm:
			snap.Warm = append(snap.Warm, f)
		default:
			snap.Cold = append(snap.Cold, f)
		}
	}

	sort.SliceStable(snap.Hot, func(i, j int) bool {
		return snap.Hot[i].SourceCount() > snap.Hot[j].SourceCount()
	})

	return snap
}

func cloneFinding(f *model.Finding) model.Finding {
	out := *f
	if f.Attributes != nil {
		out.Attributes = make(map[string]string, len(f.Attributes))
		for k, v := range f.Attributes {
			out.Attributes[k] = v
		}
	}
	if f.AttrConfidence != nil {
		out.AttrConfidence = make(map[string]float64, len(f.AttrConfidence))
		for k, v := range f.AttrConfidence {
			out.AttrConfidence[k] = v
		}
	}
	out.Contacts = append([]model.Contact(nil), f.Contacts...)
	out.Signals = append([]string(nil), f.Signals...)
	out.Provenance = append([]model.Provenance(nil), f.Provenance...)
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsProvenance(list []model.Provenance, p model.Provenance) bool {
	for _, v := range list {
		if v.URL == p.URL && v.Cycle == p.Cycle {
			return true
		}
	}
	return false
}
