package model

import "time"

// Snapshot is the read-only view of the finding store handed to the
// report compiler, segmented into evidence tiers.
type Snapshot struct {
	RunID      string     `json:"run_id"`
	Assignment Assignment `json:"assignment"`
	State      RunState   `json:"state"`

	Hot  []Finding `json:"hot"`
	Warm []Finding `json:"warm"`
	Cold []Finding `json:"cold"`

	Cycles  []Cycle       `json:"cycles"`
	Elapsed time.Duration `json:"elapsed_ns"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Total returns the number of findings across all tiers
func (s *Snapshot) Total() int {
	return len(s.Hot) + len(s.Warm) + len(s.Cold)
}
