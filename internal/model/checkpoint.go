package model

import "time"

// CheckpointVersion is bumped on incompatible schema changes. Minor
// additions stay backward-readable because unknown JSON fields are
// ignored on load.
const CheckpointVersion = 1

// RunState is the orchestrator state machine state
type RunState string

const (
	StateInit     RunState = "init"
	StateRunning  RunState = "running"
	StatePaused   RunState = "paused"
	StateComplete RunState = "complete"
	StateAborted  RunState = "aborted"
	StateFailed   RunState = "failed"
)

// Checkpoint is the durable snapshot written at the end of every cycle.
// A crash between cycles loses at most the in-progress cycle's partial
// work, never a previously closed cycle.
type Checkpoint struct {
	Version   int    `json:"version"`
	RunID     string `json:"run_id"`
	Signature string `json:"signature"`

	State      RunState   `json:"state"`
	Assignment Assignment `json:"assignment"`
	Cycles     []Cycle    `json:"cycles"`
	Findings   []Finding  `json:"findings"`

	// IssuedQueries is the global query history of the run. The query
	// generator consults it so no query repeats across cycles.
	IssuedQueries []string `json:"issued_queries"`

	Elapsed   time.Duration `json:"elapsed_ns"`
	UpdatedAt time.Time     `json:"updated_at"`
}
