package model

import "time"

// Cycle records one full generate-search-fetch-evaluate-extract-merge
// iteration. It is immutable once closed by the orchestrator.
type Cycle struct {
	Index   int      `json:"index"`
	Queries []string `json:"queries"`
	Visited []string `json:"visited,omitempty"`

	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`

	// NewFindings counts entities first created during this cycle.
	NewFindings int `json:"new_findings"`

	// Summary is a one-line digest of what the cycle produced.
	Summary string `json:"summary,omitempty"`

	StartedAt time.Time `json:"started_at"`
	ClosedAt  time.Time `json:"closed_at"`
}

// CandidateSource is a fetched page under consideration during a cycle.
// It is never persisted; only extracted findings survive it.
type CandidateSource struct {
	URL     string
	Title   string
	Snippet string
	Query   string
	Text    string

	Score        float64
	Accepted     bool
	RejectReason string
}
