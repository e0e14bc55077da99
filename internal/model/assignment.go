package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Depth selects how aggressively a run digs per cycle
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthComprehensive Depth = "comprehensive"
)

// Assignment is the immutable input of a research run
type Assignment struct {
	Objective   string      `yaml:"objective" json:"objective"`
	TargetCount int         `yaml:"target_count" json:"target_count"`
	Depth       Depth       `yaml:"depth,omitempty" json:"depth,omitempty"`
	Constraints Constraints `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	MaxCycles       int `yaml:"max_cycles,omitempty" json:"max_cycles,omitempty"`
	SourcesPerCycle int `yaml:"sources_per_cycle,omitempty" json:"sources_per_cycle,omitempty"`

	// ReportStyle: "bullets" (default) or "narrative"
	ReportStyle string `yaml:"report_style,omitempty" json:"report_style,omitempty"`
}

// Constraints narrow the search space of an assignment
type Constraints struct {
	Geography string   `yaml:"geography,omitempty" json:"geography,omitempty"`
	SizeRange string   `yaml:"size_range,omitempty" json:"size_range,omitempty"`
	Exclude   []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	// PreferredSources extends the configured lenient-category list for
	// this assignment only.
	PreferredSources []string `yaml:"preferred_sources,omitempty" json:"preferred_sources,omitempty"`
}

// LoadAssignment reads and validates an assignment YAML file
func LoadAssignment(path string) (*Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assignment: %w", err)
	}

	var a Assignment
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, &InvalidAssignmentError{Reason: fmt.Sprintf("parse YAML: %v", err)}
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	return &a, nil
}

// Validate checks the assignment schema and fails fast on bad input
func (a *Assignment) Validate() error {
	if strings.TrimSpace(a.Objective) == "" {
		return &InvalidAssignmentError{Reason: "objective is required"}
	}
	if a.TargetCount <= 0 {
		return &InvalidAssignmentError{Reason: fmt.Sprintf("target_count must be positive, got %d", a.TargetCount)}
	}
	if a.MaxCycles < 0 {
		return &InvalidAssignmentError{Reason: fmt.Sprintf("max_cycles must not be negative, got %d", a.MaxCycles)}
	}
	if a.SourcesPerCycle < 0 {
		return &InvalidAssignmentError{Reason: fmt.Sprintf("sources_per_cycle must not be negative, got %d", a.SourcesPerCycle)}
	}
	switch a.Depth {
	case "", DepthQuick, DepthComprehensive:
	default:
		return &InvalidAssignmentError{Reason: fmt.Sprintf("unknown depth: %q", a.Depth)}
	}
	return nil
}

// ApplyDefaults fills unset budgets from configuration
func (a *Assignment) ApplyDefaults(cfg *ResearchConfig) {
	if a.MaxCycles == 0 {
		a.MaxCycles = cfg.MaxCycles
	}
	if a.SourcesPerCycle == 0 {
		a.SourcesPerCycle = cfg.SourcesPerCycle
	}
	if a.Depth == "" {
		a.Depth = DepthComprehensive
	}
	if a.Depth == DepthQuick && a.MaxCycles > 2 {
		a.MaxCycles = 2
	}
}

// Signature returns a stable identifier derived from the objective and
// constraints. Checkpoints are keyed by it, so an unrelated assignment
// can never resume from a stale snapshot. Budgets are deliberately not
// part of the signature: raising max_cycles on a rerun should resume,
// not restart.
func (a *Assignment) Signature() string {
	h := sha256.New()
	fmt.Fprintln(h, strings.TrimSpace(strings.ToLower(a.Objective)))
	fmt.Fprintln(h, a.TargetCount)
	fmt.Fprintln(h, strings.ToLower(a.Constraints.Geography))
	fmt.Fprintln(h, strings.ToLower(a.Constraints.SizeRange))

	excl := append([]string(nil), a.Constraints.Exclude...)
	for i := range excl {
		excl[i] = strings.ToLower(excl[i])
	}
	sort.Strings(excl)
	fmt.Fprintln(h, strings.Join(excl, ","))

	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Title returns a short human-readable handle for logs and filenames
func (a *Assignment) Title() string {
	words := strings.Fields(a.Objective)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}
