// Package query produces each cycle's search queries. Cycle 0 hunts
// for new entities; later cycles shift budget toward filling attribute
// gaps and corroborating what was already found. That progressive
// refinement is what separates a run from single-pass search.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"prospector/internal/llm"
	"prospector/internal/model"
	"prospector/internal/store"
)

// Generator builds a cycle's query batch
type Generator struct {
	provider llm.Provider
}

// New creates a generator
func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Gap describes a missing attribute across found entities, fed back
// into gap-fill queries
type Gap struct {
	Entity  *model.Finding
	Missing string
}

// Generate returns up to budget distinct queries for the given cycle.
// No query ever repeats one in history (the run's full issued set).
// The language model proposes discovery phrasings; everything else is
// deterministic, and a model failure degrades to templates alone.
func (g *Generator) Generate(ctx context.Context, a *model.Assignment, st *store.Store, history map[string]bool, cycle, budget int) []string {
	if budget <= 0 {
		budget = 5
	}

	discoveryShare := budget
	if cycle > 0 && st.Len() > 0 {
		// Later cycles: roughly a third each for discovery, gap-fill
		// and corroboration, remainder to gap-fill
		discoveryShare = budget / 3
		if discoveryShare == 0 {
			discoveryShare = 1
		}
	}

	seen := make(map[string]bool, len(history))
	for q := range history {
		seen[normalizeQuery(q)] = true
	}

	var out []string
	add := func(q string) bool {
		q = strings.TrimSpace(q)
		if q == "" {
			return false
		}
		key := normalizeQuery(q)
		if seen[key] {
			return false
		}
		seen[key] = true
		out = append(out, q)
		return len(out) >= budget
	}

	// Axis 1: direct entity discovery
	for _, q := range g.discoveryQueries(ctx, a, st, cycle) {
		if len(out) >= discoveryShare {
			break
		}
		if add(q) {
			return out
		}
	}

	if cycle > 0 {
		// Axis 2: attribute gap-filling
		for _, gap := range DetectGaps(st) {
			if add(gapQuery(gap)) {
				return out
			}
		}

		// Axis 3: corroboration of high-value candidates
		for _, f := range st.All() {
			if f.Tier() == model.TierCold {
				continue
			}
			if add(corroborationQuery(&f)) {
				return out
			}
		}
	}

	// Top up with remaining discovery phrasings so early cycles always
	// fill their budget
	for _, q := range g.discoveryQueries(ctx, a, st, cycle) {
		if add(q) {
			return out
		}
	}
	for i := 0; len(out) < budget && i < budget; i++ {
		if add(fmt.Sprintf("%s examples %d", a.Objective, cycle*budget+i+1)) {
			return out
		}
	}

	return out
}

// discoveryQueries proposes entity-discovery phrasings: deterministic
// templates first, then model suggestions when available
func (g *Generator) discoveryQueries(ctx context.Context, a *model.Assignment, st *store.Store, cycle int) []string {
	queries := templateQueries(a)

	if g.provider != nil {
		queries = append(queries, g.modelQueries(ctx, a, st, cycle)...)
	}

	return queries
}

func templateQueries(a *model.Assignment) []string {
	obj := strings.TrimSpace(a.Objective)
	geo := strings.TrimSpace(a.Constraints.Geography)

	queries := []string{obj}
	if geo != "" {
		queries = append(queries,
			fmt.Sprintf("%s %s", obj, geo),
			fmt.Sprintf("list of %s in %s", obj, geo),
		)
	} else {
		queries = append(queries, fmt.Sprintf("list of %s", obj))
	}
	if a.Constraints.SizeRange != "" {
		queries = append(queries, fmt.Sprintf("%s %s employees", obj, a.Constraints.SizeRange))
	}
	queries = append(queries, fmt.Sprintf("%s news", obj))

	return queries
}

type queryProposal struct {
	Queries []string `json:"queries"`
}

// modelQueries asks the language model for fresh phrasings. Failures
// and malformed output are silently dropped; templates carry the cycle.
func (g *Generator) modelQueries(ctx context.Context, a *model.Assignment, st *store.Store, cycle int) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research objective: %s\n", a.Objective)
	if a.Constraints.Geography != "" {
		fmt.Fprintf(&b, "Geography: %s\n", a.Constraints.Geography)
	}
	if names := knownNames(st, 10); len(names) > 0 {
		fmt.Fprintf(&b, "Already found (do not repeat): %s\n", strings.Join(names, "; "))
	}
	fmt.Fprintf(&b, "\nPropose 5 diverse web search queries to discover NEW entities for cycle %d.\n", cycle+1)
	b.WriteString(`Respond with JSON: {"queries": ["...", "..."]}`)

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		System: "You write web search queries for a research assistant. Respond with JSON only.",
		Prompt: b.String(),
	})
	if err != nil {
		return nil
	}

	obj, err := llm.FirstJSONObject(resp.Text)
	if err != nil {
		// Some models return a bare array
		arr, aerr := llm.FirstJSONArray(resp.Text)
		if aerr != nil {
			return nil
		}
		var queries []string
		if json.Unmarshal([]byte(arr), &queries) != nil {
			return nil
		}
		return queries
	}

	var parsed queryProposal
	if json.Unmarshal([]byte(obj), &parsed) != nil {
		return nil
	}
	return parsed.Queries
}

// DetectGaps lists missing required attributes across stored entities,
// most recently found first so fresh discoveries get enriched early
func DetectGaps(st *store.Store) []Gap {
	findings := st.All()
	var gaps []Gap

	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		if f.Kind != model.KindCompany {
			continue
		}
		if f.Attributes[model.AttrLocation] == "" {
			gaps = append(gaps, Gap{Entity: &findings[i], Missing: model.AttrLocation})
		}
		if len(f.Contacts) == 0 {
			gaps = append(gaps, Gap{Entity: &findings[i], Missing: "decision-maker"})
		}
		if len(f.Signals) == 0 {
			gaps = append(gaps, Gap{Entity: &findings[i], Missing: "signal"})
		}
	}

	return gaps
}

func gapQuery(gap Gap) string {
	name := gap.Entity.Name
	location := gap.Entity.Attributes[model.AttrLocation]

	switch gap.Missing {
	case model.AttrLocation:
		return fmt.Sprintf("%q headquarters location", name)
	case "decision-maker":
		if location != "" {
			return fmt.Sprintf("%q %s leadership team CTO", name, location)
		}
		return fmt.Sprintf("%q leadership team CTO", name)
	case "signal":
		return fmt.Sprintf("%q hiring OR expansion OR migration", name)
	default:
		return fmt.Sprintf("%q %s", name, gap.Missing)
	}
}

func corroborationQuery(f *model.Finding) string {
	return fmt.Sprintf("%q reviews news", f.Name)
}

func knownNames(st *store.Store, max int) []string {
	var names []string
	for _, f := range st.All() {
		names = append(names, f.Name)
		if len(names) == max {
			break
		}
	}
	return names
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
