package query

import (
	"context"
	"strings"
	"testing"

	"prospector/internal/llm"
	"prospector/internal/model"
	"prospector/internal/store"
)

type scriptedProvider struct {
	responses []string
	calls     int
	err       error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return &llm.CompletionResponse{Text: p.responses[i]}, nil
}

func (p *scriptedProvider) IsAvailable(_ context.Context) bool { return true }

func testAssignment() *model.Assignment {
	return &model.Assignment{
		Objective:   "mid-size logistics companies adopting warehouse robotics",
		TargetCount: 20,
		Constraints: model.Constraints{Geography: "Benelux"},
	}
}

func TestGenerateFillsBudgetWithoutProvider(t *testing.T) {
	g := New(nil)
	queries := g.Generate(context.Background(), testAssignment(), store.New(), map[string]bool{}, 0, 5)

	if len(queries) != 5 {
		t.Fatalf("expected 5 queries, got %d: %v", len(queries), queries)
	}
	seen := map[string]bool{}
	for _, q := range queries {
		key := normalizeQuery(q)
		if seen[key] {
			t.Errorf("duplicate query in one batch: %q", q)
		}
		seen[key] = true
	}
}

func TestGenerateNeverRepeatsHistory(t *testing.T) {
	g := New(nil)
	a := testAssignment()

	history := map[string]bool{}
	first := g.Generate(context.Background(), a, store.New(), history, 0, 5)
	for _, q := range first {
		history[q] = true
	}

	second := g.Generate(context.Background(), a, store.New(), history, 1, 5)
	for _, q := range second {
		if history[strings.ToLower(q)] || history[q] {
			t.Errorf("cycle 2 repeated query %q", q)
		}
	}

	// Case and spacing variants count as repeats too
	history["  MID-SIZE logistics   companies adopting warehouse robotics "] = true
	third := g.Generate(context.Background(), a, store.New(), history, 2, 5)
	for _, q := range third {
		if normalizeQuery(q) == normalizeQuery(a.Objective) {
			t.Errorf("normalization failed to catch repeated objective query")
		}
	}
}

func TestGenerateUsesProviderProposals(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`{"queries": ["robotics integrators Benelux 3PL", "warehouse automation case study Rotterdam"]}`,
	}}
	g := New(p)

	queries := g.Generate(context.Background(), testAssignment(), store.New(), map[string]bool{}, 0, 6)
	found := false
	for _, q := range queries {
		if q == "robotics integrators Benelux 3PL" {
			found = true
		}
	}
	if !found {
		t.Errorf("provider proposal missing from batch: %v", queries)
	}
}

func TestGenerateProviderFailureFallsBackToTemplates(t *testing.T) {
	p := &scriptedProvider{err: context.DeadlineExceeded}
	g := New(p)

	queries := g.Generate(context.Background(), testAssignment(), store.New(), map[string]bool{}, 0, 4)
	if len(queries) != 4 {
		t.Fatalf("expected templates to fill the budget, got %d queries", len(queries))
	}
}

func TestLaterCyclesIncludeGapAndCorroborationQueries(t *testing.T) {
	st := store.New()
	st.Merge(model.Finding{
		Kind: model.KindCompany,
		Name: "Flevo Fulfilment",
		Attributes: map[string]string{
			model.AttrLocation: "Almere, Netherlands",
		},
		Signals:    []string{"hiring automation engineers"},
		Provenance: []model.Provenance{{URL: "https://example.com/a", Cycle: 0, Confidence: 0.8}},
	})
	st.Merge(model.Finding{
		Kind:       model.KindCompany,
		Name:       "Gent Cargo Systems",
		Provenance: []model.Provenance{{URL: "https://example.com/b", Cycle: 0, Confidence: 0.6}},
	})

	g := New(nil)
	queries := g.Generate(context.Background(), testAssignment(), st, map[string]bool{}, 2, 8)

	var gapFill, corroborate bool
	for _, q := range queries {
		if strings.Contains(q, "headquarters location") {
			gapFill = true
		}
		if strings.Contains(q, "reviews news") {
			corroborate = true
		}
	}
	if !gapFill {
		t.Errorf("expected a gap-fill query for the location-less entity, got %v", queries)
	}
	if !corroborate {
		t.Errorf("expected a corroboration query for the warm entity, got %v", queries)
	}
}

func TestDetectGaps(t *testing.T) {
	st := store.New()
	st.Merge(model.Finding{
		Kind:       model.KindCompany,
		Name:       "Complete Co",
		Attributes: map[string]string{model.AttrLocation: "Utrecht"},
		Contacts:   []model.Contact{{Name: "Ana Vos", Title: "CTO", Email: "ana@complete.example"}},
		Signals:    []string{"expanding to second site"},
	})
	st.Merge(model.Finding{
		Kind: model.KindCompany,
		Name: "Sparse BV",
	})

	gaps := DetectGaps(st)
	byMissing := map[string]int{}
	for _, g := range gaps {
		if g.Entity.Name != "Sparse BV" {
			t.Errorf("unexpected gap for complete entity: %+v", g)
		}
		byMissing[g.Missing]++
	}
	if byMissing[model.AttrLocation] != 1 || byMissing["decision-maker"] != 1 || byMissing["signal"] != 1 {
		t.Errorf("gap counts wrong: %v", byMissing)
	}
}
