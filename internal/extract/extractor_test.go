package extract

import (
	"context"
	"errors"
	"testing"
	"unicode/utf8"

	"prospector/internal/llm"
	"prospector/internal/model"
)

type scriptedProvider struct {
	responses []string
	err       error
	calls     int
}

func (p *scriptedProvider) Name() string                       { return "scripted" }
func (p *scriptedProvider) IsAvailable(_ context.Context) bool { return true }

func (p *scriptedProvider) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	return &llm.CompletionResponse{Text: p.responses[i], Model: "scripted"}, nil
}

func testSource() *model.CandidateSource {
	return &model.CandidateSource{
		URL:   "https://example.com/acme",
		Title: "Acme Robotics",
		Query: "industrial automation bavaria",
		Text:  "Acme Robotics, Munich. CTO Jane Doe. Hiring platform engineers.",
	}
}

func testAssignment() *model.Assignment {
	return &model.Assignment{Objective: "find industrial automation companies in Bavaria", TargetCount: 5}
}

const goodResponse = `{
  "entities": [
    {
      "kind": "company",
      "name": "Acme Robotics",
      "attributes": {"location": "Munich", "industry": "industrial automation"},
      "contacts": [{"name": "Jane Doe", "title": "CTO"}],
      "signals": ["hiring platform engineers"],
      "confidence": 0.8
    }
  ]
}`

func TestExtract_ValidResponse(t *testing.T) {
	x := New(&scriptedProvider{responses: []string{goodResponse}}, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 2)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}

	f := findings[0]
	if f.Name != "Acme Robotics" || f.Kind != model.KindCompany {
		t.Errorf("unexpected identity: %+v", f)
	}
	if f.Attributes[model.AttrLocation] != "Munich" {
		t.Errorf("location not extracted: %v", f.Attributes)
	}
	if len(f.Provenance) != 1 || f.Provenance[0].Cycle != 2 || f.Provenance[0].URL != "https://example.com/acme" {
		t.Errorf("provenance not attached: %+v", f.Provenance)
	}
	if f.AttrConfidence[model.AttrLocation] != 0.8 {
		t.Errorf("attribute confidence not propagated: %v", f.AttrConfidence)
	}
}

func TestExtract_ToleratesSurroundingProse(t *testing.T) {
	wrapped := "Sure, here is what I found:\n```json\n" + goodResponse + "\n```\nLet me know if you need more."
	x := New(&scriptedProvider{responses: []string{wrapped}}, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("expected 1 finding, got %d", len(findings))
	}
}

func TestExtract_RetriesOnceThenSucceeds(t *testing.T) {
	p := &scriptedProvider{responses: []string{"this is not JSON at all", goodResponse}}
	x := New(p, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)
	if err != nil {
		t.Fatalf("extract should succeed on retry: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("expected 2 completion calls, got %d", p.calls)
	}
	if len(findings) != 1 {
		t.Errorf("expected 1 finding, got %d", len(findings))
	}
}

func TestExtract_MalformedTwiceDegradesToNoFindings(t *testing.T) {
	p := &scriptedProvider{responses: []string{"garbage", "still garbage"}}
	x := New(p, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)

	var malformed *model.MalformedExtractionError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedExtractionError, got %v", err)
	}
	if malformed.URL != "https://example.com/acme" {
		t.Errorf("error should carry the source URL: %+v", malformed)
	}
	if len(findings) != 0 {
		t.Errorf("malformed extraction must yield zero findings, got %d", len(findings))
	}
	if p.calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", p.calls)
	}
}

func TestExtract_NoRelevantEntity(t *testing.T) {
	x := New(&scriptedProvider{responses: []string{`{"none": true, "entities": []}`}}, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)
	if err != nil {
		t.Fatalf("explicit none is not an error: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %d", len(findings))
	}
}

func TestExtract_DropsInvalidRecords(t *testing.T) {
	response := `{"entities": [
		{"kind": "company", "name": "", "confidence": 0.9},
		{"kind": "spaceship", "name": "Rocinante", "confidence": 0.9},
		{"kind": "company", "name": "Kept Co", "confidence": 0.9},
		{"kind": "company", "name": "Weird Confidence", "confidence": 7}
	]}`
	x := New(&scriptedProvider{responses: []string{response}}, 6000)

	findings, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("expected nameless and unknown-kind records dropped, got %d findings", len(findings))
	}
	if findings[0].Name != "Kept Co" {
		t.Errorf("unexpected finding order: %+v", findings)
	}
	if got := findings[1].Provenance[0].Confidence; got != 0.5 {
		t.Errorf("out-of-range confidence should clamp to 0.5, got %v", got)
	}
}

func TestExtract_ProviderFailure(t *testing.T) {
	x := New(&scriptedProvider{err: errors.New("model crashed")}, 6000)
	_, err := x.Extract(context.Background(), testSource(), testAssignment(), 0)

	var unavailable *model.CollaboratorUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected CollaboratorUnavailableError, got %v", err)
	}
}

func TestExtract_TruncatesLongSources(t *testing.T) {
	long := testSource()
	for len(long.Text) < 50000 {
		long.Text += " more and more page text"
	}

	var seenPrompt string
	p := &promptCapture{inner: &scriptedProvider{responses: []string{goodResponse}}, sink: &seenPrompt}
	x := New(p, 2000)

	if _, err := x.Extract(context.Background(), long, testAssignment(), 0); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(seenPrompt) > 4000 {
		t.Errorf("prompt should be bounded by the char budget, got %d chars", len(seenPrompt))
	}
}

func TestExtract_TruncationKeepsRunesIntact(t *testing.T) {
	src := testSource()
	src.Text = "Büro München GmbH sucht Ingenieure für Automatisierungstechnik üüüü"

	// Sweep the cut point across the text so some budget lands inside a
	// multi-byte rune.
	for budget := 8; budget < len(src.Text); budget++ {
		var seenPrompt string
		p := &promptCapture{inner: &scriptedProvider{responses: []string{goodResponse}}, sink: &seenPrompt}
		x := New(p, budget)

		if _, err := x.Extract(context.Background(), src, testAssignment(), 0); err != nil {
			t.Fatalf("budget %d: extract: %v", budget, err)
		}
		if !utf8.ValidString(seenPrompt) {
			t.Fatalf("budget %d: truncation split a rune, prompt is not valid UTF-8", budget)
		}
	}
}

type promptCapture struct {
	inner llm.Provider
	sink  *string
}

func (p *promptCapture) Name() string                       { return p.inner.Name() }
func (p *promptCapture) IsAvailable(c context.Context) bool { return p.inner.IsAvailable(c) }

func (p *promptCapture) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	*p.sink = req.Prompt
	return p.inner.Complete(ctx, req)
}
