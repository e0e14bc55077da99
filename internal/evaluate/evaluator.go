// Package evaluate scores fetched sources before any extraction budget
// is spent on them. Rejected sources cost one cheap completion instead
// of a full extraction pass; on constrained hardware this bound is what
// keeps a cycle inside its time budget.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"prospector/internal/llm"
	"prospector/internal/model"
)

// Verdict is the evaluator's decision for one source
type Verdict struct {
	Score     float64
	Accepted  bool
	Reason    string
	Threshold float64
}

// Evaluator scores a source's relevance and quality on a 0-10 rubric
type Evaluator struct {
	provider llm.Provider
	cfg      model.EvaluationConfig

	// extra lenient categories from the assignment
	extraLenient []string

	// preview chars sent to the rubric; scoring does not need the full page
	previewChars int
}

// New creates an evaluator. Assignment preferred sources extend the
// configured lenient-category list for this run only.
func New(provider llm.Provider, cfg model.EvaluationConfig, a *model.Assignment) *Evaluator {
	return &Evaluator{
		provider:     provider,
		cfg:          cfg,
		extraLenient: a.Constraints.PreferredSources,
		previewChars: 1200,
	}
}

type rubricResponse struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Evaluate scores one candidate source against the assignment. LLM
// failures come back as *model.CollaboratorUnavailableError so the
// orchestrator can count consecutive failures.
func (e *Evaluator) Evaluate(ctx context.Context, src *model.CandidateSource, a *model.Assignment) (Verdict, error) {
	preview := src.Text
	if len(preview) > e.previewChars {
		preview = preview[:e.previewChars]
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		System: "You score web pages for a research assistant. Respond with JSON only.",
		Prompt: buildRubricPrompt(src, a, preview),
	})
	if err != nil {
		return Verdict{}, &model.CollaboratorUnavailableError{Collaborator: "llm", Err: err}
	}

	score := parseScore(resp.Text)
	threshold := e.thresholdFor(src.URL)

	v := Verdict{
		Score:     score,
		Threshold: threshold,
		Accepted:  score >= threshold,
	}
	if !v.Accepted {
		v.Reason = fmt.Sprintf("score %.1f below threshold %.1f", score, threshold)
	}
	return v, nil
}

// thresholdFor picks the acceptance threshold for a URL. Sources in a
// lenient category (configured, not hard-coded) clear a lower bar.
func (e *Evaluator) thresholdFor(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	for _, pattern := range e.cfg.LenientCategories {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return e.cfg.LenientThreshold
		}
	}
	for _, pattern := range e.extraLenient {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return e.cfg.LenientThreshold
		}
	}
	return e.cfg.AcceptThreshold
}

func buildRubricPrompt(src *model.CandidateSource, a *model.Assignment, preview string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research objective: %s\n", a.Objective)
	if a.Constraints.Geography != "" {
		fmt.Fprintf(&b, "Geography constraint: %s\n", a.Constraints.Geography)
	}
	fmt.Fprintf(&b, "Search query that found this page: %s\n", src.Query)
	fmt.Fprintf(&b, "Page title: %s\n", src.Title)
	fmt.Fprintf(&b, "Page preview:\n%s\n\n", preview)
	b.WriteString(`Rate this page 0-10 for usefulness to the objective. Consider:
- topical relevance to the objective
- concreteness: does it name companies, people, numbers, dates?
- recency: does the content look current?

Respond with JSON: {"score": <0-10>, "reason": "<one sentence>"}`)
	return b.String()
}

// parseScore pulls a 0-10 score from the model response. JSON first;
// when the model ignores the shape, fall back to the first number in
// the text, and to a neutral 5 when even that fails.
func parseScore(text string) float64 {
	if obj, err := llm.FirstJSONObject(text); err == nil {
		var parsed rubricResponse
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			return clampScore(parsed.Score)
		}
	}

	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}) {
		if n, err := strconv.ParseFloat(field, 64); err == nil {
			return clampScore(n)
		}
	}

	return 5
}

func clampScore(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}
