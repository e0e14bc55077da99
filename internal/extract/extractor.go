// Package extract turns accepted source text into validated structured
// findings via the language-model collaborator. The model's output is
// untrusted: everything crosses a schema-validating boundary that
// yields typed errors, never panics into the cycle loop.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"prospector/internal/llm"
	"prospector/internal/model"
)

// Extractor is the extraction adapter
type Extractor struct {
	provider llm.Provider

	// maxChars truncates source text before prompting. The dominant
	// cost control for local models.
	maxChars int
}

// New creates an extractor
func New(provider llm.Provider, maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = 6000
	}
	return &Extractor{provider: provider, maxChars: maxChars}
}

// wire shapes the model is asked to produce
type extractionResponse struct {
	None     bool           `json:"none,omitempty"`
	Entities []entityRecord `json:"entities"`
}

type entityRecord struct {
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Contacts   []model.Contact   `json:"contacts,omitempty"`
	Signals    []string          `json:"signals,omitempty"`
	Confidence float64           `json:"confidence"`
}

// Extract pulls structured findings out of one accepted source. A
// malformed response is retried once with a stricter instruction; a
// second failure returns *model.MalformedExtractionError and zero
// findings. Provider failures return *model.CollaboratorUnavailableError.
func (x *Extractor) Extract(ctx context.Context, src *model.CandidateSource, a *model.Assignment, cycle int) ([]model.Finding, error) {
	text := src.Text
	if len(text) > x.maxChars {
		cut := x.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	prompt := buildExtractionPrompt(src, a, text)

	var lastDetail string
	for attempt := 0; attempt < 2; attempt++ {
		p := prompt
		if attempt == 1 {
			p += "\n\nYour previous reply was not valid JSON. Reply with ONLY the JSON object, no commentary."
		}

		resp, err := x.provider.Complete(ctx, llm.CompletionRequest{
			System: "You extract structured facts for a research assistant. Respond with JSON only.",
			Prompt: p,
		})
		if err != nil {
			return nil, &model.CollaboratorUnavailableError{Collaborator: "llm", Err: err}
		}

		parsed, err := parseExtraction(resp.Text)
		if err != nil {
			lastDetail = err.Error()
			continue
		}

		return toFindings(parsed, src, cycle), nil
	}

	return nil, &model.MalformedExtractionError{URL: src.URL, Detail: lastDetail}
}

func parseExtraction(text string) (*extractionResponse, error) {
	obj, err := llm.FirstJSONObject(text)
	if err != nil {
		return nil, err
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}

	return &parsed, nil
}

// toFindings validates records and attaches provenance. Nameless or
// unknown-kind records are dropped, not errors: partial extraction from
// a messy page is still worth keeping.
func toFindings(parsed *extractionResponse, src *model.CandidateSource, cycle int) []model.Finding {
	if parsed.None {
		return nil
	}

	var findings []model.Finding
	for _, rec := range parsed.Entities {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			continue
		}

		kind := model.Kind(strings.ToLower(strings.TrimSpace(rec.Kind)))
		switch kind {
		case model.KindCompany, model.KindContact:
		case "":
			kind = model.KindCompany
		default:
			continue
		}

		confidence := rec.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}

		f := model.Finding{
			Kind:       kind,
			Name:       name,
			Attributes: make(map[string]string, len(rec.Attributes)),
			Contacts:   sanitizeContacts(rec.Contacts),
			Signals:    sanitizeStrings(rec.Signals),
			Provenance: []model.Provenance{{
				URL:        src.URL,
				Cycle:      cycle,
				Confidence: confidence,
			}},
		}

		f.AttrConfidence = make(map[string]float64)
		for k, v := range rec.Attributes {
			k = strings.ToLower(strings.TrimSpace(k))
			v = strings.TrimSpace(v)
			if k == "" || v == "" {
				continue
			}
			f.Attributes[k] = v
			f.AttrConfidence[k] = confidence
		}

		findings = append(findings, f)
	}

	return findings
}

func sanitizeContacts(contacts []model.Contact) []model.Contact {
	var out []model.Contact
	for _, c := range contacts {
		c.Name = strings.TrimSpace(c.Name)
		c.Title = strings.TrimSpace(c.Title)
		c.Email = strings.TrimSpace(c.Email)
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sanitizeStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildExtractionPrompt(src *model.CandidateSource, a *model.Assignment, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research objective: %s\n", a.Objective)
	if a.Constraints.Geography != "" {
		fmt.Fprintf(&b, "Geography constraint: %s\n", a.Constraints.Geography)
	}
	if len(a.Constraints.Exclude) > 0 {
		fmt.Fprintf(&b, "Exclude: %s\n", strings.Join(a.Constraints.Exclude, ", "))
	}
	fmt.Fprintf(&b, "\nSource URL: %s\nSource title: %s\nSource text:\n%s\n\n", src.URL, src.Title, text)
	b.WriteString(`Extract every company or person relevant to the objective.

Respond with JSON in exactly this shape:
{
  "entities": [
    {
      "kind": "company",
      "name": "...",
      "attributes": {"location": "...", "industry": "...", "size": "...", "website": "..."},
      "contacts": [{"name": "...", "title": "...", "email": "..."}],
      "signals": ["specific need or pain indicator found in the text"],
      "confidence": 0.0
    }
  ]
}

Omit attributes you cannot find. Set confidence between 0 and 1.
If the text contains no relevant entity, respond with {"none": true, "entities": []}.`)
	return b.String()
}
