// Package report compiles a run snapshot into a tiered Markdown
// deliverable: hot leads first with full detail, warm leads as a
// compact table, cold mentions as a one-line list.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"prospector/internal/model"
)

// Style selects the report voice
const (
	StyleBullets   = "bullets"
	StyleNarrative = "narrative"
)

// Writer renders and persists reports
type Writer struct {
	dir           string
	includeFooter bool
}

// New creates a report writer for the given output configuration
func New(cfg model.OutputConfig) *Writer {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	return &Writer{dir: dir, includeFooter: cfg.IncludeFooter}
}

var reportFuncs = template.FuncMap{
	"attr": func(f model.Finding, name string) string {
		return f.Attributes[name]
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
	"join": strings.Join,
	"duration": func(d time.Duration) string {
		return d.Round(time.Second).String()
	},
}

const bulletsTemplate = `# Research Report: {{.Title}}

**Objective:** {{.Snapshot.Assignment.Objective}}
**Run:** {{.Snapshot.RunID}} ({{.Snapshot.State}})
**Findings:** {{.Snapshot.Total}} of {{.Snapshot.Assignment.TargetCount}} targeted, across {{len .Snapshot.Cycles}} cycles in {{duration .Snapshot.Elapsed}}
**Generated:** {{.Snapshot.GeneratedAt.Format "2006-01-02 15:04 MST"}}

## Hot Leads ({{len .Snapshot.Hot}})
{{if not .Snapshot.Hot}}
None this run.
{{end}}
{{- range .Snapshot.Hot}}
### {{.Name}}

- **Location:** {{orDash (attr . "location")}}
- **Industry:** {{orDash (attr . "industry")}}
- **Size:** {{orDash (attr . "size")}}
- **Website:** {{orDash (attr . "website")}}
{{- range .Contacts}}
- **Contact:** {{.Name}}{{if .Title}}, {{.Title}}{{end}}{{if .Email}} ({{.Email}}){{end}}
{{- end}}
{{- if .Signals}}
- **Signals:** {{join .Signals "; "}}
{{- end}}
- **Sources:**
{{- range .Provenance}}
  - {{.URL}} (cycle {{.Cycle}}, confidence {{printf "%.2f" .Confidence}})
{{- end}}
{{end}}
## Warm Leads ({{len .Snapshot.Warm}})
{{if .Snapshot.Warm}}
| Name | Location | Signals | Sources |
|------|----------|---------|---------|
{{- range .Snapshot.Warm}}
| {{.Name}} | {{orDash (attr . "location")}} | {{orDash (join .Signals "; ")}} | {{.SourceCount}} |
{{- end}}
{{else}}
None this run.
{{end}}
## Cold Mentions ({{len .Snapshot.Cold}})
{{if .Snapshot.Cold}}
{{- range .Snapshot.Cold}}
- {{.Name}}{{with attr . "location"}} ({{.}}){{end}}
{{- end}}
{{else}}
None this run.
{{end}}
## Cycle History

| Cycle | Queries | Accepted | Rejected | New findings |
|-------|---------|----------|----------|--------------|
{{- range .Snapshot.Cycles}}
| {{.Index}} | {{len .Queries}} | {{.Accepted}} | {{.Rejected}} | {{.NewFindings}} |
{{- end}}
{{if .Footer}}
---
*Compiled by prospector. Findings are machine-extracted from public web sources and should be verified before outreach.*
{{end}}`

const narrativeTemplate = `# Research Report: {{.Title}}

This report covers the objective "{{.Snapshot.Assignment.Objective}}". The run
({{.Snapshot.RunID}}) finished in state {{.Snapshot.State}} after
{{len .Snapshot.Cycles}} research cycles and {{duration .Snapshot.Elapsed}},
producing {{.Snapshot.Total}} findings against a target of
{{.Snapshot.Assignment.TargetCount}}.

## Strongest Candidates
{{if not .Snapshot.Hot}}
No finding reached the highest evidence tier this run.
{{end}}
{{- range .Snapshot.Hot}}
**{{.Name}}**{{with attr . "location"}}, based in {{.}}{{end}}, was corroborated by
{{.SourceCount}} independent sources.
{{- with .Signals}} Observed signals: {{join . "; "}}.{{end}}
{{- range .Contacts}} Point of contact: {{.Name}}{{if .Title}} ({{.Title}}){{end}}{{if .Email}}, {{.Email}}{{end}}.{{end}}
{{- with .Provenance}} Sources:{{range .}} {{.URL}}{{end}}.{{end}}
{{end}}
## Promising but Incomplete
{{if not .Snapshot.Warm}}
Nothing in this tier.
{{end}}
{{- range .Snapshot.Warm}}
**{{.Name}}** still lacks
{{- if not (attr . "location")}} a confirmed location,{{end}}
{{- if not .Contacts}} a named contact,{{end}}
{{- if not .Signals}} a need signal,{{end}} full corroboration.
{{- with .Signals}} Known signals: {{join . "; "}}.{{end}}
{{end}}
## Peripheral Mentions
{{if .Snapshot.Cold}}
{{- range .Snapshot.Cold}}
- {{.Name}}{{with attr . "location"}} ({{.}}){{end}}
{{- end}}
{{else}}
Nothing in this tier.
{{end}}
{{if .Footer}}
---
*Compiled by prospector. Findings are machine-extracted from public web sources and should be verified before outreach.*
{{end}}`

var (
	bulletsTmpl   = template.Must(template.New("bullets").Funcs(reportFuncs).Parse(bulletsTemplate))
	narrativeTmpl = template.Must(template.New("narrative").Funcs(reportFuncs).Parse(narrativeTemplate))
)

type templateData struct {
	Snapshot *model.Snapshot
	Title    string
	Footer   bool
}

// Render produces the Markdown report for a snapshot. An unknown or
// empty style falls back to bullets.
func (w *Writer) Render(snap *model.Snapshot) (string, error) {
	if snap.GeneratedAt.IsZero() {
		snap.GeneratedAt = time.Now()
	}

	tmpl := bulletsTmpl
	if snap.Assignment.ReportStyle == StyleNarrative {
		tmpl = narrativeTmpl
	}

	var b strings.Builder
	err := tmpl.Execute(&b, templateData{
		Snapshot: snap,
		Title:    snap.Assignment.Title(),
		Footer:   w.includeFooter,
	})
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return b.String(), nil
}

// Write renders the report and persists it under the output directory,
// returning the file path
func (w *Writer) Write(snap *model.Snapshot) (string, error) {
	md, err := w.Render(snap)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(w.dir, fileName(snap))
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

func fileName(snap *model.Snapshot) string {
	slug := strings.ToLower(snap.Assignment.Title())
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "report"
	}
	return fmt.Sprintf("%s-%s.md", slug, snap.GeneratedAt.Format("20060102-150405"))
}
