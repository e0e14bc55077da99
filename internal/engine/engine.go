// Package engine runs the research cycle loop: generate queries,
// search, fetch, evaluate, extract, merge, checkpoint, repeat until a
// stop condition fires. It owns the run's state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prospector/internal/checkpoint"
	"prospector/internal/evaluate"
	"prospector/internal/extract"
	"prospector/internal/fetch"
	"prospector/internal/llm"
	"prospector/internal/model"
	"prospector/internal/query"
	"prospector/internal/search"
	"prospector/internal/store"
	"prospector/internal/worker"
)

// Collaborators are the engine's external dependencies. Tests inject
// fakes; production wiring lives in the CLI.
type Collaborators struct {
	Provider llm.Provider
	Searcher search.Client
	Fetcher  fetch.Client
}

// Engine orchestrates one research run
type Engine struct {
	cfg        *model.Config
	assignment *model.Assignment

	provider  llm.Provider
	searcher  search.Client
	fetcher   fetch.Client
	evaluator *evaluate.Evaluator
	extractor *extract.Extractor
	generator *query.Generator

	checkpoints *checkpoint.Store
	findings    *store.Store

	// Progress is where human-readable progress lines go. Defaults
	// to stdout; tests point it at io.Discard.
	Progress io.Writer

	mu    sync.Mutex
	cond  *sync.Cond
	state model.RunState
	abort bool

	runID       string
	cycles      []model.Cycle
	issued      map[string]bool
	issuedOrder []string
	visited     map[string]bool

	elapsedPrior time.Duration
	startedAt    time.Time

	llmFailures int
	zeroStreak  int
}

// New validates the assignment and assembles an engine. An invalid
// assignment fails here, before any state is touched on disk.
func New(cfg *model.Config, a *model.Assignment, c Collaborators) (*Engine, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ApplyDefaults(&cfg.Research)

	if c.Provider == nil {
		return nil, &model.CollaboratorUnavailableError{Collaborator: "llm", Err: errors.New("no provider configured")}
	}
	if c.Searcher == nil {
		return nil, &model.CollaboratorUnavailableError{Collaborator: "search", Err: errors.New("no search client configured")}
	}
	if c.Fetcher == nil {
		return nil, errors.New("no fetcher configured")
	}

	// One language-model call at a time, regardless of how the
	// provider was wired. Serialize is a no-op on an already serial
	// provider.
	provider := llm.Serialize(c.Provider)

	e := &Engine{
		cfg:         cfg,
		assignment:  a,
		provider:    provider,
		searcher:    c.Searcher,
		fetcher:     c.Fetcher,
		evaluator:   evaluate.New(provider, cfg.Evaluation, a),
		extractor:   extract.New(provider, cfg.Research.MaxSourceChars),
		generator:   query.New(provider),
		checkpoints: checkpoint.NewStore(cfg.Research.CheckpointDir),
		findings:    store.New(),
		Progress:    os.Stdout,
		state:       model.StateInit,
		issued:      make(map[string]bool),
		visited:     make(map[string]bool),
	}
	e.cond = sync.NewCond(&e.mu)
	return e, nil
}

// State returns the current state machine state
func (e *Engine) State() model.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Pause suspends the loop at the next source boundary. In-flight
// collaborator calls finish first.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StateRunning {
		return fmt.Errorf("cannot pause from state %q", e.state)
	}
	e.state = model.StatePaused
	return nil
}

// Resume continues a paused run
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != model.StatePaused {
		return fmt.Errorf("cannot resume from state %q", e.state)
	}
	e.state = model.StateRunning
	e.cond.Broadcast()
	return nil
}

// Abort requests a graceful stop. The loop exits at the next source
// boundary and the final checkpoint records the aborted state.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abort = true
	e.cond.Broadcast()
}

// Snapshot returns a tier-segmented copy of everything found so far
func (e *Engine) Snapshot() *model.Snapshot {
	e.mu.Lock()
	state := e.state
	cycles := append([]model.Cycle(nil), e.cycles...)
	e.mu.Unlock()
	return e.findings.Snapshot(e.runID, *e.assignment, state, cycles, e.elapsed())
}

// Run executes the cycle loop until a stop condition fires and returns
// the final snapshot. Cancelling ctx is equivalent to Abort.
func (e *Engine) Run(ctx context.Context) (*model.Snapshot, error) {
	e.startedAt = time.Now()

	if err := e.restore(); err != nil {
		return nil, err
	}

	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.Abort()
		case <-watchDone:
		}
	}()
	defer close(watchDone)

	if !e.provider.IsAvailable(ctx) {
		fmt.Fprintf(e.Progress, "Warning: language model %s is not reachable; the run may fail quickly\n", e.provider.Name())
	}

	e.setState(model.StateRunning)
	e.logf("run %s: objective %q, target %d, max %d cycles\n",
		e.runID, e.assignment.Title(), e.assignment.TargetCount, e.assignment.MaxCycles)

	var runErr error
	final := model.StateComplete

loop:
	for {
		switch {
		case e.aborted():
			final = model.StateAborted
			break loop
		case e.findings.Len() >= e.assignment.TargetCount:
			e.logf("target of %d findings reached\n", e.assignment.TargetCount)
			break loop
		case len(e.cycles) >= e.assignment.MaxCycles:
			// A spent budget is a normal stop, not a failure
			stop := &model.BudgetExhaustedError{Budget: fmt.Sprintf("%d cycles", e.assignment.MaxCycles)}
			e.logf("stopping: %v\n", stop)
			break loop
		case e.zeroStreak >= 2:
			e.logf("two consecutive cycles without new findings, stopping\n")
			break loop
		}

		if err := e.runCycle(ctx, len(e.cycles)); err != nil {
			final = model.StateFailed
			runErr = err
			break
		}
	}

	e.setState(final)
	if err := e.saveCheckpoint(); err != nil && runErr == nil {
		runErr = err
	}

	return e.Snapshot(), runErr
}

// restore resumes from an on-disk checkpoint when one exists for this
// assignment signature. Only a completed run starts over; a failed or
// aborted checkpoint keeps all closed-cycle progress recoverable, so
// rerunning picks it up instead of overwriting it.
func (e *Engine) restore() error {
	cp, err := e.checkpoints.LoadLatest(e.assignment.Signature())
	if err != nil {
		return err
	}
	if cp == nil || cp.State == model.StateComplete {
		e.runID = uuid.New().String()
		return nil
	}

	e.runID = cp.RunID
	e.cycles = cp.Cycles
	e.elapsedPrior = cp.Elapsed
	e.findings = store.Restore(cp.Findings)
	for _, q := range cp.IssuedQueries {
		e.issued[q] = true
		e.issuedOrder = append(e.issuedOrder, q)
	}
	for _, c := range cp.Cycles {
		for _, u := range c.Visited {
			e.visited[u] = true
		}
	}

	// Rebuild the diminishing-returns streak from the trailing closed
	// cycles so a restart cannot run extra cycles an uninterrupted run
	// would not have.
	for i := len(cp.Cycles) - 1; i >= 0; i-- {
		if cp.Cycles[i].NewFindings != 0 {
			break
		}
		e.zeroStreak++
	}

	e.logf("resuming run %s at cycle %d with %d findings\n", e.runID, len(e.cycles)+1, e.findings.Len())
	return nil
}

func (e *Engine) runCycle(ctx context.Context, index int) error {
	cycle := model.Cycle{Index: index, StartedAt: time.Now()}
	before := e.findings.Len()

	queries := e.generator.Generate(ctx, e.assignment, e.findings, e.issued, index, e.queryBudget())
	for _, q := range queries {
		e.issued[q] = true
		e.issuedOrder = append(e.issuedOrder, q)
	}
	cycle.Queries = queries
	e.logf("cycle %d: %d queries\n", index+1, len(queries))

	candidates := e.collectCandidates(ctx, queries)
	e.fetchAll(ctx, candidates)

	for _, src := range candidates {
		if stop := e.gate(); stop {
			break
		}
		if src.Text == "" {
			cycle.Rejected++
			continue
		}
		cycle.Visited = append(cycle.Visited, src.URL)

		created, accepted, err := e.processSource(ctx, src, index)
		if err != nil {
			return err
		}
		if accepted {
			cycle.Accepted++
		} else {
			cycle.Rejected++
		}
		cycle.NewFindings += created

		if e.findings.Len() >= e.assignment.TargetCount {
			break
		}
	}

	cycle.ClosedAt = time.Now()
	cycle.Summary = fmt.Sprintf("%d accepted, %d rejected, %d new findings, %d total",
		cycle.Accepted, cycle.Rejected, cycle.NewFindings, e.findings.Len())
	e.logf("cycle %d: %s\n", index+1, cycle.Summary)

	e.mu.Lock()
	e.cycles = append(e.cycles, cycle)
	e.mu.Unlock()

	if e.findings.Len() == before {
		e.zeroStreak++
	} else {
		e.zeroStreak = 0
	}

	return e.saveCheckpoint()
}

// collectCandidates searches every query, deduplicates URLs across the
// whole run and caps the batch at the cycle's source budget. A failing
// search query is logged and skipped; search outages surface through
// empty cycles, not run failure.
func (e *Engine) collectCandidates(ctx context.Context, queries []string) []*model.CandidateSource {
	perQuery := e.cfg.Search.ResultsPerQuery
	if perQuery <= 0 {
		perQuery = 5
	}

	var out []*model.CandidateSource
	for _, q := range queries {
		if e.aborted() {
			break
		}
		results, err := e.searcher.Search(ctx, q, perQuery)
		if err != nil {
			fmt.Fprintf(e.Progress, "Warning: search failed for %q: %v\n", q, err)
			continue
		}
		for _, r := range results {
			if e.visited[r.URL] || e.excluded(r.URL) {
				continue
			}
			e.visited[r.URL] = true
			out = append(out, &model.CandidateSource{
				URL:     r.URL,
				Title:   r.Title,
				Snippet: r.Snippet,
				Query:   q,
			})
			if len(out) >= e.assignment.SourcesPerCycle {
				return out
			}
		}
	}
	return out
}

type fetchJob struct {
	index   int
	src     *model.CandidateSource
	fetcher fetch.Client
}

type fetchResult struct {
	index int
	page  *fetch.Page
	err   error
}

func (r *fetchResult) GetError() error { return r.err }

func (j *fetchJob) Execute(ctx context.Context) worker.Result {
	page, err := j.fetcher.Fetch(ctx, j.src.URL)
	return &fetchResult{index: j.index, page: page, err: err}
}

// fetchAll retrieves candidate pages with bounded concurrency and fills
// in their readable text. Fetch failures leave Text empty; the caller
// counts those as rejected. Evaluation and extraction stay sequential.
func (e *Engine) fetchAll(ctx context.Context, candidates []*model.CandidateSource) {
	if len(candidates) == 0 {
		return
	}

	workers := e.cfg.Concurrency.FetchWorkers
	if workers > len(candidates) {
		workers = len(candidates)
	}

	jobs := make([]worker.Job, len(candidates))
	for i, src := range candidates {
		jobs[i] = &fetchJob{index: i, src: src, fetcher: e.fetcher}
	}
	results := worker.Run(ctx, workers, jobs)

	sort.Slice(results, func(i, j int) bool {
		return results[i].(*fetchResult).index < results[j].(*fetchResult).index
	})
	for _, r := range results {
		fr := r.(*fetchResult)
		if fr.err != nil {
			fmt.Fprintf(e.Progress, "Warning: fetch failed for %s: %v\n", candidates[fr.index].URL, fr.err)
			continue
		}
		candidates[fr.index].Text = fr.page.Text
		if fr.page.Title != "" {
			candidates[fr.index].Title = fr.page.Title
		}
	}
}

// processSource evaluates one fetched page and, when accepted, extracts
// and merges its findings. Returns the number of newly created entities
// and whether the source was accepted. Consecutive language-model
// outages past the configured tolerance abort the run; the checkpoint
// from the last closed cycle stays intact.
func (e *Engine) processSource(ctx context.Context, src *model.CandidateSource, cycleIndex int) (int, bool, error) {
	verdict, err := e.evaluator.Evaluate(ctx, src, e.assignment)
	if err != nil {
		return 0, false, e.noteLLMFailure(err)
	}
	e.llmFailures = 0

	src.Score = verdict.Score
	src.Accepted = verdict.Accepted
	if !verdict.Accepted {
		src.RejectReason = verdict.Reason
		return 0, false, nil
	}

	findings, err := e.extractor.Extract(ctx, src, e.assignment, cycleIndex)
	if err != nil {
		var malformed *model.MalformedExtractionError
		if errors.As(err, &malformed) {
			// The page was fetched and scored fine; only parsing its
			// extraction failed. Degrade to zero findings.
			fmt.Fprintf(e.Progress, "Warning: %v\n", err)
			return 0, true, nil
		}
		return 0, true, e.noteLLMFailure(err)
	}
	e.llmFailures = 0

	created := 0
	for _, f := range findings {
		if e.excluded(f.Name) {
			continue
		}
		if e.findings.Merge(f) == store.MergeCreated {
			created++
		}
	}
	return created, true, nil
}

// noteLLMFailure tracks consecutive collaborator outages and converts
// the streak into a run failure once it crosses the tolerance
func (e *Engine) noteLLMFailure(err error) error {
	e.llmFailures++
	tolerance := e.cfg.Research.MaxLLMFailures
	if tolerance <= 0 {
		tolerance = 5
	}
	fmt.Fprintf(e.Progress, "Warning: language model failure %d/%d: %v\n", e.llmFailures, tolerance, err)
	if e.llmFailures >= tolerance {
		return fmt.Errorf("%d consecutive language-model failures: %w", e.llmFailures, err)
	}
	return nil
}

// gate blocks while paused and reports whether the run was aborted.
// It is the only place the loop yields to Pause/Resume/Abort.
func (e *Engine) gate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.state == model.StatePaused && !e.abort {
		e.cond.Wait()
	}
	return e.abort
}

func (e *Engine) aborted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.abort
}

func (e *Engine) setState(s model.RunState) {
	e.mu.Lock()
	e.state = s
	e.cond.Broadcast()
	e.mu.Unlock()
}

func (e *Engine) saveCheckpoint() error {
	e.mu.Lock()
	cp := &model.Checkpoint{
		RunID:         e.runID,
		Signature:     e.assignment.Signature(),
		State:         e.state,
		Assignment:    *e.assignment,
		Cycles:        append([]model.Cycle(nil), e.cycles...),
		Findings:      e.findings.All(),
		IssuedQueries: append([]string(nil), e.issuedOrder...),
		Elapsed:       e.elapsed(),
	}
	e.mu.Unlock()
	return e.checkpoints.Save(cp)
}

func (e *Engine) elapsed() time.Duration {
	if e.startedAt.IsZero() {
		return e.elapsedPrior
	}
	return e.elapsedPrior + time.Since(e.startedAt)
}

// queryBudget sizes the cycle's query batch to its source budget
func (e *Engine) queryBudget() int {
	if e.assignment.SourcesPerCycle > 0 {
		return e.assignment.SourcesPerCycle
	}
	return 5
}

// excluded matches a URL or entity name against the assignment's
// exclusion terms, case-insensitively
func (e *Engine) excluded(s string) bool {
	lower := strings.ToLower(s)
	for _, term := range e.assignment.Constraints.Exclude {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

func (e *Engine) logf(format string, args ...any) {
	if e.cfg.Output.Verbose {
		fmt.Fprintf(e.Progress, format, args...)
	}
}
