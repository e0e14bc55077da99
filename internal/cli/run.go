package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"prospector/internal/cache"
	"prospector/internal/engine"
	"prospector/internal/fetch"
	"prospector/internal/llm"
	"prospector/internal/model"
	"prospector/internal/report"
	"prospector/internal/search"
	"prospector/internal/worker"
)

var (
	runTimeout    time.Duration
	maxCycles     int
	sourcesPerCyc int
	outDir        string
	checkpointDir string
	userAgent     string
	maxBytes      int64
	noCache       bool
	noFooter      bool
	insecureTLS   bool
	llmProvider   string
	llmModel      string
	fetchWorkers  int
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:     "run <assignment.yaml>",
	Aliases: []string{"resume"},
	Short:   "Execute a research assignment until a stop condition fires",
	Long: `Run loads an assignment file and researches it cycle by cycle until
the target count is reached, the cycle budget is exhausted, or two
consecutive cycles produce nothing new.

A checkpoint is written after every cycle. Re-running the same
assignment resumes from the checkpoint instead of starting over.
Ctrl-C aborts gracefully: the current source finishes, the state is
checkpointed, and a report is still written from what was found.

Example:
  prospector run leads.yaml
  prospector run leads.yaml --max-cycles 8 --out ./reports
  prospector run leads.yaml --llm-provider openai --llm-model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runResearch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run timeout (0 = no limit)")
	runCmd.Flags().IntVar(&maxCycles, "max-cycles", 0, "override the assignment's cycle budget")
	runCmd.Flags().IntVar(&sourcesPerCyc, "sources", 0, "override sources fetched per cycle")
	runCmd.Flags().StringVar(&outDir, "out", "", "report output directory")
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory")

	runCmd.Flags().StringVar(&userAgent, "ua", "", "HTTP User-Agent")
	runCmd.Flags().Int64Var(&maxBytes, "max-bytes", 0, "max response bytes to read per page")
	runCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the page cache (force fresh fetches)")
	runCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	runCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")

	runCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "language model provider (openai, ollama)")
	runCmd.Flags().StringVar(&llmModel, "llm-model", "", "language model name")
	runCmd.Flags().IntVar(&fetchWorkers, "fetch-workers", 0, "concurrent page fetches per cycle")
}

func runResearch(cmd *cobra.Command, args []string) error {
	assignment, err := model.LoadAssignment(args[0])
	if err != nil {
		return err
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	if maxCycles > 0 {
		assignment.MaxCycles = maxCycles
	}
	if sourcesPerCyc > 0 {
		assignment.SourcesPerCycle = sourcesPerCyc
	}

	collaborators, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	e, err := engine.New(cfg, assignment, collaborators)
	if err != nil {
		return err
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if runTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "Interrupt received, finishing current source...")
			e.Abort()
		}
	}()

	snap, runErr := e.Run(ctx)
	if snap == nil {
		return runErr
	}

	// A report is written for every terminal state. An aborted or
	// failed run still delivers what was found so far.
	path, werr := report.New(cfg.Output).Write(snap)
	if werr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write report: %v\n", werr)
	} else {
		fmt.Printf("✓ Wrote report: %s (%d findings: %d hot, %d warm, %d cold)\n",
			path, snap.Total(), len(snap.Hot), len(snap.Warm), len(snap.Cold))
	}

	if runErr != nil {
		return fmt.Errorf("run ended in state %s: %w", snap.State, runErr)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Run %s finished in state %s after %d cycles\n",
			snap.RunID, snap.State, len(snap.Cycles))
	}
	return nil
}

// buildConfig assembles the runtime configuration from defaults, the
// viper-managed config file, environment variables and flags
func buildConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if file := viper.ConfigFileUsed(); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", file, err)
		}
	}

	cfg.Output.Verbose = verbose
	cfg.Output.IncludeFooter = !noFooter
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if checkpointDir != "" {
		cfg.Research.CheckpointDir = checkpointDir
	}
	if userAgent != "" {
		cfg.HTTP.UserAgent = userAgent
	}
	if maxBytes > 0 {
		cfg.HTTP.MaxBodyBytes = maxBytes
	}
	cfg.HTTP.InsecureTLS = cfg.HTTP.InsecureTLS || insecureTLS
	if noCache {
		cfg.Cache.Enabled = false
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if fetchWorkers > 0 {
		cfg.Concurrency.FetchWorkers = fetchWorkers
	}

	// API keys come from the environment, never from flags
	switch cfg.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}
	if key := os.Getenv("BRAVE_API_KEY"); key != "" {
		cfg.Search.APIKey = key
	}
	if cfg.Search.APIKey == "" {
		return nil, fmt.Errorf("BRAVE_API_KEY environment variable not set")
	}

	return cfg, nil
}

// buildCollaborators wires the production language model, search and
// fetch clients from configuration
func buildCollaborators(cfg *model.Config) (engine.Collaborators, error) {
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return engine.Collaborators{}, fmt.Errorf("language model: %w", err)
	}

	searcher, err := search.NewBraveClient(cfg.Search)
	if err != nil {
		return engine.Collaborators{}, fmt.Errorf("search: %w", err)
	}

	var pageCache cache.Cache
	if cfg.Cache.Enabled {
		pageCache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}
	limiter := worker.NewLimiter(cfg.Concurrency.RequestsPerSecond, cfg.Concurrency.Burst)
	fetcher := fetch.NewFetcher(cfg.HTTP, cfg.Research.RetriesPerSource, limiter, pageCache)

	return engine.Collaborators{
		Provider: provider,
		Searcher: searcher,
		Fetcher:  fetcher,
	}, nil
}
