package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prospector/internal/engine"
	"prospector/internal/report"
	"prospector/internal/watch"
)

var watchDir string

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a drop folder and run every assignment dropped into it",
	Long: `Watch monitors a folder for assignment YAML files. Every valid file
dropped into the folder is researched to completion, one at a time,
and its report written to the output directory. Invalid files are
reported and skipped.

Assignments already in the folder when the watcher starts are picked
up first, so nothing queued during downtime is lost.

Example:
  prospector watch ./assignments --out ./reports`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&outDir, "out", "", "report output directory")
	watchCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory")
	watchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the page cache")
	watchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	watchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "language model provider (openai, ollama)")
	watchCmd.Flags().StringVar(&llmModel, "llm-model", "", "language model name")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := "assignments"
	if len(args) == 1 {
		dir = args[0]
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}
	collaborators, err := buildCollaborators(cfg)
	if err != nil {
		return err
	}

	watcher, err := watch.New(dir)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			fmt.Fprintln(os.Stderr, "Interrupt received, shutting down watcher...")
			cancel()
		}
	}()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watcher.Run(ctx)
	}()

	fmt.Printf("Watching %s for assignments (Ctrl-C to stop)\n", dir)

	for ev := range watcher.Events() {
		if ev.Err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", ev.Path, ev.Err)
			continue
		}

		fmt.Printf("▶ Assignment dropped: %s (%q)\n", ev.Path, ev.Assignment.Title())
		e, err := engine.New(cfg, ev.Assignment, collaborators)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot start %s: %v\n", ev.Path, err)
			continue
		}

		snap, runErr := e.Run(ctx)
		if snap == nil {
			fmt.Fprintf(os.Stderr, "Warning: run for %s could not start: %v\n", ev.Path, runErr)
			continue
		}
		if runErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: run for %s ended in state %s: %v\n", ev.Path, snap.State, runErr)
		}
		path, werr := report.New(cfg.Output).Write(snap)
		if werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write report for %s: %v\n", ev.Path, werr)
			continue
		}
		fmt.Printf("✓ Wrote report: %s (%d findings)\n", path, snap.Total())
	}

	if err := <-watchErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
