package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/wfsync/internal/render"
	"github.com/roach88/wfsync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database   string
	WorkflowID string // optional; replays every run when empty
	Show       bool
}

// ReplayWorkflowResult is the replay outcome of one journaled run.
type ReplayWorkflowResult struct {
	WorkflowID      string `json:"workflow_id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Updates         int    `json:"updates"`
	LastSeq         int64  `json:"last_seq"`
	OverallProgress int64  `json:"overall_progress"`
	Digest          string `json:"digest"`
	Verified        bool   `json:"verified"`
	Error           string `json:"error,omitempty"`
}

// ReplaySummary holds the overall replay result.
type ReplaySummary struct {
	Workflows   []ReplayWorkflowResult `json:"workflows"`
	Total       int                    `json:"total"`
	AllVerified bool                   `json:"all_verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled runs and verify them",
		Long: `Fold every journaled update onto its run's initial snapshot.

Each step must apply cleanly and reproduce the digest the producer
recorded, and the folded state must match the recorded outcome.

Exit codes:
  0 - All runs verified
  1 - A run did not replay to its recorded state
  2 - Command error (database not found, etc.)

Examples:
  wfsync replay --db ./runs.db
  wfsync replay --db ./runs.db --workflow wf-release-1 --show
  wfsync replay --db ./runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.WorkflowID, "workflow", "", "replay this run only")
	cmd.Flags().BoolVar(&opts.Show, "show", false, "print the replayed progress panel")

	return cmd
}

// openExisting opens a journal that must already exist. store.Open would
// otherwise create an empty database.
func openExisting(path string) (*store.Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	st, err := openExisting(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	var ids []string
	if opts.WorkflowID != "" {
		ids = []string{opts.WorkflowID}
	} else {
		wfs, err := st.ListWorkflows(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list workflows", err)
		}
		for _, wf := range wfs {
			ids = append(ids, wf.ID)
		}
	}

	result := ReplaySummary{
		Workflows:   make([]ReplayWorkflowResult, 0, len(ids)),
		Total:       len(ids),
		AllVerified: true,
	}
	for _, id := range ids {
		res, err := st.Replay(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("workflow %s", id), err)
		}

		wr := ReplayWorkflowResult{
			WorkflowID:      id,
			Title:           res.Workflow.Title,
			Status:          res.Workflow.Status,
			Updates:         res.Updates,
			LastSeq:         res.LastSeq,
			OverallProgress: res.Final.OverallProgress,
			Digest:          res.Final.Digest(),
			Verified:        err == nil,
		}
		if err != nil {
			logger.Warn("replay diverged", "workflow_id", id, "error", err)
			wr.Error = err.Error()
			result.AllVerified = false
		}
		result.Workflows = append(result.Workflows, wr)

		if opts.Show && !formatter.JSON() && err == nil {
			fmt.Fprintln(formatter.Writer, render.Panel(res.Final))
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter, result)
}

func outputReplayJSON(f *OutputFormatter, result ReplaySummary) error {
	if result.AllVerified {
		return f.Success(result)
	}
	if err := f.Failure(result, ErrCodeReplayMismatch, "replay verification failed"); err != nil {
		return err
	}
	return NewExitError(ExitFailure, "replay verification failed")
}

func outputReplayText(f *OutputFormatter, result ReplaySummary) error {
	w := f.Writer

	if result.Total == 0 {
		fmt.Fprintln(w, "No workflows found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d workflow(s)\n", result.Total)
	fmt.Fprintln(w)

	for _, wr := range result.Workflows {
		mark := "✓"
		if !wr.Verified {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s Workflow: %s (%s)\n", mark, wr.WorkflowID, wr.Title)
		fmt.Fprintf(w, "  Updates: %d, status %s, %d%%\n", wr.Updates, wr.Status, wr.OverallProgress)
		if f.Verbose {
			fmt.Fprintf(w, "  Digest: %s\n", wr.Digest)
		}
		if wr.Error != "" {
			fmt.Fprintf(w, "  %s\n", wr.Error)
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintln(w, "✓ All workflows verified")
		return nil
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
