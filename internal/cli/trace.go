package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	WorkflowID string
	Path       string // optional; keep only operations under this path
}

// TraceOp is one patch operation of a traced update.
type TraceOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// TraceUpdate is one journaled update in the timeline.
type TraceUpdate struct {
	Seq         int64     `json:"seq"`
	Description string    `json:"description"`
	Timestamp   string    `json:"timestamp"`
	Digest      string    `json:"digest"`
	Operations  []TraceOp `json:"operations"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Updates    int  `json:"updates"`
	Operations int  `json:"operations"`
	Completed  int  `json:"completed"` // Updates that finish a task successfully
	Failed     int  `json:"failed"`
	IsComplete bool `json:"is_complete"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	WorkflowID string        `json:"workflow_id"`
	Title      string        `json:"title"`
	Status     string        `json:"status"`
	Timeline   []TraceUpdate `json:"timeline"`
	Stats      TraceStats    `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the update timeline of a journaled run",
		Long: `Show every journaled update of a run in seq order.

Each update lists its description, timestamp and patch operations.
--path keeps only the operations whose path starts with the given prefix,
for example /tasks/1 to follow a single task.

Examples:
  wfsync trace --db ./runs.db --workflow wf-release-1
  wfsync trace --db ./runs.db --workflow wf-release-1 --path /overall_progress
  wfsync trace --db ./runs.db --workflow wf-release-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.WorkflowID, "workflow", "", "workflow id to trace (required)")
	_ = cmd.MarkFlagRequired("workflow")
	cmd.Flags().StringVar(&opts.Path, "path", "", "filter operations by path prefix")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := opts.formatter(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer st.Close()

	wf, err := st.ReadWorkflow(ctx, opts.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "unknown workflow", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read workflow", err)
	}
	records, err := st.ReadUpdates(ctx, opts.WorkflowID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read updates", err)
	}

	timeline, err := buildTimeline(records, opts.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build timeline", err)
	}

	result := TraceResult{
		WorkflowID: wf.ID,
		Title:      wf.Title,
		Status:     wf.Status,
		Timeline:   timeline,
		Stats: TraceStats{
			Updates:    len(records),
			IsComplete: wf.Status != store.StatusRunning,
		},
	}
	for _, rec := range records {
		result.Stats.Operations += len(rec.Update.Operations)
		switch {
		case strings.HasPrefix(rec.Update.Description, "Completed: "):
			result.Stats.Completed++
		case strings.HasPrefix(rec.Update.Description, "Failed: "):
			result.Stats.Failed++
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTimeline converts journal records to timeline entries. With a path
// filter, updates left without operations are dropped.
func buildTimeline(records []store.Record, pathFilter string) ([]TraceUpdate, error) {
	timeline := []TraceUpdate{}
	for _, rec := range records {
		ops, err := traceOps(rec.Update.Operations, pathFilter)
		if err != nil {
			return nil, fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
		if pathFilter != "" && len(ops) == 0 {
			continue
		}
		timeline = append(timeline, TraceUpdate{
			Seq:         rec.Seq,
			Description: rec.Update.Description,
			Timestamp:   rec.Update.Timestamp.UTC().Format(time.RFC3339Nano),
			Digest:      rec.Digest,
			Operations:  ops,
		})
	}
	return timeline, nil
}

func traceOps(ops []patch.Operation, pathFilter string) ([]TraceOp, error) {
	out := []TraceOp{}
	for _, op := range ops {
		if pathFilter != "" && !strings.HasPrefix(op.Path, pathFilter) {
			continue
		}
		to := TraceOp{Op: string(op.Op), Path: op.Path}
		if op.Value != nil {
			raw, err := ir.MarshalValue(op.Value)
			if err != nil {
				return nil, err
			}
			to.Value = raw
		}
		out = append(out, to)
	}
	return out, nil
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Workflow: %s (%s)\n", result.WorkflowID, result.Title)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no updates)")
	}
	for _, u := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s\n", u.Seq, u.Description)
		if verbose {
			fmt.Fprintf(w, "       At: %s\n", u.Timestamp)
			fmt.Fprintf(w, "       Digest: %s\n", truncateID(u.Digest))
		}
		for _, op := range u.Operations {
			if op.Value != nil {
				fmt.Fprintf(w, "       %s %s = %s\n", op.Op, op.Path, op.Value)
			} else {
				fmt.Fprintf(w, "       %s %s\n", op.Op, op.Path)
			}
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Statistics ===")
	fmt.Fprintf(w, "  Updates:    %d\n", result.Stats.Updates)
	fmt.Fprintf(w, "  Operations: %d\n", result.Stats.Operations)
	fmt.Fprintf(w, "  Completed:  %d\n", result.Stats.Completed)
	fmt.Fprintf(w, "  Failed:     %d\n", result.Stats.Failed)
}

// truncateID shortens long ids and digests for display.
func truncateID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}
