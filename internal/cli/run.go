package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wfsync/internal/compiler"
	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/render"
	"github.com/roach88/wfsync/internal/replica"
	"github.com/roach88/wfsync/internal/state"
	"github.com/roach88/wfsync/internal/store"
)

// WorkflowOptions are the flags shared by commands that drive a workflow.
type WorkflowOptions struct {
	Delay      time.Duration
	WorkflowID string
	Failures   map[string]string // task id -> failure reason

	// IDs and Now override id generation and the update clock (for testing).
	IDs engine.IDGenerator
	Now func() time.Time
}

func (o *WorkflowOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&o.Delay, "delay", 0, "base pause between updates (e.g. 200ms)")
	cmd.Flags().StringVar(&o.WorkflowID, "id", "", "workflow id (overrides the definition's)")
	cmd.Flags().StringToStringVar(&o.Failures, "fail", nil, "inject a task failure as task-id=reason")
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	WorkflowOptions
	Database string
	Quiet    bool
}

// RunOutput is the result of a finished run.
type RunOutput struct {
	WorkflowID      string `json:"workflow_id"`
	Title           string `json:"title"`
	Updates         int    `json:"updates"`
	LastSeq         int64  `json:"last_seq"`
	OverallProgress int64  `json:"overall_progress"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	Digest          string `json:"digest"`
	Database        string `json:"database,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <definitions-dir> <workflow>",
		Short: "Run a workflow locally",
		Long: `Run a workflow definition through the task simulator.

Every update is folded into a local replica and the progress panel is
redrawn from the replica, exactly as a remote observer would see it.
With --db the run is journaled to SQLite and can be checked later with
replay.

Example:
  wfsync run ./workflows release
  wfsync run ./workflows release --db ./runs.db --delay 200ms
  wfsync run ./workflows release --fail test="flaky suite"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(opts, args[0], args[1], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal the run to this SQLite database")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only the final summary")

	return cmd
}

func runWorkflow(opts *RunOptions, dir, name string, cmd *cobra.Command) error {
	logger := opts.logger()
	formatter := opts.formatter(cmd)

	initial, gen, err := prepareWorkflow(&opts.WorkflowOptions, dir, name, logger)
	if err != nil {
		_ = formatter.Error(errorCode(err, ErrCodeGeneric), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to prepare workflow", err)
	}

	var replicaOpts []replica.Option
	if !formatter.JSON() && !opts.Quiet {
		replicaOpts = append(replicaOpts, replica.OnChange(render.Printer(formatter.Writer)))
	}
	display := replica.New(append(replicaOpts, replica.WithLogger(logger))...)
	if err := display.Install(initial); err != nil {
		return WrapExitError(ExitCommandError, "failed to install snapshot", err)
	}
	sinks := []engine.Sink{replicaSink(display)}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		journal, err := store.NewJournal(ctx, st, initial)
		if err != nil {
			_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to start journal", err)
		}
		sinks = append(sinks, journal)
	}

	logger.Info("run starting", "workflow_id", initial.WorkflowID, "tasks", len(initial.Tasks))
	sum, runErr := engine.Run(ctx, gen, sinks...)

	out := runOutput(sum)
	out.Database = opts.Database
	if runErr != nil {
		msg := "run failed"
		if errors.Is(runErr, context.Canceled) {
			msg = "run interrupted"
		}
		_ = formatter.Error(ErrCodeRunFailed, fmt.Sprintf("%s: %v", msg, runErr), out)
		return WrapExitError(ExitFailure, msg, runErr)
	}

	if formatter.JSON() {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		printRunSummary(formatter, out, sum.Final)
	}
	if out.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", out.Failed))
	}
	return nil
}

// prepareWorkflow loads the named definition and builds a generator over
// the task simulator.
func prepareWorkflow(opts *WorkflowOptions, dir, name string, logger *slog.Logger) (state.WorkflowState, *engine.Generator, error) {
	d, err := loadWorkflow(dir, name, opts.IDs)
	if err != nil {
		return state.WorkflowState{}, nil, err
	}
	if opts.WorkflowID != "" {
		d.ID = opts.WorkflowID
	}
	for id := range opts.Failures {
		if !hasTask(d.Tasks, id) {
			return state.WorkflowState{}, nil, &LoadError{
				Code:    ErrCodeUnknownTask,
				Field:   name,
				Message: fmt.Sprintf("--fail names unknown task %q", id),
			}
		}
	}

	initial, err := d.Initial()
	if err != nil {
		return state.WorkflowState{}, nil, err
	}

	genOpts := []engine.Option{
		engine.WithDelay(opts.Delay),
		engine.WithLogger(logger),
	}
	if opts.Now != nil {
		genOpts = append(genOpts, engine.WithNow(opts.Now))
	}
	gen, err := engine.NewGenerator(initial, engine.NewSimulator(d.SimTasks(opts.Failures)), genOpts...)
	if err != nil {
		return state.WorkflowState{}, nil, err
	}
	return initial, gen, nil
}

// replicaSink folds each emission into r and checks it stays in step with
// the producer.
func replicaSink(r *replica.Replica) engine.Sink {
	return engine.SinkFunc(func(_ context.Context, e engine.Emission) error {
		if err := r.Apply(e.Update); err != nil {
			return err
		}
		if got := r.State().Digest(); got != e.Digest {
			return fmt.Errorf("replica digest %s, producer %s", got, e.Digest)
		}
		return nil
	})
}

func runOutput(sum engine.Summary) RunOutput {
	out := RunOutput{
		WorkflowID:      sum.Final.WorkflowID,
		Title:           sum.Final.Title,
		Updates:         sum.Updates,
		LastSeq:         sum.LastSeq,
		OverallProgress: sum.Final.OverallProgress,
		Digest:          sum.Final.Digest(),
	}
	for _, t := range sum.Final.Tasks {
		switch t.Status {
		case state.StatusCompleted:
			out.Completed++
		case state.StatusFailed:
			out.Failed++
		}
	}
	return out
}

func printRunSummary(f *OutputFormatter, out RunOutput, final state.WorkflowState) {
	w := f.Writer
	fmt.Fprintln(w, render.ProgressLine(final))
	fmt.Fprintf(w, "Workflow: %s\n", out.WorkflowID)
	fmt.Fprintf(w, "Updates:  %d\n", out.Updates)
	if out.Failed > 0 {
		fmt.Fprintf(w, "✗ %d task(s) failed\n", out.Failed)
	} else {
		fmt.Fprintln(w, "✓ All tasks completed")
	}
	if out.Database != "" {
		fmt.Fprintf(w, "Journal:  %s\n", out.Database)
	}
	f.VerboseLog("Final digest: %s", out.Digest)
}

func hasTask(tasks []compiler.TaskDef, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}
