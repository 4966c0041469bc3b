package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wfsync/internal/render"
	"github.com/roach88/wfsync/internal/replica"
	"github.com/roach88/wfsync/internal/stream"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	MaxResyncs int
	Quiet      bool
}

// WatchOutput is the replica's state when the watch ends.
type WatchOutput struct {
	WorkflowID      string `json:"workflow_id"`
	Title           string `json:"title"`
	OverallProgress int64  `json:"overall_progress"`
	Applied         int    `json:"applied"` // Updates since the last snapshot
	Digest          string `json:"digest"`
	RunError        string `json:"run_error,omitempty"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Follow a served workflow",
		Long: `Follow a workflow streamed by serve and redraw its progress panel.

The URL may be a full ws:// URL or host:port. A rejected update, a seq gap
or being dropped as a slow observer reconnects for a fresh snapshot, at
most --max-resyncs times.

Example:
  wfsync watch localhost:8080
  wfsync watch ws://localhost:8080/ws --quiet`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxResyncs, "max-resyncs", stream.DefaultMaxResyncs, "reconnect limit")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "print only the final summary")
	return cmd
}

func runWatch(opts *WatchOptions, target string, cmd *cobra.Command) error {
	logger := opts.logger()
	formatter := opts.formatter(cmd)

	var replicaOpts []replica.Option
	if !formatter.JSON() && !opts.Quiet {
		replicaOpts = append(replicaOpts, replica.OnChange(render.Printer(formatter.Writer)))
	}
	r := replica.New(append(replicaOpts, replica.WithLogger(logger))...)

	client := &stream.Client{
		URL:        watchURL(target),
		MaxResyncs: opts.MaxResyncs,
		Logger:     logger,
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	final, err := client.Watch(ctx, r)
	if err != nil && !errors.Is(err, stream.ErrRunFailed) {
		_ = formatter.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "watch failed", err)
	}

	out := WatchOutput{
		WorkflowID:      final.WorkflowID,
		Title:           final.Title,
		OverallProgress: final.OverallProgress,
		Applied:         r.Applied(),
		Digest:          final.Digest(),
	}
	if err != nil {
		out.RunError = err.Error()
	}

	if formatter.JSON() {
		if err != nil {
			if ferr := formatter.Failure(out, ErrCodeRunFailed, err.Error()); ferr != nil {
				return ferr
			}
		} else if ferr := formatter.Success(out); ferr != nil {
			return ferr
		}
	} else {
		fmt.Fprintln(formatter.Writer, render.ProgressLine(final))
		if err != nil {
			fmt.Fprintf(formatter.Writer, "✗ %v\n", err)
		}
	}

	if err != nil {
		return WrapExitError(ExitFailure, "producer run failed", err)
	}
	return nil
}

// watchURL accepts host:port as shorthand for ws://host:port/ws.
func watchURL(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return "ws://" + strings.TrimSuffix(target, "/") + stream.Path
}
