package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/render"
	"github.com/roach88/wfsync/internal/store"
	"github.com/roach88/wfsync/internal/stream"
)

// shutdownTimeout bounds http.Server.Shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	WorkflowOptions
	Listen   string
	Buffer   int
	Database string
	WaitFor  int  // subscribers to wait for before the run starts
	Exit     bool // stop serving once the run has finished
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <definitions-dir> <workflow>",
		Short: "Run a workflow and stream it over websocket",
		Long: `Run a workflow and stream its updates to websocket observers.

Each observer first receives a full snapshot, then every update in seq
order, then an end frame. Observers that fall behind by more than
--buffer frames are disconnected and reconnect for a fresh snapshot.
After the run the final state stays available until interrupted, unless
--exit is set.

Example:
  wfsync serve ./workflows release --listen :8080 --delay 500ms
  wfsync watch ws://localhost:8080/ws`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], args[1], cmd)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Listen, "listen", "127.0.0.1:8080", "address to listen on")
	cmd.Flags().IntVar(&opts.Buffer, "buffer", stream.DefaultBuffer, "frames buffered per observer")
	cmd.Flags().StringVar(&opts.Database, "db", "", "also journal the run to this SQLite database")
	cmd.Flags().IntVar(&opts.WaitFor, "wait-for", 0, "wait for this many observers before starting")
	cmd.Flags().BoolVar(&opts.Exit, "exit", false, "stop serving once the run has finished")

	return cmd
}

func runServe(opts *ServeOptions, dir, name string, cmd *cobra.Command) error {
	logger := opts.logger()
	formatter := opts.formatter(cmd)

	initial, gen, err := prepareWorkflow(&opts.WorkflowOptions, dir, name, logger)
	if err != nil {
		_ = formatter.Error(errorCode(err, ErrCodeGeneric), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to prepare workflow", err)
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	b := stream.NewBroadcaster(initial, stream.WithBuffer(opts.Buffer), stream.WithLogger(logger))
	sinks := []engine.Sink{b}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		journal, err := store.NewJournal(ctx, st, initial)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal", err)
		}
		sinks = append(sinks, journal)
	}

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		_ = formatter.Error(ErrCodeTransport, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           stream.NewMux(b, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	defer shutdown(srv, logger)

	url := fmt.Sprintf("ws://%s%s", ln.Addr(), stream.Path)
	formatter.VerboseLog("Serving %s (%s) on %s", initial.Title, initial.WorkflowID, url)
	if !formatter.JSON() {
		fmt.Fprintf(formatter.Writer, "Serving %s on %s\n", initial.WorkflowID, url)
	}
	logger.Info("serving workflow", "workflow_id", initial.WorkflowID, "url", url)

	if err := waitForSubscribers(ctx, b, opts.WaitFor); err != nil {
		return WrapExitError(ExitFailure, "interrupted before start", err)
	}

	sum, runErr := engine.Run(ctx, gen, sinks...)
	out := runOutput(sum)
	out.Database = opts.Database
	if runErr != nil {
		_ = formatter.Error(ErrCodeRunFailed, runErr.Error(), out)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	if formatter.JSON() {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, render.ProgressLine(sum.Final))
	}

	if !opts.Exit {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				return WrapExitError(ExitFailure, "server stopped", err)
			}
		}
	}
	if out.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d task(s) failed", out.Failed))
	}
	return nil
}

func waitForSubscribers(ctx context.Context, b *stream.Broadcaster, n int) error {
	if n <= 0 {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for b.Subscribers() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
}
