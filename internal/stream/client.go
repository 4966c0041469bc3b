package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/replica"
	"github.com/roach88/wfsync/internal/state"
)

// DefaultMaxResyncs bounds reconnects for a fresh snapshot.
const DefaultMaxResyncs = 3

var (
	// ErrTooManyResyncs is returned once a watch has reconnected MaxResyncs
	// times without reaching the end frame.
	ErrTooManyResyncs = errors.New("too many resyncs")

	// ErrRunFailed wraps the producer-side error carried by an end frame.
	ErrRunFailed = errors.New("run failed")
)

// Client follows a workflow served by Handler and keeps a replica in step.
type Client struct {
	URL        string // ws:// or wss:// URL of the endpoint
	Dialer     *websocket.Dialer
	MaxResyncs int
	Logger     *slog.Logger
}

// errResync signals that the current connection's replica cannot continue
// and a new snapshot is needed.
type errResync struct{ reason error }

func (e *errResync) Error() string { return "resync needed: " + e.reason.Error() }
func (e *errResync) Unwrap() error { return e.reason }

// Watch follows the workflow until the end frame, folding every update into
// r. A rejected update, a sequence gap, a digest mismatch or being dropped
// by the server triggers a reconnect that installs a fresh snapshot.
//
// Watch returns the final replica state. If the producer's run failed the
// error wraps ErrRunFailed.
func (c *Client) Watch(ctx context.Context, r *replica.Replica) (state.WorkflowState, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxResyncs := c.MaxResyncs
	if maxResyncs <= 0 {
		maxResyncs = DefaultMaxResyncs
	}

	for resyncs := 0; ; resyncs++ {
		err := c.follow(ctx, r)
		var rs *errResync
		if !errors.As(err, &rs) {
			return r.State(), err
		}
		if resyncs >= maxResyncs {
			return r.State(), fmt.Errorf("%w (%d): %w", ErrTooManyResyncs, resyncs, rs.reason)
		}
		logger.Warn("reconnecting for snapshot", "url", c.URL, "attempt", resyncs+1, "reason", rs.reason)
	}
}

// follow runs one connection: snapshot, updates, end.
func (c *Client) follow(ctx context.Context, r *replica.Replica) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.URL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var first Envelope
	if err := conn.ReadJSON(&first); err != nil {
		return readError(ctx, err)
	}
	snap, err := first.DecodeSnapshot()
	if err != nil {
		return fmt.Errorf("first frame: %w", err)
	}
	if err := r.Install(snap); err != nil {
		return err
	}
	clock := engine.NewClockAt(first.Seq)

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return readError(ctx, err)
		}

		switch env.Type {
		case TypeUpdate:
			if err := clock.Observe(env.Seq); err != nil {
				return &errResync{err}
			}
			u, err := env.DecodeUpdate()
			if err != nil {
				return fmt.Errorf("update %d: %w", env.Seq, err)
			}
			if err := r.Apply(u); err != nil {
				if patch.IsDesync(err) {
					return &errResync{err}
				}
				return err
			}
			if env.Digest != "" && r.State().Digest() != env.Digest {
				return &errResync{fmt.Errorf("digest mismatch at seq %d", env.Seq)}
			}
		case TypeEnd:
			if env.Error != "" {
				return fmt.Errorf("%w: %s", ErrRunFailed, env.Error)
			}
			return nil
		default:
			return fmt.Errorf("unexpected %q frame at seq %d", env.Type, clock.Current())
		}
	}
}

func readError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		return &errResync{errors.New(CloseSlowConsumer)}
	}
	return fmt.Errorf("read: %w", err)
}
