package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// ErrClosed is returned by Emit after Finish.
var ErrClosed = errors.New("broadcaster closed")

// Broadcaster fans one run's emissions out to any number of subscribers.
// It keeps its own copy of the state so late subscribers start from a
// current snapshot.
//
// Subscribers never block the run: one whose queue is full is dropped and
// has to subscribe again for a fresh snapshot.
type Broadcaster struct {
	mu     sync.Mutex
	ws     state.WorkflowState
	seq    int64
	subs   map[*Subscription]struct{}
	end    *Envelope
	buffer int
	logger *slog.Logger
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) BroadcasterOption {
	return func(b *Broadcaster) { b.buffer = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) BroadcasterOption {
	return func(b *Broadcaster) { b.logger = l }
}

// NewBroadcaster creates a broadcaster for a run starting from initial.
func NewBroadcaster(initial state.WorkflowState, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		ws:     initial.Clone(),
		subs:   make(map[*Subscription]struct{}),
		buffer: DefaultBuffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.buffer < 1 {
		b.buffer = 1
	}
	return b
}

// Subscription is one subscriber's queue. C yields the snapshot first, then
// updates, then the end frame, and is closed afterwards or when the
// subscriber is dropped.
type Subscription struct {
	C <-chan Envelope

	ch      chan Envelope
	b       *Broadcaster
	dropped bool
}

// Dropped reports whether the subscription was cut off for falling behind.
// Only meaningful once C is closed.
func (s *Subscription) Dropped() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if _, ok := s.b.subs[s]; ok {
		delete(s.b.subs, s)
		close(s.ch)
	}
}

// Subscribe registers a subscriber. The snapshot and the registration
// happen under one lock, so no update is missed or duplicated.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := snapshotEnvelope(b.ws, b.seq)
	if err != nil {
		return nil, err
	}

	ch := make(chan Envelope, b.buffer+2)
	sub := &Subscription{C: ch, ch: ch, b: b}
	ch <- snap
	if b.end != nil {
		ch <- *b.end
		close(ch)
		return sub, nil
	}
	b.subs[sub] = struct{}{}
	b.logger.Debug("subscriber added",
		"workflow_id", b.ws.WorkflowID,
		"seq", b.seq,
		"subscribers", len(b.subs))
	return sub, nil
}

// Snapshot implements replica.SnapshotSource for the running workflow.
func (b *Broadcaster) Snapshot(_ context.Context, workflowID string) (state.WorkflowState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if workflowID != b.ws.WorkflowID {
		return state.WorkflowState{}, fmt.Errorf("unknown workflow %q", workflowID)
	}
	return b.ws.Clone(), nil
}

// Emit implements engine.Sink.
func (b *Broadcaster) Emit(_ context.Context, e engine.Emission) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.end != nil {
		return ErrClosed
	}
	if e.Seq != b.seq+1 {
		return fmt.Errorf("broadcast: seq %d after %d", e.Seq, b.seq)
	}
	if err := patch.ApplyInPlace(&b.ws, e.Update); err != nil {
		return fmt.Errorf("broadcast: apply seq %d: %w", e.Seq, err)
	}
	if got := b.ws.Digest(); got != e.Digest {
		return fmt.Errorf("broadcast: digest mismatch at seq %d", e.Seq)
	}
	b.seq = e.Seq

	env, err := updateEnvelope(e.WorkflowID, e.Seq, e.Update, e.Digest)
	if err != nil {
		return err
	}
	for sub := range b.subs {
		select {
		case sub.ch <- env:
		default:
			sub.dropped = true
			delete(b.subs, sub)
			close(sub.ch)
			b.logger.Warn("subscriber dropped, queue full",
				"workflow_id", e.WorkflowID,
				"seq", e.Seq)
		}
	}
	return nil
}

// Finish implements engine.Finisher. Every subscriber receives the end
// frame and its channel is closed.
func (b *Broadcaster) Finish(_ context.Context, final state.WorkflowState, runErr error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.end != nil {
		return nil
	}
	end := endEnvelope(b.ws, b.seq, runErr)
	b.end = &end
	for sub := range b.subs {
		// The queue has two slots beyond the buffer, so the end frame fits
		// unless the subscriber is already a full buffer behind.
		select {
		case sub.ch <- end:
		default:
			sub.dropped = true
		}
		close(sub.ch)
	}
	clear(b.subs)

	if final.WorkflowID == b.ws.WorkflowID && !state.Equal(final, b.ws) {
		b.logger.Warn("broadcast state differs from producer at finish",
			"workflow_id", final.WorkflowID,
			"seq", b.seq)
	}
	return nil
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
