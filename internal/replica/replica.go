// Package replica is the consumer side of workflow state sync.
//
// A Replica owns an independent copy of a workflow's state. It is seeded
// with a full snapshot, then folds each received patch.StateUpdate through
// patch.Apply. A rejected batch leaves the copy untouched but marks the
// replica desynchronized; from then on it refuses updates until Resync
// installs a fresh snapshot.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

var (
	// ErrNotInstalled is returned by Apply before any snapshot was installed.
	ErrNotInstalled = errors.New("replica has no snapshot")

	// ErrDesynchronized is returned by Apply after a batch was rejected.
	// Only a fresh snapshot clears it.
	ErrDesynchronized = errors.New("replica is desynchronized")
)

// SnapshotSource provides a fresh, full snapshot of a workflow.
type SnapshotSource interface {
	Snapshot(ctx context.Context, workflowID string) (state.WorkflowState, error)
}

// SnapshotFunc adapts a function to SnapshotSource.
type SnapshotFunc func(ctx context.Context, workflowID string) (state.WorkflowState, error)

// Snapshot calls f.
func (f SnapshotFunc) Snapshot(ctx context.Context, workflowID string) (state.WorkflowState, error) {
	return f(ctx, workflowID)
}

// Replica is safe for concurrent use.
type Replica struct {
	mu        sync.Mutex
	ws        state.WorkflowState
	installed bool
	desync    error // Rejection that desynchronized the replica, nil when healthy
	applied   int   // Updates folded since the last snapshot
	onChange  func(state.WorkflowState)
	logger    *slog.Logger
}

// Option configures a Replica.
type Option func(*Replica)

// OnChange registers fn to run after every installed snapshot and every
// successfully folded update. fn receives a copy and runs without the
// replica's lock held.
func OnChange(fn func(state.WorkflowState)) Option {
	return func(r *Replica) { r.onChange = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) { r.logger = l }
}

// New creates an empty replica.
func New(opts ...Option) *Replica {
	r := &Replica{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install replaces the local copy with snapshot and clears any desync.
func (r *Replica) Install(snapshot state.WorkflowState) error {
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}
	r.mu.Lock()
	r.ws = snapshot.Clone()
	r.installed = true
	r.desync = nil
	r.applied = 0
	view := r.ws.Clone()
	r.mu.Unlock()

	r.logger.Debug("snapshot installed",
		"workflow_id", view.WorkflowID,
		"digest", view.Digest())
	r.notify(view)
	return nil
}

// Apply folds u into the local copy. A patch error marks the replica
// desynchronized and is returned as is; callers test it with patch.IsDesync.
func (r *Replica) Apply(u patch.StateUpdate) error {
	r.mu.Lock()
	if !r.installed {
		r.mu.Unlock()
		return ErrNotInstalled
	}
	if r.desync != nil {
		err := r.desync
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrDesynchronized, err)
	}
	if err := patch.ApplyInPlace(&r.ws, u); err != nil {
		r.desync = err
		workflowID := r.ws.WorkflowID
		r.mu.Unlock()
		r.logger.Warn("update rejected, replica desynchronized",
			"workflow_id", workflowID,
			"description", u.Description,
			"error", err)
		return err
	}
	r.applied++
	view := r.ws.Clone()
	r.mu.Unlock()

	r.notify(view)
	return nil
}

// Resync fetches a fresh snapshot for the replica's workflow and installs it.
func (r *Replica) Resync(ctx context.Context, src SnapshotSource) error {
	r.mu.Lock()
	workflowID := r.ws.WorkflowID
	installed := r.installed
	r.mu.Unlock()
	if !installed {
		return ErrNotInstalled
	}

	snap, err := src.Snapshot(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("resync %s: %w", workflowID, err)
	}
	if snap.WorkflowID != workflowID {
		return fmt.Errorf("resync %s: source returned workflow %q", workflowID, snap.WorkflowID)
	}
	r.logger.Info("resynchronizing from snapshot", "workflow_id", workflowID)
	return r.Install(snap)
}

// State returns a copy of the local state.
func (r *Replica) State() state.WorkflowState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ws.Clone()
}

// Desynced returns the rejection that desynchronized the replica, or nil.
func (r *Replica) Desynced() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.desync
}

// Applied returns the number of updates folded since the last snapshot.
func (r *Replica) Applied() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

func (r *Replica) notify(view state.WorkflowState) {
	if r.onChange != nil {
		r.onChange(view)
	}
}
