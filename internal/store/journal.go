package store

import (
	"context"
	"fmt"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/state"
)

// Journal is an engine.Sink that appends every emission to the store and
// records the outcome when the run ends.
type Journal struct {
	store *Store
}

// NewJournal records the initial snapshot and returns a sink for its updates.
func NewJournal(ctx context.Context, s *Store, initial state.WorkflowState) (*Journal, error) {
	if err := s.WriteWorkflow(ctx, initial); err != nil {
		return nil, err
	}
	return &Journal{store: s}, nil
}

// Emit appends e.
func (j *Journal) Emit(ctx context.Context, e engine.Emission) error {
	if _, err := j.store.AppendUpdate(ctx, e.WorkflowID, e.Seq, e.Update, e.Digest); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	return nil
}

// Finish records the run outcome.
func (j *Journal) Finish(ctx context.Context, final state.WorkflowState, runErr error) error {
	return j.store.FinishWorkflow(ctx, final.WorkflowID, final, runErr)
}
