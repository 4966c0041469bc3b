package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// Run outcomes recorded in workflows.status.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrWorkflowConflict is returned when a workflow id is already recorded
// with a different initial snapshot.
var ErrWorkflowConflict = errors.New("workflow already recorded with a different snapshot")

// WriteWorkflow records the initial snapshot of a run.
// Writing the same snapshot twice is a no-op.
func (s *Store) WriteWorkflow(ctx context.Context, ws state.WorkflowState) error {
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	snapshot, err := marshalSnapshot(ws)
	if err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	digest := ws.Digest()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows
		(id, title, snapshot, digest, task_count, engine_version, protocol_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ws.WorkflowID,
		ws.Title,
		snapshot,
		digest,
		len(ws.Tasks),
		ir.EngineVersion,
		ir.ProtocolVersion,
		state.FormatTime(s.now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return nil
	}

	var existing string
	if err := s.db.QueryRowContext(ctx, `SELECT digest FROM workflows WHERE id = ?`, ws.WorkflowID).Scan(&existing); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	if existing != digest {
		return fmt.Errorf("write workflow %s: %w", ws.WorkflowID, ErrWorkflowConflict)
	}
	return nil
}

// AppendUpdate journals one emitted update and returns its content-addressed id.
//
// Uses ON CONFLICT(id) DO NOTHING, so re-appending an identical update is a
// no-op. A different update at an occupied (workflow_id, seq) still fails
// on the UNIQUE constraint.
func (s *Store) AppendUpdate(ctx context.Context, workflowID string, seq int64, u patch.StateUpdate, digest string) (string, error) {
	body, err := marshalUpdate(u)
	if err != nil {
		return "", fmt.Errorf("append update: %w", err)
	}
	id, err := ir.UpdateID(workflowID, seq, u.Object())
	if err != nil {
		return "", fmt.Errorf("append update: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO updates
		(id, workflow_id, seq, description, body, digest)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		workflowID,
		seq,
		u.Description,
		body,
		digest,
	)
	if err != nil {
		return "", fmt.Errorf("append update %s#%d: %w", workflowID, seq, err)
	}
	return id, nil
}

// FinishWorkflow records how a run ended. runErr nil means the run
// completed; otherwise its message is kept.
func (s *Store) FinishWorkflow(ctx context.Context, workflowID string, final state.WorkflowState, runErr error) error {
	status, msg := StatusCompleted, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET status = ?, error = ?, final_digest = ?
		WHERE id = ?
	`, status, msg, final.Digest(), workflowID)
	if err != nil {
		return fmt.Errorf("finish workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish workflow %s: %w", workflowID, sql.ErrNoRows)
	}
	return nil
}
