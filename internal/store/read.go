package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// ErrNotFound is returned when a workflow id is not in the journal.
var ErrNotFound = errors.New("workflow not found")

// Workflow is a journaled run.
type Workflow struct {
	ID              string
	Title           string
	Initial         state.WorkflowState
	Digest          string // Digest of Initial
	TaskCount       int
	Status          string // StatusRunning, StatusCompleted or StatusFailed
	Error           string
	FinalDigest     string // Empty while running
	EngineVersion   string
	ProtocolVersion string
	CreatedAt       string
	UpdateCount     int
	LastSeq         int64
}

// Record is one journaled update.
type Record struct {
	ID         string
	WorkflowID string
	Seq        int64
	Update     patch.StateUpdate
	Digest     string
}

const workflowColumns = `
	w.id, w.title, w.snapshot, w.digest, w.task_count, w.status, w.error,
	w.final_digest, w.engine_version, w.protocol_version, w.created_at,
	(SELECT COUNT(*) FROM updates u WHERE u.workflow_id = w.id),
	(SELECT COALESCE(MAX(seq), 0) FROM updates u WHERE u.workflow_id = w.id)
`

// ReadWorkflow returns a journaled run by id.
func (s *Store) ReadWorkflow(ctx context.Context, id string) (Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows w WHERE w.id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, fmt.Errorf("read workflow %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Workflow{}, fmt.Errorf("read workflow %s: %w", id, err)
	}
	return wf, nil
}

// ListWorkflows returns every journaled run ordered by id. Generated ids are
// UUIDv7, so this is creation order for runs without an explicit id.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workflowColumns+` FROM workflows w ORDER BY w.id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	workflows := []Workflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

// ReadUpdates returns a run's updates in seq order.
//
// Returns an empty slice (not nil) if the run has no updates.
func (s *Store) ReadUpdates(ctx context.Context, workflowID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, seq, body, digest
		FROM updates
		WHERE workflow_id = ?
		ORDER BY seq ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		var body string
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.Seq, &body, &rec.Digest); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		u, err := unmarshalUpdate(body)
		if err != nil {
			return nil, fmt.Errorf("update %s#%d: %w", workflowID, rec.Seq, err)
		}
		rec.Update = u
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(sc scanner) (Workflow, error) {
	var wf Workflow
	var snapshot string
	err := sc.Scan(
		&wf.ID,
		&wf.Title,
		&snapshot,
		&wf.Digest,
		&wf.TaskCount,
		&wf.Status,
		&wf.Error,
		&wf.FinalDigest,
		&wf.EngineVersion,
		&wf.ProtocolVersion,
		&wf.CreatedAt,
		&wf.UpdateCount,
		&wf.LastSeq,
	)
	if err != nil {
		return Workflow{}, err
	}
	initial, err := unmarshalSnapshot(snapshot)
	if err != nil {
		return Workflow{}, fmt.Errorf("workflow %s: %w", wf.ID, err)
	}
	wf.Initial = initial
	return wf, nil
}
