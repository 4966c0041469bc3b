package store

import (
	"context"
	"fmt"

	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// ReplayResult is the outcome of folding a journal.
type ReplayResult struct {
	Workflow Workflow
	Final    state.WorkflowState
	Updates  int
	LastSeq  int64
}

// ReplayError reports the first journal entry that does not reproduce the
// producer's recorded state.
type ReplayError struct {
	WorkflowID string
	Seq        int64
	Reason     string
	Err        error // Underlying patch error, if any
}

func (e *ReplayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("replay %s at seq %d: %s: %v", e.WorkflowID, e.Seq, e.Reason, e.Err)
	}
	return fmt.Sprintf("replay %s at seq %d: %s", e.WorkflowID, e.Seq, e.Reason)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// Replay folds every journaled update onto the initial snapshot and checks
// that seqs are contiguous and that each recorded digest matches the
// replayed state. When the run has finished, the final digest is checked too.
func (s *Store) Replay(ctx context.Context, workflowID string) (ReplayResult, error) {
	wf, err := s.ReadWorkflow(ctx, workflowID)
	if err != nil {
		return ReplayResult{}, err
	}
	records, err := s.ReadUpdates(ctx, workflowID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: %w", workflowID, err)
	}

	res := ReplayResult{Workflow: wf, Final: wf.Initial.Clone()}
	if got := res.Final.Digest(); got != wf.Digest {
		return res, &ReplayError{WorkflowID: workflowID, Reason: "initial snapshot digest mismatch"}
	}

	for i, rec := range records {
		if i > 0 && rec.Seq != res.LastSeq+1 {
			return res, &ReplayError{
				WorkflowID: workflowID,
				Seq:        rec.Seq,
				Reason:     fmt.Sprintf("gap in journal after seq %d", res.LastSeq),
			}
		}
		if err := patch.ApplyInPlace(&res.Final, rec.Update); err != nil {
			return res, &ReplayError{WorkflowID: workflowID, Seq: rec.Seq, Reason: "update rejected", Err: err}
		}
		if got := res.Final.Digest(); got != rec.Digest {
			return res, &ReplayError{
				WorkflowID: workflowID,
				Seq:        rec.Seq,
				Reason:     fmt.Sprintf("state digest %s, journal recorded %s", short(got), short(rec.Digest)),
			}
		}
		res.Updates++
		res.LastSeq = rec.Seq
	}

	if wf.FinalDigest != "" && wf.FinalDigest != res.Final.Digest() {
		return res, &ReplayError{
			WorkflowID: workflowID,
			Seq:        res.LastSeq,
			Reason:     "final state does not match the recorded outcome",
		}
	}
	return res, nil
}

// Snapshot returns the latest journaled state of a workflow. It lets a
// replica resynchronize from the journal.
func (s *Store) Snapshot(ctx context.Context, workflowID string) (state.WorkflowState, error) {
	res, err := s.Replay(ctx, workflowID)
	if err != nil {
		return state.WorkflowState{}, err
	}
	return res.Final, nil
}

func short(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
