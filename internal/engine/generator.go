package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/wfsync/internal/ir"
	"github.com/roach88/wfsync/internal/patch"
	"github.com/roach88/wfsync/internal/state"
)

// Emission is one yielded batch with its position and the digest of the
// producer's state after applying it.
type Emission struct {
	WorkflowID string
	Seq        int64
	Update     patch.StateUpdate
	Digest     string
}

// Generator is the producer loop. It owns the canonical state; callers only
// ever see clones.
//
// A Generator is single-use. Once Updates or Emissions has been ranged over,
// any further range yields ErrGeneratorConsumed.
type Generator struct {
	initial  state.WorkflowState
	current  state.WorkflowState
	source   EventSource
	delay    time.Duration
	sleeper  Sleeper
	now      func() time.Time
	clock    *Clock
	logger   *slog.Logger
	consumed atomic.Bool
	done     atomic.Bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithDelay sets the base pacing delay between batches. Zero disables pacing.
func WithDelay(d time.Duration) Option {
	return func(g *Generator) { g.delay = d }
}

// WithSleeper replaces the timer used for pacing.
func WithSleeper(s Sleeper) Option {
	return func(g *Generator) { g.sleeper = s }
}

// WithNow sets the wall clock used for update and field timestamps.
func WithNow(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithClock sets the logical clock, e.g. to resume numbering.
func WithClock(c *Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator for a fresh workflow snapshot: every task
// PENDING at progress 0, overall progress 0, not yet started.
func NewGenerator(initial state.WorkflowState, source EventSource, opts ...Option) (*Generator, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
	if initial.OverallProgress != 0 || initial.StartedAt != nil || initial.CompletedAt != nil {
		return nil, fmt.Errorf("initial snapshot: workflow %q has already started", initial.WorkflowID)
	}
	for i, t := range initial.Tasks {
		if t.Status != state.StatusPending || t.Progress != 0 {
			return nil, fmt.Errorf("initial snapshot: task %d (%s) is %s at %d%%, want pending at 0%%", i, t.ID, t.Status, t.Progress)
		}
	}
	if source == nil {
		return nil, errors.New("event source is required")
	}

	g := &Generator{
		initial: initial.Clone(),
		current: initial.Clone(),
		source:  source,
		sleeper: TimerSleeper{},
		now:     time.Now,
		clock:   NewClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Initial returns a copy of the snapshot the generator started from.
func (g *Generator) Initial() state.WorkflowState {
	return g.initial.Clone()
}

// State returns a copy of the producer's canonical state. Call it between
// iterations (or after), never concurrently with them.
func (g *Generator) State() state.WorkflowState {
	return g.current.Clone()
}

// Done reports whether the generator emitted "Workflow completed".
func (g *Generator) Done() bool {
	return g.done.Load()
}

// Updates yields the update batches. Iteration ends after the final batch,
// at the first error, or when the caller stops ranging.
func (g *Generator) Updates(ctx context.Context) iter.Seq2[patch.StateUpdate, error] {
	return func(yield func(patch.StateUpdate, error) bool) {
		for e, err := range g.Emissions(ctx) {
			if !yield(e.Update, err) {
				return
			}
		}
	}
}

// Emissions is Updates with sequence numbers and post-apply digests.
func (g *Generator) Emissions(ctx context.Context) iter.Seq2[Emission, error] {
	return func(yield func(Emission, error) bool) {
		if !g.consumed.CompareAndSwap(false, true) {
			yield(Emission{}, ErrGeneratorConsumed)
			return
		}
		r := &pass{g: g, ctx: ctx, yield: yield}
		if err := r.run(); err != nil && !errors.Is(err, errStopped) {
			g.logger.Warn("update sequence ended with error",
				"workflow_id", g.current.WorkflowID,
				"error", err)
			yield(Emission{}, err)
		}
	}
}

// errStopped means the caller stopped ranging; nothing more may be yielded.
var errStopped = errors.New("iteration stopped")

// pass is one walk through the workflow.
type pass struct {
	g      *Generator
	ctx    context.Context
	yield  func(Emission, error) bool
	active int // Index of the task being worked on, -1 before the first
}

func (r *pass) run() error {
	g := r.g
	r.active = -1
	g.logger.Info("workflow started",
		"workflow_id", g.current.WorkflowID,
		"tasks", len(g.current.Tasks))

	if err := r.emit("Workflow started", paceStart,
		patch.Replace(patch.RootPath(patch.FieldStartedAt), r.stamp()),
	); err != nil {
		return err
	}

	for {
		ev, err := g.source.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("event source: %w", err)
		}
		if err := r.handle(ev); err != nil {
			return err
		}
	}

	if !g.current.AllTerminal() {
		return &OrderError{
			Code:      ErrCodeIncomplete,
			TaskIndex: -1,
			Expected:  r.active,
			Message:   fmt.Sprintf("event source ended with %d of %d tasks unfinished", r.unfinished(), len(g.current.Tasks)),
		}
	}

	if err := r.emit("Workflow completed", 0,
		patch.Replace(patch.RootPath(patch.FieldCompletedAt), r.stamp()),
	); err != nil {
		return err
	}
	g.done.Store(true)
	g.logger.Info("workflow completed",
		"workflow_id", g.current.WorkflowID,
		"overall_progress", g.current.OverallProgress,
		"seq", g.clock.Current())
	return nil
}

func (r *pass) handle(ev TaskEvent) error {
	tasks := r.g.current.Tasks
	if ev.TaskIndex < 0 || ev.TaskIndex >= len(tasks) {
		return &OrderError{Code: ErrCodeOutOfOrder, TaskIndex: ev.TaskIndex, Expected: r.next(),
			Message: fmt.Sprintf("task index outside 0..%d", len(tasks)-1)}
	}

	if r.active < 0 || tasks[r.active].Status.IsTerminal() {
		if ev.TaskIndex != r.active+1 {
			return &OrderError{Code: ErrCodeOutOfOrder, TaskIndex: ev.TaskIndex, Expected: r.active + 1,
				Message: "event does not belong to the next task"}
		}
		r.active = ev.TaskIndex
		if err := r.emit(fmt.Sprintf("Moving to task %d", r.active+1), paceMove,
			patch.Replace(patch.RootPath(patch.FieldCurrentTaskIndex), ir.Int(r.active)),
		); err != nil {
			return err
		}
	} else if ev.TaskIndex != r.active {
		return &OrderError{Code: ErrCodeOutOfOrder, TaskIndex: ev.TaskIndex, Expected: r.active,
			Message: fmt.Sprintf("task %d has not finished", r.active)}
	}

	i := r.active
	task := r.g.current.Tasks[i]
	if err := checkEvent(task, ev); err != nil {
		return err
	}

	switch ev.Stage {
	case StageAnalyzing:
		return r.emit("Analyzing: "+task.Title, paceAnalyze, r.startOps(i, state.StatusAnalyzing)...)
	case StageInProgress:
		return r.emit("Executing: "+task.Title, paceExecute, r.startOps(i, state.StatusInProgress)...)
	case StageProgress:
		return r.emit(fmt.Sprintf("%s: %d%% complete", task.Title, ev.Progress), paceProgress,
			patch.Replace(patch.TaskPath(i, patch.FieldProgress), ir.Int(ev.Progress)))
	case StageCompleted:
		result := ev.Result
		if result == "" {
			result = task.Title + " completed successfully"
		}
		completed := r.g.current.CompletedCount() + 1
		return r.emit("Completed: "+task.Title, paceTerminal,
			patch.Replace(patch.TaskPath(i, patch.FieldStatus), ir.String(state.StatusCompleted)),
			patch.Replace(patch.TaskPath(i, patch.FieldResult), ir.String(result)),
			patch.Replace(patch.TaskPath(i, patch.FieldCompletedAt), r.stamp()),
			patch.Replace(patch.RootPath(patch.FieldOverallProgress), ir.Int(state.OverallProgress(completed, len(tasks)))),
		)
	case StageFailed:
		result := ev.Result
		if result == "" {
			result = task.Title + " failed"
		}
		completed := r.g.current.CompletedCount()
		return r.emit("Failed: "+task.Title, paceTerminal,
			patch.Replace(patch.TaskPath(i, patch.FieldStatus), ir.String(state.StatusFailed)),
			patch.Replace(patch.TaskPath(i, patch.FieldResult), ir.String(result)),
			patch.Replace(patch.RootPath(patch.FieldOverallProgress), ir.Int(state.OverallProgress(completed, len(tasks)))),
		)
	default:
		return &OrderError{Code: ErrCodeUnknownStage, TaskIndex: ev.TaskIndex, Expected: r.active,
			Message: fmt.Sprintf("unknown stage %q", ev.Stage)}
	}
}

// startOps moves task i to status, stamping started_at the first time the
// task leaves PENDING.
func (r *pass) startOps(i int, status state.TaskStatus) []patch.Operation {
	ops := []patch.Operation{
		patch.Replace(patch.TaskPath(i, patch.FieldStatus), ir.String(status)),
	}
	if r.g.current.Tasks[i].StartedAt == nil {
		ops = append(ops, patch.Replace(patch.TaskPath(i, patch.FieldStartedAt), r.stamp()))
	}
	return ops
}

// checkEvent rejects agent events that would break the task lifecycle. Such
// events are the agent's fault and end the sequence with an error; they are
// never turned into updates.
func checkEvent(task state.TaskItem, ev TaskEvent) error {
	violation := func(field, reason string) error {
		return &patch.StateInvariantViolation{
			OpIndex: -1,
			Path:    patch.TaskPath(ev.TaskIndex, field),
			Reason:  reason,
		}
	}
	if task.Status.IsTerminal() {
		return violation(patch.FieldStatus, fmt.Sprintf("task %q is already %s", task.ID, task.Status))
	}
	switch ev.Stage {
	case StageAnalyzing, StageInProgress, StageCompleted, StageFailed:
		to := state.TaskStatus(ev.Stage)
		if task.Status == to || !state.CanTransition(task.Status, to) {
			return violation(patch.FieldStatus, fmt.Sprintf("cannot move from %s to %s", task.Status, to))
		}
	case StageProgress:
		if task.Status == state.StatusPending {
			return violation(patch.FieldProgress, "progress reported before the task started")
		}
		if ev.Progress < task.Progress || ev.Progress > 100 {
			return violation(patch.FieldProgress, fmt.Sprintf("progress %d after %d", ev.Progress, task.Progress))
		}
	}
	return nil
}

// emit builds a batch, applies it to the canonical state and yields it.
// The pacing delay runs after the caller has taken the batch.
func (r *pass) emit(description string, weight float64, ops ...patch.Operation) error {
	g := r.g
	if err := r.ctx.Err(); err != nil {
		return err
	}

	u := patch.StateUpdate{
		Timestamp:   g.now().UTC(),
		Operations:  ops,
		Description: description,
	}
	// The generator built u from its own state, so a rejection here is a
	// programming error, not a runtime condition.
	next, err := patch.Apply(g.current, u)
	if err != nil {
		panic(fmt.Sprintf("engine: generator produced an inapplicable update %q: %v", description, err))
	}
	g.current = next

	e := Emission{
		WorkflowID: next.WorkflowID,
		Seq:        g.clock.Next(),
		Update:     u.Clone(),
		Digest:     next.Digest(),
	}
	g.logger.Debug("update emitted",
		"workflow_id", e.WorkflowID,
		"seq", e.Seq,
		"ops", len(u.Operations),
		"description", description)

	if !r.yield(e, nil) {
		return errStopped
	}
	if weight > 0 && g.delay > 0 {
		if err := g.sleeper.Sleep(r.ctx, scale(g.delay, weight)); err != nil {
			return err
		}
	}
	return nil
}

func (r *pass) stamp() ir.String {
	return ir.String(state.FormatTime(r.g.now().UTC()))
}

func (r *pass) next() int {
	if r.active < 0 || r.g.current.Tasks[r.active].Status.IsTerminal() {
		return r.active + 1
	}
	return r.active
}

func (r *pass) unfinished() int {
	n := 0
	for _, t := range r.g.current.Tasks {
		if !t.Status.IsTerminal() {
			n++
		}
	}
	return n
}
