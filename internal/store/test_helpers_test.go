package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/wfsync/internal/engine"
	"github.com/roach88/wfsync/internal/state"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	s.SetNow(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) })
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestWorkflow creates a fresh two-task snapshot.
func createTestWorkflow(t *testing.T, id string) state.WorkflowState {
	t.Helper()
	ws, err := state.New(id, "Release", []state.TaskSpec{
		{ID: "build", Title: "Build"},
		{ID: "ship", Title: "Ship"},
	})
	if err != nil {
		t.Fatalf("state.New() failed: %v", err)
	}
	return ws
}

// runIntoStore runs the simulator for ws and journals every emission.
func runIntoStore(t *testing.T, s *Store, ws state.WorkflowState) engine.Summary {
	t.Helper()
	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	gen, err := engine.NewGenerator(ws,
		engine.NewSimulator([]engine.SimTask{{Title: "Build"}, {Title: "Ship", Trivial: true}}),
		engine.WithNow(func() time.Time { return fixed }),
		engine.WithLogger(quiet))
	if err != nil {
		t.Fatalf("NewGenerator() failed: %v", err)
	}
	journal, err := NewJournal(ctx, s, ws)
	if err != nil {
		t.Fatalf("NewJournal() failed: %v", err)
	}
	sum, err := engine.Run(ctx, gen, journal)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return sum
}
