package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/wfsync/internal/state"
)

// Sink receives every emission in order. A Sink error stops the run.
type Sink interface {
	Emit(ctx context.Context, e Emission) error
}

// Finisher is implemented by sinks that want the final state once the
// sequence ends, successfully or not.
type Finisher interface {
	Finish(ctx context.Context, final state.WorkflowState, runErr error) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Emission) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Emission) error {
	return f(ctx, e)
}

// Summary describes a finished run.
type Summary struct {
	Updates int
	LastSeq int64
	Final   state.WorkflowState
}

// Run drains gen into sinks, delivering each emission to every sink in the
// order given before pulling the next one.
//
// The returned Summary is valid even when err is non-nil; Final is then the
// producer's state at the point the run stopped.
func Run(ctx context.Context, gen *Generator, sinks ...Sink) (Summary, error) {
	var sum Summary
	runErr := drain(ctx, gen, sinks, &sum)
	sum.Final = gen.State()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	for _, s := range sinks {
		f, ok := s.(Finisher)
		if !ok {
			continue
		}
		// Finishers still run after cancellation so journals and
		// subscribers learn how the run ended.
		if err := f.Finish(context.WithoutCancel(ctx), sum.Final, runErr); err != nil {
			errs = append(errs, fmt.Errorf("finish sink: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		gen.logger.Error("run failed",
			"workflow_id", sum.Final.WorkflowID,
			"updates", sum.Updates,
			"error", err)
		return sum, err
	}
	gen.logger.Info("run finished",
		"workflow_id", sum.Final.WorkflowID,
		"updates", sum.Updates,
		"overall_progress", sum.Final.OverallProgress)
	return sum, nil
}

func drain(ctx context.Context, gen *Generator, sinks []Sink, sum *Summary) error {
	for e, err := range gen.Emissions(ctx) {
		if err != nil {
			return err
		}
		for _, s := range sinks {
			if err := s.Emit(ctx, e); err != nil {
				return fmt.Errorf("sink at seq %d: %w", e.Seq, err)
			}
		}
		sum.Updates++
		sum.LastSeq = e.Seq
	}
	return nil
}
