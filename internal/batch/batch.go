// Package batch implements the batch & workflow executor (C10):
// sequential, parallel, atomic, and dry-run execution of a list of tool
// invocations, plus named workflows with templated step arguments. The
// teacher has no batch feature; this generalizes its per-tool dispatch
// style (one handler func per tool, uniform error wrapping) into a
// multi-operation runner that calls back into whatever dispatches a single
// tool call (normally internal/registry), so batch_execute can run any
// registered tool without this package knowing about the tool registry.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/symbridge/symbridge/internal/bridgeerr"
)

// Operation is one step of a batch (spec.md §4.8's
// `{tool, args, id?}`).
type Operation struct {
	Tool string
	Args map[string]any
	ID   string
}

// OperationResult reports one operation's outcome, carrying its submitted
// ID so parallel mode's caller can correlate results back to operations
// regardless of completion order.
type OperationResult struct {
	ID      string
	Tool    string
	Result  any
	Err     error
	Skipped bool
}

// Options controls batch_execute (spec.md §4.8).
type Options struct {
	Atomic      bool `json:"atomic,omitempty"`
	Parallel    bool `json:"parallel,omitempty"`
	DryRun      bool `json:"dryRun,omitempty"`
	StopOnError bool `json:"stopOnError,omitempty"` // default true; only consulted in sequential mode
}

// DefaultOptions matches spec.md §4.8's defaults: sequential, stop on
// error, not atomic, not a dry run.
func DefaultOptions() Options {
	return Options{StopOnError: true}
}

// Dispatch invokes a single registered tool by name, threading dryRun
// through so every tool sees the same dry-run contract batch_execute
// propagates to it (spec.md §4.8 "Dry-run" mode). Supplied by whatever
// owns the tool registry (internal/registry), so this package stays
// ignorant of any specific tool's argument shape.
type Dispatch func(ctx context.Context, tool string, args map[string]any, dryRun bool) (any, error)

// Executor runs batches of operations against a Dispatch function.
// Atomic mode additionally needs an AtomicRunner to combine each step's
// planned edit into one transactional commit.
type Executor struct {
	dispatch Dispatch
	atomic   *AtomicRunner
}

// New builds an Executor. atomic may be nil if the caller never runs
// Options.Atomic batches (Execute returns an error in that case instead of
// panicking).
func New(dispatch Dispatch, atomic *AtomicRunner) *Executor {
	return &Executor{dispatch: dispatch, atomic: atomic}
}

// Execute runs ops according to opts, per spec.md §4.8.
func (e *Executor) Execute(ctx context.Context, ops []Operation, opts Options) ([]OperationResult, error) {
	if opts.Atomic {
		if e.atomic == nil {
			return nil, bridgeerr.New(bridgeerr.Internal, "atomic batch execution is not configured")
		}
		return e.atomic.Run(ctx, ops, opts.DryRun)
	}
	if opts.Parallel {
		return e.executeParallel(ctx, ops, opts.DryRun)
	}
	return e.executeSequential(ctx, ops, opts.DryRun, opts.StopOnError)
}

// executeSequential runs ops in declared order, halting on the first
// failure when stopOnError is set (the default).
func (e *Executor) executeSequential(ctx context.Context, ops []Operation, dryRun, stopOnError bool) ([]OperationResult, error) {
	results := make([]OperationResult, 0, len(ops))
	halted := false
	for _, op := range ops {
		if halted {
			results = append(results, OperationResult{ID: op.ID, Tool: op.Tool, Skipped: true})
			continue
		}
		res, err := e.dispatch(ctx, op.Tool, op.Args, dryRun)
		results = append(results, OperationResult{ID: op.ID, Tool: op.Tool, Result: res, Err: err})
		if err != nil && stopOnError {
			halted = true
		}
	}
	return results, nil
}

// executeParallel dispatches every operation concurrently; an individual
// failure does not cancel its siblings (spec.md §4.8 "Parallel"), so each
// goroutine records its own error into results rather than returning it to
// the group — errgroup here is just a join point, not a cancellation signal.
func (e *Executor) executeParallel(ctx context.Context, ops []Operation, dryRun bool) ([]OperationResult, error) {
	results := make([]OperationResult, len(ops))
	var g errgroup.Group
	for i, op := range ops {
		i, op := i, op
		g.Go(func() error {
			res, err := e.dispatch(ctx, op.Tool, op.Args, dryRun)
			results[i] = OperationResult{ID: op.ID, Tool: op.Tool, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}
