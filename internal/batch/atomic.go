package batch

import (
	"context"
	"os"
	"path/filepath"

	"github.com/symbridge/symbridge/internal/bridgeerr"
	"github.com/symbridge/symbridge/internal/edit"
	"github.com/symbridge/symbridge/internal/protocol"
)

// MoveIntent and Previewable are edit.Engine's dry-run preview contract
// (spec.md §4.8 "Atomic": "aggregate the resulting WorkspaceEdits plus
// file-move intents into one transaction"); every real handler result type
// that can appear in a batch step — edit.Result, filemove.Result, and
// mcpserver's rename wrapper — implements it there or alongside it, so
// aliasing here avoids batch and edit importing each other.
type MoveIntent = edit.MoveIntent
type Previewable = edit.Previewable

// AtomicRunner builds one combined PlanTransaction from every step's
// dry-run preview, then commits it as a single C6 application with
// pre-snapshot rollback of both edits and file moves (spec.md §4.8).
type AtomicRunner struct {
	dispatch Dispatch
	editor   *edit.Engine
}

// NewAtomicRunner builds a runner that previews steps via dispatch (called
// with dryRun=true) and commits via editor.
func NewAtomicRunner(dispatch Dispatch, editor *edit.Engine) *AtomicRunner {
	return &AtomicRunner{dispatch: dispatch, editor: editor}
}

// Run executes ops atomically: every step is dry-run first; if any fails,
// the whole batch aborts before any disk change. On success (and unless
// dryRun is requested), planned moves are performed, then the aggregate
// edit is committed through one Engine.Apply call; a failure there rolls
// back the moves already made.
func (r *AtomicRunner) Run(ctx context.Context, ops []Operation, dryRun bool) ([]OperationResult, error) {
	results := make([]OperationResult, len(ops))
	combined := protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{}}
	var moves []MoveIntent

	for i, op := range ops {
		res, err := r.dispatch(ctx, op.Tool, op.Args, true)
		results[i] = OperationResult{ID: op.ID, Tool: op.Tool, Result: res, Err: err}
		if err != nil {
			return results, bridgeerr.Wrap(err, bridgeerr.ValidationError, "atomic batch: step \""+op.Tool+"\" failed its dry run; no disk changes were made")
		}
		if pv, ok := res.(Previewable); ok {
			preview := pv.PreviewEdit()
			for uri, edits := range preview.Changes {
				combined.Changes[uri] = append(combined.Changes[uri], edits...)
			}
			moves = append(moves, pv.PreviewMoves()...)
		}
	}

	if dryRun {
		return results, nil
	}

	performed, err := performMoves(moves)
	if err != nil {
		undoMoves(performed)
		return results, bridgeerr.Wrap(err, bridgeerr.Internal, "atomic batch: failed to apply a planned file move")
	}

	if len(combined.Changes) > 0 {
		if _, err := r.editor.Apply(ctx, combined, edit.Options{ValidateBeforeApply: true}); err != nil {
			undoMoves(performed)
			return results, err
		}
	}
	return results, nil
}

func performMoves(moves []MoveIntent) ([]MoveIntent, error) {
	done := make([]MoveIntent, 0, len(moves))
	for _, mv := range moves {
		if err := os.MkdirAll(filepath.Dir(mv.NewPath), 0o755); err != nil {
			return done, err
		}
		data, err := os.ReadFile(mv.OldPath)
		if err != nil {
			return done, err
		}
		info, err := os.Stat(mv.OldPath)
		if err != nil {
			return done, err
		}
		if err := os.WriteFile(mv.NewPath, data, info.Mode()); err != nil {
			return done, err
		}
		if err := os.Remove(mv.OldPath); err != nil {
			return done, err
		}
		done = append(done, mv)
	}
	return done, nil
}

func undoMoves(performed []MoveIntent) {
	for i := len(performed) - 1; i >= 0; i-- {
		mv := performed[i]
		data, err := os.ReadFile(mv.NewPath)
		if err != nil {
			continue
		}
		_ = os.WriteFile(mv.OldPath, data, 0o644)
		_ = os.Remove(mv.NewPath)
	}
}
