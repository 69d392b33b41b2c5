package taskservice

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// MoveTask relocates taskID to (toStatus, toPosition), renumbering only
// the positions that change:
//   - same column: remove at i, reinsert at min(j, len-1), renumber the
//     affected range.
//   - different columns: remove from source (decrement positions > i),
//     insert into target at j (increment positions >= j), renumber only
//     the affected elements in each column.
//
// Every task whose position changes — the moved task and any renumbered
// sibling — has its version bumped by one.
func (s *Service) MoveTask(ctx context.Context, taskID uuid.UUID, toStatus types.Status, toPosition int, actor uuid.UUID, knownVersion int) (*types.Task, *types.Error) {
	start := time.Now()
	defer func() { metrics.MutationDuration.WithLabelValues("move").Observe(time.Since(start).Seconds()) }()

	unlock := s.store.TaskLock(taskID)
	defer unlock()

	moving, err := s.store.GetTask(ctx, taskID)
	if err != nil || moving.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("move", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}

	if s.conflicts != nil {
		if cerr := s.conflicts.CheckVersion(ctx, moving, knownVersion, types.TaskPatch{}, actor); cerr != nil {
			metrics.TaskMutationsTotal.WithLabelValues("move", "conflict").Inc()
			return nil, cerr
		}
	}

	before := moving.Clone()
	sourceStatus := moving.Status

	all, err := s.store.ListTasks(ctx)
	if err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("move", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to list tasks for re-normalization")
	}

	now := time.Now().UTC()
	var touched []*types.Task

	if sourceStatus == toStatus {
		column := columnOf(all, toStatus, taskID)
		// spec.md §4.3: reinsert at min(j, len(T)-1), where len(T) counts
		// the moving task itself (original column length); since `column`
		// already excludes it, len(T)-1 == len(column).
		target := clamp(toPosition, 0, len(column))

		reordered := insertAt(column, moving, target)
		touched = renumber(reordered)
	} else {
		sourceColumn := columnOf(all, sourceStatus, taskID)
		targetColumn := columnOf(all, toStatus, uuid.Nil)
		target := clamp(toPosition, 0, len(targetColumn))

		touchedSource := renumber(sourceColumn)
		reorderedTarget := insertAt(targetColumn, moving, target)
		touchedTarget := renumber(reorderedTarget)

		touched = append(touchedSource, touchedTarget...)
	}

	movingPreviousVersion := moving.Version
	moving.Status = toStatus
	moving.Version++
	moving.LastModifiedAt = now
	moving.LastModifiedBy = actor

	if err := s.persistMove(ctx, moving, movingPreviousVersion, touched, actor, now); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("move", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist move")
	}

	metrics.TaskMutationsTotal.WithLabelValues("move", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskMoved, moving, before, moving, actor, "task.moved")
	return moving, nil
}

// persistMove saves the moving task plus every other task whose position
// changed as a side effect. Every touched task's version bumps by one,
// including re-numbered siblings — a move mutates the ordering invariant
// (I4) for the whole column, not just the task named in the call.
func (s *Service) persistMove(ctx context.Context, moving *types.Task, movingPreviousVersion int, touched []*types.Task, actor uuid.UUID, now time.Time) error {
	if err := s.store.SaveTask(ctx, moving, movingPreviousVersion); err != nil {
		return err
	}
	for _, t := range touched {
		if t.ID == moving.ID {
			continue
		}
		previousVersion := t.Version
		t.Version++
		t.LastModifiedAt = now
		t.LastModifiedBy = actor
		if err := s.store.SaveTask(ctx, t, previousVersion); err != nil {
			return err
		}
	}
	return nil
}

// columnOf returns the non-archived tasks of status, sorted by position,
// excluding excludeID (the task being moved, already removed logically).
func columnOf(all []*types.Task, status types.Status, excludeID uuid.UUID) []*types.Task {
	out := make([]*types.Task, 0, len(all))
	for _, t := range all {
		if t.IsArchived || t.Status != status || t.ID == excludeID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// insertAt inserts task into column at index idx (clamped), returning the
// new ordering. Column must already be sorted by position and must not
// contain task.
func insertAt(column []*types.Task, task *types.Task, idx int) []*types.Task {
	if idx < 0 {
		idx = 0
	}
	if idx > len(column) {
		idx = len(column)
	}
	out := make([]*types.Task, 0, len(column)+1)
	out = append(out, column[:idx]...)
	out = append(out, task)
	out = append(out, column[idx:]...)
	return out
}

// renumber assigns Position = index for every element of ordered whose
// position actually changed, returning just the changed ones.
func renumber(ordered []*types.Task) []*types.Task {
	var touched []*types.Task
	for i, t := range ordered {
		if t.Position != i {
			t.Position = i
			touched = append(touched, t)
		}
	}
	return touched
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
