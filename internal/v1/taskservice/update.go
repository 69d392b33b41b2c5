package taskservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// UpdateTask applies patch to taskID after a version check, per spec.md
// §4.3/§4.4. Emits task.updated with before/after.
func (s *Service) UpdateTask(ctx context.Context, taskID uuid.UUID, patch types.TaskPatch, actor uuid.UUID, knownVersion int) (*types.Task, *types.Error) {
	start := time.Now()
	defer func() { metrics.MutationDuration.WithLabelValues("update").Observe(time.Since(start).Seconds()) }()

	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil || current.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("update", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}

	if s.conflicts != nil {
		if cerr := s.conflicts.CheckVersion(ctx, current, knownVersion, patch, actor); cerr != nil {
			metrics.TaskMutationsTotal.WithLabelValues("update", "conflict").Inc()
			return nil, cerr
		}
	}

	before := current.Clone()
	previousVersion := current.Version
	if verr := s.applyPatch(ctx, current, patch); verr != nil {
		metrics.TaskMutationsTotal.WithLabelValues("update", "validation_error").Inc()
		return nil, verr
	}

	current.Version++
	current.LastModifiedAt = time.Now().UTC()
	current.LastModifiedBy = actor

	if err := s.store.SaveTask(ctx, current, previousVersion); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("update", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist update")
	}

	metrics.TaskMutationsTotal.WithLabelValues("update", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskUpdated, current, before, current, actor, "task.updated")
	return current, nil
}

// ApplyResolvedUpdate is conflict.Updater: it reapplies patch against the
// task's current state, checked against knownVersion (the server version
// at conflict-resolution time, not the client's original stale version).
// It otherwise follows the exact same path as UpdateTask.
func (s *Service) ApplyResolvedUpdate(ctx context.Context, taskID uuid.UUID, patch types.TaskPatch, knownVersion int, actor uuid.UUID) (*types.Task, *types.Error) {
	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil || current.IsArchived {
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}
	if current.Version != knownVersion {
		return nil, types.NewError(types.ErrConflict, "task changed again before the resolution could be applied")
	}

	before := current.Clone()
	previousVersion := current.Version
	if verr := s.applyPatch(ctx, current, patch); verr != nil {
		return nil, verr
	}

	current.Version++
	current.LastModifiedAt = time.Now().UTC()
	current.LastModifiedBy = actor

	if err := s.store.SaveTask(ctx, current, previousVersion); err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to persist update")
	}

	metrics.TaskMutationsTotal.WithLabelValues("update", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskUpdated, current, before, current, actor, "task.updated")
	return current, nil
}

// applyPatch mutates task in place with the non-nil fields of patch,
// validating as it goes. Caller must hold the task's per-task lock.
func (s *Service) applyPatch(ctx context.Context, task *types.Task, patch types.TaskPatch) *types.Error {
	if patch.Title != nil {
		title := *patch.Title
		if title == "" || len(title) > types.MaxTitleLen {
			return types.ValidationError(types.FieldError{Field: "title", Reason: "length"})
		}
		if types.IsReservedTitle(title) {
			return types.NewError(types.ErrReservedTitle, "title is a reserved column name")
		}
		if types.NormalizedTitle(title) != types.NormalizedTitle(task.Title) {
			exists, err := s.store.TitleExists(ctx, title, task.ID)
			if err != nil {
				return types.NewError(types.ErrInternal, "failed to check title uniqueness")
			}
			if exists {
				return types.NewError(types.ErrDuplicateTitle, "a non-archived task with this title already exists")
			}
		}
		task.Title = title
	}

	if patch.Description != nil {
		if len(*patch.Description) > types.MaxDescLen {
			return types.ValidationError(types.FieldError{Field: "description", Reason: "length"})
		}
		task.Description = *patch.Description
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return types.ValidationError(types.FieldError{Field: "status", Reason: "invalid"})
		}
		task.Status = *patch.Status
	}

	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return types.ValidationError(types.FieldError{Field: "priority", Reason: "invalid"})
		}
		task.Priority = *patch.Priority
	}

	if patch.AssignedTo != nil {
		assignee := *patch.AssignedTo
		if assignee != nil {
			if verr := s.validateAssignee(ctx, *assignee); verr != nil {
				return verr
			}
		}
		task.AssignedTo = assignee
	}

	if patch.DueDate != nil {
		due := *patch.DueDate
		if due != nil && due.Before(time.Now()) {
			return types.ValidationError(types.FieldError{Field: "dueDate", Reason: "must be in the future"})
		}
		task.DueDate = due
	}

	if patch.Tags != nil {
		tags := *patch.Tags
		if len(tags) > types.MaxTags {
			return types.ValidationError(types.FieldError{Field: "tags", Reason: "too many tags"})
		}
		for _, tag := range tags {
			if len(tag) > types.MaxTagLen {
				return types.ValidationError(types.FieldError{Field: "tags", Reason: "tag too long"})
			}
		}
		task.Tags = append([]string(nil), tags...)
	}

	return nil
}
