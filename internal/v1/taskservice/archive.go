package taskservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// ArchiveTask soft-deletes taskID. Authorization: creator or admin.
// Emits task.archived. Bumps version since archival mutates state.
func (s *Service) ArchiveTask(ctx context.Context, taskID uuid.UUID, actor uuid.UUID, actorIsAdmin bool) (*types.Task, *types.Error) {
	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("archive", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}
	if current.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("archive", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}
	if current.CreatedBy != actor && !actorIsAdmin {
		metrics.TaskMutationsTotal.WithLabelValues("archive", "forbidden").Inc()
		return nil, types.NewError(types.ErrForbidden, "only the creator or an admin may archive this task")
	}

	before := current.Clone()
	previousVersion := current.Version
	now := time.Now().UTC()
	current.IsArchived = true
	current.ArchivedAt = &now
	current.ArchivedBy = &actor
	current.Version++
	current.LastModifiedAt = now
	current.LastModifiedBy = actor

	if err := s.store.SaveTask(ctx, current, previousVersion); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("archive", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist archive")
	}

	metrics.TaskMutationsTotal.WithLabelValues("archive", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskArchived, current, before, current, actor, "task.archived")
	return current, nil
}

// DeleteTask hard-deletes taskID. Authorization: creator or admin.
// Only permitted on non-archived tasks. Emits task.deleted.
func (s *Service) DeleteTask(ctx context.Context, taskID uuid.UUID, actor uuid.UUID, actorIsAdmin bool) *types.Error {
	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil || current.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("delete", "not_found").Inc()
		return types.NewError(types.ErrNotFound, "task not found")
	}
	if current.CreatedBy != actor && !actorIsAdmin {
		metrics.TaskMutationsTotal.WithLabelValues("delete", "forbidden").Inc()
		return types.NewError(types.ErrForbidden, "only the creator or an admin may delete this task")
	}

	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("delete", "internal_error").Inc()
		return types.NewError(types.ErrInternal, "failed to delete task")
	}

	metrics.TaskMutationsTotal.WithLabelValues("delete", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskDeleted, current, current, nil, actor, "task.deleted")
	return nil
}
