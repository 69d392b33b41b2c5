package taskservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// AssignTask sets or clears assigneeID after a version check, validating
// the assignee is an active user (I3). Emits task.assigned or
// task.unassigned.
func (s *Service) AssignTask(ctx context.Context, taskID uuid.UUID, assigneeID *uuid.UUID, actor uuid.UUID, knownVersion int) (*types.Task, *types.Error) {
	start := time.Now()
	defer func() { metrics.MutationDuration.WithLabelValues("assign").Observe(time.Since(start).Seconds()) }()

	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil || current.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("assign", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}

	assignedTo := assigneeID
	patch := types.TaskPatch{AssignedTo: &assignedTo}
	if s.conflicts != nil {
		if cerr := s.conflicts.CheckVersion(ctx, current, knownVersion, patch, actor); cerr != nil {
			metrics.TaskMutationsTotal.WithLabelValues("assign", "conflict").Inc()
			return nil, cerr
		}
	}

	if assigneeID != nil {
		if verr := s.validateAssignee(ctx, *assigneeID); verr != nil {
			metrics.TaskMutationsTotal.WithLabelValues("assign", "invalid_assignee").Inc()
			return nil, verr
		}
	}

	before := current.Clone()
	previousVersion := current.Version
	current.AssignedTo = assigneeID
	current.Version++
	current.LastModifiedAt = time.Now().UTC()
	current.LastModifiedBy = actor

	if err := s.store.SaveTask(ctx, current, previousVersion); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("assign", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist assignment")
	}

	eventKind := types.EventTaskAssigned
	action := "task.assigned"
	if assigneeID == nil {
		eventKind = types.EventTaskUnassigned
		action = "task.unassigned"
	}

	metrics.TaskMutationsTotal.WithLabelValues("assign", "success").Inc()
	s.emitTaskEvent(ctx, eventKind, current, before, current, actor, action)
	return current, nil
}

// SmartAssignTask delegates assignee selection to the Assignment Engine,
// then applies it via the normal assignTask path (still version-checked).
func (s *Service) SmartAssignTask(ctx context.Context, taskID uuid.UUID, actor uuid.UUID, knownVersion int) (*types.SmartAssignResult, *types.Error) {
	if s.assignment == nil {
		return nil, types.NewError(types.ErrInternal, "assignment engine not configured")
	}
	assignee, err := s.assignment.Pick(ctx)
	if err != nil {
		return nil, err
	}

	task, aerr := s.AssignTask(ctx, taskID, &assignee, actor, knownVersion)
	if aerr != nil {
		return nil, aerr
	}

	return &types.SmartAssignResult{Task: task, Assignee: assignee}, nil
}
