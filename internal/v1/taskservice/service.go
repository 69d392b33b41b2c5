// Package taskservice implements the Task Service (C3): authoritative
// CRUD for tasks, the nine operations of spec.md §4.3, invariant
// enforcement (I1-I5), and the per-task serialization of the mutation
// path (§5). It depends on the Conflict Controller for version checks
// and implements conflict.Updater so the Conflict Controller can reapply
// a merged patch without the two packages importing each other.
package taskservice

import (
	"context"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/assignment"
	"github.com/taskboard/core/internal/v1/conflict"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/types"
)

// Service is the Task Service. It satisfies conflict.Updater.
type Service struct {
	store      store.Store
	fanout     types.Fanout
	conflicts  *conflict.Controller
	assignment *assignment.Engine
	activity   activity.Recorder
	validate   *validator.Validate
}

// New wires a Service. Callers must follow construction with
// conflicts.SetUpdater(svc) since the Conflict Controller needs a
// reference back to the Task Service it was built before.
func New(s store.Store, fanout types.Fanout, conflicts *conflict.Controller, eng *assignment.Engine, rec activity.Recorder) *Service {
	v := validator.New()
	v.SetTagName("binding")
	return &Service{
		store:      s,
		fanout:     fanout,
		conflicts:  conflicts,
		assignment: eng,
		activity:   rec,
		validate:   v,
	}
}

// ListTasks returns non-archived tasks, optionally filtered, grouped by
// column and sorted by (position asc, createdAt desc) per spec.md §4.3.
func (s *Service) ListTasks(ctx context.Context, filter types.TaskFilter) (*types.TaskListResult, *types.Error) {
	all, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to list tasks")
	}

	result := &types.TaskListResult{}
	for _, t := range all {
		if t.IsArchived {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && t.Priority != *filter.Priority {
			continue
		}
		if filter.AssignedTo != nil {
			if t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo {
				continue
			}
		}

		switch t.Status {
		case types.StatusTodo:
			result.Todo = append(result.Todo, t)
		case types.StatusInProgress:
			result.InProgress = append(result.InProgress, t)
		case types.StatusDone:
			result.Done = append(result.Done, t)
		}
	}

	sortColumn(result.Todo)
	sortColumn(result.InProgress)
	sortColumn(result.Done)

	return result, nil
}

func sortColumn(tasks []*types.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
}

// GetTask returns a single non-archived task. Archived tasks 404.
func (s *Service) GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, *types.Error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil || t.IsArchived {
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}
	return t, nil
}

// CreateTask validates input, enforces I1-I3, and assigns version=1,
// position=max(column)+1. Emits task.created.
func (s *Service) CreateTask(ctx context.Context, input types.CreateTaskInput, actor uuid.UUID) (*types.Task, *types.Error) {
	start := time.Now()
	defer func() { metrics.MutationDuration.WithLabelValues("create").Observe(time.Since(start).Seconds()) }()

	if verr := s.validateCreate(ctx, input); verr != nil {
		metrics.TaskMutationsTotal.WithLabelValues("create", "validation_error").Inc()
		return nil, verr
	}

	status := input.Status
	if status == "" {
		status = types.StatusTodo
	}
	priority := input.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}

	maxPos, err := s.store.MaxPosition(ctx, status)
	if err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("create", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to compute position")
	}

	now := time.Now().UTC()
	task := &types.Task{
		ID:             uuid.New(),
		Title:          input.Title,
		Description:    input.Description,
		Status:         status,
		Priority:       priority,
		AssignedTo:     input.AssignedTo,
		CreatedBy:      actor,
		DueDate:        input.DueDate,
		Tags:           append([]string(nil), input.Tags...),
		Position:       maxPos + 1,
		Version:        1,
		LastModifiedAt: now,
		LastModifiedBy: actor,
		CreatedAt:      now,
	}

	if err := s.store.CreateTask(ctx, task); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("create", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist task")
	}

	metrics.TaskMutationsTotal.WithLabelValues("create", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskCreated, task, nil, task, actor, "task.created")
	return task, nil
}

func (s *Service) validateCreate(ctx context.Context, input types.CreateTaskInput) *types.Error {
	if err := s.validate.Struct(input); err != nil {
		return validationErrorFromStructErr(err)
	}
	if types.IsReservedTitle(input.Title) {
		return types.NewError(types.ErrReservedTitle, "title is a reserved column name")
	}
	exists, err := s.store.TitleExists(ctx, input.Title, uuid.Nil)
	if err != nil {
		return types.NewError(types.ErrInternal, "failed to check title uniqueness")
	}
	if exists {
		return types.NewError(types.ErrDuplicateTitle, "a non-archived task with this title already exists")
	}
	if input.Status != "" && !input.Status.Valid() {
		return types.ValidationError(types.FieldError{Field: "status", Reason: "invalid status"})
	}
	if input.Priority != "" && !input.Priority.Valid() {
		return types.ValidationError(types.FieldError{Field: "priority", Reason: "invalid priority"})
	}
	if input.AssignedTo != nil {
		if verr := s.validateAssignee(ctx, *input.AssignedTo); verr != nil {
			return verr
		}
	}
	if input.DueDate != nil && input.DueDate.Before(time.Now()) {
		return types.ValidationError(types.FieldError{Field: "dueDate", Reason: "must be in the future"})
	}
	return nil
}

func (s *Service) validateAssignee(ctx context.Context, userID uuid.UUID) *types.Error {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil || !u.IsActive {
		return types.NewError(types.ErrInvalidAssignee, "assignee must reference an active user")
	}
	return nil
}

func validationErrorFromStructErr(err error) *types.Error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.ValidationError(types.FieldError{Field: "input", Reason: err.Error()})
	}
	fields := make([]types.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, types.FieldError{Field: fe.Field(), Reason: fe.Tag()})
	}
	return types.ValidationError(fields...)
}

// emitTaskEvent records an activity and broadcasts to board + task rooms.
// It always broadcasts with an empty exceptSession, so the originating
// session receives both the dispatcher's direct ack (replyKindAck) and
// this room echo for its own mutation. The Task Service has no session
// identity to exclude: a sessionID would have to be threaded through
// every mutation method's signature solely to pass it back out here.
// Clients are expected to reconcile on task.id + version rather than
// assume a mutation they issued never reappears as a broadcast.
func (s *Service) emitTaskEvent(ctx context.Context, eventKind string, task *types.Task, before, after *types.Task, actor uuid.UUID, action string) {
	if s.fanout != nil {
		frame, err := types.NewFrame(eventKind, "", types.TaskEvent{Task: task, Before: before, After: after})
		if err == nil {
			s.fanout.Broadcast(types.BoardRoom(), frame, "")
			s.fanout.Broadcast(types.TaskRoom(task.ID), frame, "")
		}
	}
	if s.activity != nil {
		s.activity.Record(ctx, types.ActivityRecord{
			Action:     action,
			Actor:      actor,
			Target:     &task.ID,
			TargetKind: "task",
			Before:     before,
			After:      after,
			Category:   types.CategoryTask,
			Severity:   types.SeverityLow,
			IsResolved: true,
		})
	}
}
