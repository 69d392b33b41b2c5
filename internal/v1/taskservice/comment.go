package taskservice

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// AddComment appends a comment without bumping version, per spec.md
// §4.3/§9's open-question resolution: comments are orthogonal to the
// conflict-checked fields, so task.commented never advances Version.
// Emits task.commented.
func (s *Service) AddComment(ctx context.Context, taskID uuid.UUID, text string, actor uuid.UUID) (*types.Task, *types.Error) {
	if text == "" || len(text) > types.MaxCommentLen {
		return nil, types.ValidationError(types.FieldError{Field: "text", Reason: "length"})
	}

	unlock := s.store.TaskLock(taskID)
	defer unlock()

	current, err := s.store.GetTask(ctx, taskID)
	if err != nil || current.IsArchived {
		metrics.TaskMutationsTotal.WithLabelValues("comment", "not_found").Inc()
		return nil, types.NewError(types.ErrNotFound, "task not found")
	}

	comment := types.Comment{Author: actor, Text: text, CreatedAt: time.Now().UTC()}
	current.Comments = append(current.Comments, comment)

	if err := s.store.SaveTask(ctx, current, current.Version); err != nil {
		metrics.TaskMutationsTotal.WithLabelValues("comment", "internal_error").Inc()
		return nil, types.NewError(types.ErrInternal, "failed to persist comment")
	}

	metrics.TaskMutationsTotal.WithLabelValues("comment", "success").Inc()
	s.emitTaskEvent(ctx, types.EventTaskCommented, current, nil, current, actor, "task.commented")
	return current, nil
}
