package taskservice

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/core/internal/v1/types"
)

func TestAddComment_AppendsWithoutBumpingVersion(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Discuss me", actor)

	updated, err := svc.AddComment(context.Background(), task.ID, "looks good", actor)

	require.Nil(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, "looks good", updated.Comments[0].Text)
	assert.Equal(t, actor, updated.Comments[0].Author)
	assert.Equal(t, task.Version, updated.Version, "comments are orthogonal to the conflict-checked fields")
}

func TestAddComment_MultipleCommentsPreserveOrder(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Discuss me", actor)

	_, err := svc.AddComment(context.Background(), task.ID, "first", actor)
	require.Nil(t, err)
	updated, err := svc.AddComment(context.Background(), task.ID, "second", actor)
	require.Nil(t, err)

	require.Len(t, updated.Comments, 2)
	assert.Equal(t, "first", updated.Comments[0].Text)
	assert.Equal(t, "second", updated.Comments[1].Text)
}

func TestAddComment_RejectsOversizedText(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Discuss me", actor)
	tooLong := strings.Repeat("x", types.MaxCommentLen+1)

	_, err := svc.AddComment(context.Background(), task.ID, tooLong, actor)

	require.NotNil(t, err)
	assert.Equal(t, types.ErrValidation, err.Code)
}

func TestAddComment_RejectsEmptyText(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Discuss me", actor)

	_, err := svc.AddComment(context.Background(), task.ID, "", actor)

	require.NotNil(t, err)
	assert.Equal(t, types.ErrValidation, err.Code)
}

func TestAddComment_404sWhenArchived(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Discuss me", actor)
	_, aerr := svc.ArchiveTask(context.Background(), task.ID, actor, false)
	require.Nil(t, aerr)

	_, err := svc.AddComment(context.Background(), task.ID, "too late", actor)

	require.NotNil(t, err)
	assert.Equal(t, types.ErrNotFound, err.Code)
}
