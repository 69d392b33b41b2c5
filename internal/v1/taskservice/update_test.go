package taskservice

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/core/internal/v1/types"
)

func strPtr(s string) *string { return &s }

func priorityPtr(p types.Priority) *types.Priority { return &p }

func TestUpdateTask_BumpsVersionAndAppliesPatch(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "Original title", actor)

	updated, err := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{
		Title: strPtr("Renamed title"),
	}, actor, task.Version)

	require.Nil(t, err)
	assert.Equal(t, "Renamed title", updated.Title)
	assert.Equal(t, 2, updated.Version)
}

func TestUpdateTask_StaleVersionReturnsConflictDescriptor(t *testing.T) {
	svc, _, _ := newService(t)
	u1, u2 := uuid.New(), uuid.New()
	task := mustCreate(t, svc, "Shared task", u1)
	require.Equal(t, 1, task.Version)

	_, err := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{
		Priority: priorityPtr(types.PriorityUrgent),
	}, u2, task.Version)
	require.Nil(t, err)

	_, conflictErr := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{
		Priority: priorityPtr(types.PriorityHigh),
	}, u1, task.Version)

	require.NotNil(t, conflictErr)
	require.Equal(t, types.ErrConflict, conflictErr.Code)
	require.NotNil(t, conflictErr.Conflict)
	assert.Equal(t, task.Version, conflictErr.Conflict.ClientVersion)
	assert.Equal(t, 2, conflictErr.Conflict.ServerVersion)
}

// TestUpdateTask_OptimisticConflictThenMerge exercises the literal
// end-to-end flow: u1 reads T@3, u2 bumps it to @4, u1's stale update
// fails Conflict, u1 resolves with strategy "merge", and the merged
// patch reapplies successfully landing at version 5.
func TestUpdateTask_OptimisticConflictThenMerge(t *testing.T) {
	svc, _, _ := newService(t)
	u1, u2 := uuid.New(), uuid.New()
	task := mustCreate(t, svc, "Shared task", u1)

	// Bump to version 3 with two unrelated updates so u1's "read" below
	// reflects version 3 as the scenario specifies.
	_, err := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Description: strPtr("v2 description")}, u1, 1)
	require.Nil(t, err)
	_, err = svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Tags: &[]string{"infra"}}, u1, 2)
	require.Nil(t, err)

	readByU1, err := svc.GetTask(context.Background(), task.ID)
	require.Nil(t, err)
	require.Equal(t, 3, readByU1.Version)

	// u2 updates T, bumping to version 4.
	_, err = svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Description: strPtr("u2's description")}, u2, 3)
	require.Nil(t, err)

	// u1 sends a stale update against knownVersion=3.
	_, conflictErr := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Priority: priorityPtr(types.PriorityHigh)}, u1, 3)
	require.NotNil(t, conflictErr)
	require.Equal(t, types.ErrConflict, conflictErr.Code)
	require.NotNil(t, conflictErr.Conflict)
	assert.Equal(t, 3, conflictErr.Conflict.ClientVersion)
	assert.Equal(t, 4, conflictErr.Conflict.ServerVersion)

	// u1 resolves via merge; the Conflict Controller reapplies the merged
	// patch through Service.ApplyResolvedUpdate.
	resolved, rerr := svc.conflicts.Resolve(context.Background(), task.ID, conflictErr.Conflict.ConflictID, types.StrategyMerge, u1)

	require.Nil(t, rerr)
	require.NotNil(t, resolved)
	assert.Equal(t, 5, resolved.Version)
	assert.Equal(t, types.PriorityHigh, resolved.Priority, "client's only changed field should win the merge")
}

func TestUpdateTask_DuplicateTitleOnRename(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	mustCreate(t, svc, "Existing title", actor)
	task := mustCreate(t, svc, "Renameable", actor)

	_, err := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Title: strPtr("existing title")}, actor, task.Version)

	require.NotNil(t, err)
	assert.Equal(t, types.ErrDuplicateTitle, err.Code)
}

func TestUpdateTask_NotFoundWhenArchived(t *testing.T) {
	svc, _, _ := newService(t)
	actor := uuid.New()
	task := mustCreate(t, svc, "To be archived", actor)
	_, aerr := svc.ArchiveTask(context.Background(), task.ID, actor, false)
	require.Nil(t, aerr)

	_, err := svc.UpdateTask(context.Background(), task.ID, types.TaskPatch{Title: strPtr("new title")}, actor, task.Version)

	require.NotNil(t, err)
	assert.Equal(t, types.ErrNotFound, err.Code)
}
