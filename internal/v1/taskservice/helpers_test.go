package taskservice

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/assignment"
	"github.com/taskboard/core/internal/v1/conflict"
	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/types"
)

type fakeFanout struct {
	broadcasts []types.Frame
	userSends  map[string][]types.Frame
}

func newFakeFanout() *fakeFanout {
	return &fakeFanout{userSends: make(map[string][]types.Frame)}
}

func (f *fakeFanout) Broadcast(room types.RoomKey, frame types.Frame, exceptSession string) {
	f.broadcasts = append(f.broadcasts, frame)
}

func (f *fakeFanout) BroadcastToUser(userID string, frame types.Frame) {
	f.userSends[userID] = append(f.userSends[userID], frame)
}

// newService wires a Service against a fresh in-memory store, a real
// Conflict Controller and Assignment Engine, and the fake fanout above,
// mirroring cmd/v1/boardserver's construction order.
func newService(t *testing.T) (*Service, *store.Memory, *fakeFanout) {
	t.Helper()
	mem := store.NewMemory()
	fanout := newFakeFanout()
	rec := activity.NewService(20, fanout, activity.NoopSink{})
	eng := assignment.New(mem)
	ctrl := conflict.New(fanout, rec)
	svc := New(mem, fanout, ctrl, eng, rec)
	ctrl.SetUpdater(svc)
	return svc, mem, fanout
}

func seedActiveUser(t *testing.T, mem *store.Memory) uuid.UUID {
	t.Helper()
	u := &types.User{ID: uuid.New(), DisplayName: "active", IsActive: true}
	mem.SeedUser(u)
	return u.ID
}

func mustCreate(t *testing.T, svc *Service, title string, actor uuid.UUID) *types.Task {
	t.Helper()
	task, err := svc.CreateTask(context.Background(), types.CreateTaskInput{Title: title}, actor)
	require.Nil(t, err)
	return task
}
