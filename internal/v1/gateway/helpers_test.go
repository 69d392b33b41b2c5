package gateway

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/activity"
	"github.com/taskboard/core/internal/v1/assignment"
	"github.com/taskboard/core/internal/v1/conflict"
	"github.com/taskboard/core/internal/v1/room"
	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/taskservice"
	"github.com/taskboard/core/internal/v1/transport"
	"github.com/taskboard/core/internal/v1/types"
)

// fakeConn satisfies transport's unexported wsConnection interface
// structurally, so Session never touches a real network connection in
// these tests.
type fakeConn struct{}

func (fakeConn) ReadMessage() (int, []byte, error)  { return 0, nil, nil }
func (fakeConn) WriteMessage(int, []byte) error     { return nil }
func (fakeConn) Close() error                       { return nil }
func (fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (fakeConn) SetWriteDeadline(time.Time) error   { return nil }
func (fakeConn) SetPongHandler(func(string) error)  {}

// newTestDispatcher wires a Dispatcher against a fresh in-memory store
// and a real, single-instance Room Router, mirroring the construction
// order in cmd/v1/boardserver.
func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Memory, *room.Router) {
	t.Helper()
	mem := store.NewMemory()
	r := room.New(nil, "test-instance")
	t.Cleanup(r.Shutdown)
	rec := activity.NewService(20, r, activity.NoopSink{})
	eng := assignment.New(mem)
	ctrl := conflict.New(r, rec)
	svc := taskservice.New(mem, r, ctrl, eng, rec)
	ctrl.SetUpdater(svc)
	return New(svc, ctrl, r, rec, mem), mem, r
}

func newTestSession(userID uuid.UUID) *transport.Session {
	return transport.NewSession(fakeConn{}, nil, uuid.NewString(), userID.String(), "tester", 8)
}

func seedUser(mem *store.Memory, role types.Role) uuid.UUID {
	u := &types.User{ID: uuid.New(), DisplayName: "seeded", IsActive: true, Role: role}
	mem.SeedUser(u)
	return u.ID
}

func frameFor(t *testing.T, kind string, id string, payload any) types.Frame {
	t.Helper()
	f, err := types.NewFrame(kind, id, payload)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	return f
}
