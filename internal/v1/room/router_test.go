package room

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/taskboard/core/internal/v1/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMember struct {
	sessionID string
	userID    string
	received  []types.Frame
}

func (f *fakeMember) SessionID() string { return f.sessionID }
func (f *fakeMember) UserID() string    { return f.userID }
func (f *fakeMember) Send(frame types.Frame) {
	f.received = append(f.received, frame)
}

func TestRouter_JoinThenBroadcastDelivers(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	m1 := &fakeMember{sessionID: "s1", userID: "u1"}
	m2 := &fakeMember{sessionID: "s2", userID: "u2"}
	r.Join(types.BoardRoom(), m1)
	r.Join(types.BoardRoom(), m2)

	frame := types.Frame{Type: "task.created"}
	r.Broadcast(types.BoardRoom(), frame, "")

	assert.Len(t, m1.received, 1)
	assert.Len(t, m2.received, 1)
}

func TestRouter_BroadcastExcludesSender(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	m1 := &fakeMember{sessionID: "s1", userID: "u1"}
	m2 := &fakeMember{sessionID: "s2", userID: "u2"}
	r.Join(types.BoardRoom(), m1)
	r.Join(types.BoardRoom(), m2)

	r.Broadcast(types.BoardRoom(), types.Frame{Type: "x"}, "s1")

	assert.Empty(t, m1.received)
	assert.Len(t, m2.received, 1)
}

func TestRouter_LeaveAll_RemovesFromEveryRoom(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	m := &fakeMember{sessionID: "s1", userID: "u1"}
	taskID := uuid.New()
	r.Join(types.BoardRoom(), m)
	r.Join(types.TaskRoom(taskID), m)

	r.LeaveAll("s1")

	assert.NotContains(t, r.Members(types.BoardRoom()), "s1")
	assert.NotContains(t, r.Members(types.TaskRoom(taskID)), "s1")
}

func TestRouter_Users_DeduplicatesByUserAcrossSessions(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	m1 := &fakeMember{sessionID: "s1", userID: "u1"}
	m2 := &fakeMember{sessionID: "s2", userID: "u1"} // same user, second tab
	r.Join(types.BoardRoom(), m1)
	r.Join(types.BoardRoom(), m2)

	users := r.Users(types.BoardRoom())
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0])
}

func TestRouter_BroadcastToUser_OnlyReachesThatUsersSessions(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	mine := &fakeMember{sessionID: "s1", userID: "u1"}
	other := &fakeMember{sessionID: "s2", userID: "u2"}
	r.Join(types.UserRoomFromID("u1"), mine)
	r.Join(types.UserRoomFromID("u2"), other)

	r.BroadcastToUser("u1", types.Frame{Type: "y"})

	assert.Len(t, mine.received, 1)
	assert.Empty(t, other.received)
}

func TestRouter_EmptyRoomIsCleanedUpAfterLastLeave(t *testing.T) {
	r := New(nil, "instance-a")
	t.Cleanup(r.Shutdown)

	m := &fakeMember{sessionID: "s1", userID: "u1"}
	r.Join(types.BoardRoom(), m)
	r.Leave(types.BoardRoom(), "s1")

	assert.Empty(t, r.Members(types.BoardRoom()))
}
