package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskboard/core/internal/v1/types"
)

type fakeSink struct {
	mu      sync.Mutex
	appends []types.ActivityRecord
	failN   int
}

func (f *fakeSink) Append(_ context.Context, rec types.ActivityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return errors.New("sink unavailable")
	}
	f.appends = append(f.appends, rec)
	return nil
}

func (f *fakeSink) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appends)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func TestService_Record_FillsDefaults(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(5, nil, sink)

	svc.Record(context.Background(), types.ActivityRecord{Action: "task.created", Actor: uuid.New()})

	recent := svc.Recent()
	require.Len(t, recent, 1)
	assert.NotEqual(t, uuid.Nil, recent[0].ID)
	assert.False(t, recent[0].CreatedAt.IsZero())
	assert.Equal(t, "created a task", recent[0].Description)
}

func TestService_Record_RingWrapsAtSize(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(3, nil, sink)

	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), types.ActivityRecord{Action: "task.updated", Actor: uuid.New()})
	}

	recent := svc.Recent()
	assert.Len(t, recent, 3)
}

func TestService_Record_OldestFirstOrdering(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(3, nil, sink)

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		svc.Record(context.Background(), types.ActivityRecord{Action: "task.updated", Actor: ids[i]})
	}

	recent := svc.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, ids[2], recent[0].Actor)
	assert.Equal(t, ids[3], recent[1].Actor)
	assert.Equal(t, ids[4], recent[2].Actor)
}

func TestService_Record_SinkFailureDoesNotBlockCaller(t *testing.T) {
	sink := &fakeSink{failN: 1}
	svc := NewService(5, nil, sink)

	require.NotPanics(t, func() {
		svc.Record(context.Background(), types.ActivityRecord{Action: "task.deleted", Actor: uuid.New()})
	})

	waitFor(t, func() bool { return sink.len() == 0 })
}

func TestService_Record_ForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(5, nil, sink)

	svc.Record(context.Background(), types.ActivityRecord{Action: "task.commented", Actor: uuid.New()})

	waitFor(t, func() bool { return sink.len() == 1 })
}

func TestDescribe_FallsBackToActionName(t *testing.T) {
	got := Describe("some.unknown.action", types.ActivityRecord{})
	assert.Equal(t, "some.unknown.action", got)
}

func TestPruneActivity_NoopWhenSinkNotPruner(t *testing.T) {
	svc := NewService(5, nil, NoopSink{})

	n, err := svc.PruneActivity(context.Background(), 30, uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
