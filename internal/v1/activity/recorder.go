// Package activity implements the Activity Recorder (C6): it wraps
// every successful mutation into an immutable record, forwards it to an
// external sink fire-and-forget, and keeps the last N in memory to feed
// the activity room and the "recent activities" query.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/logging"
	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
	"go.uber.org/zap"
)

// Recorder is the narrow interface the rest of the core depends on, so
// the Task Service/Conflict Controller/Assignment Engine stay testable
// without a live sink.
type Recorder interface {
	Record(ctx context.Context, rec types.ActivityRecord)
	Recent() []types.ActivityRecord
}

// Sink is the external, append-only activity log named in spec.md §1.
type Sink interface {
	Append(ctx context.Context, rec types.ActivityRecord) error
}

// Service is the default Recorder: a fixed-size in-memory ring buffer
// (default 20, per spec.md §4.6) plus a fire-and-forget forward to Sink.
// Grounded on the teacher's chatHistory *list.List + maxChatHistoryLength
// pattern (room/room.go), generalized from a slice-backed ring instead of
// container/list since the size is fixed and never needs O(1) removal
// from the middle.
type Service struct {
	mu      sync.Mutex
	ring    []types.ActivityRecord
	size    int
	nextIdx int
	count   int

	sink types.Fanout // activity.new goes to the activity room
	out  Sink
}

// NewService creates a Recorder with the given ring size and sink. fanout
// may be nil if activity.new broadcast is not needed (e.g. tests); out
// may be NoopSink{}.
func NewService(ringSize int, fanout types.Fanout, out Sink) *Service {
	if ringSize <= 0 {
		ringSize = 20
	}
	if out == nil {
		out = NoopSink{}
	}
	return &Service{
		ring: make([]types.ActivityRecord, ringSize),
		size: ringSize,
		sink: fanout,
		out:  out,
	}
}

// Record fills in ID/CreatedAt/Description if unset, stores rec in the
// rolling window, broadcasts activity.new, and forwards to the sink.
// Forwarding is fire-and-forget: a sink failure is logged, never
// returned, and never fails the caller's mutation (spec.md §4.6/§7).
func (s *Service) Record(ctx context.Context, rec types.ActivityRecord) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Description == "" {
		rec.Description = Describe(rec.Action, rec)
	}

	s.mu.Lock()
	s.ring[s.nextIdx] = rec
	s.nextIdx = (s.nextIdx + 1) % s.size
	if s.count < s.size {
		s.count++
	}
	s.mu.Unlock()

	metrics.ActivityRecorded.WithLabelValues(string(rec.Category)).Inc()

	if s.sink != nil {
		frame, err := types.NewFrame(types.EventActivityNew, "", rec)
		if err == nil {
			s.sink.Broadcast(types.ActivityRoom(), frame, "")
		}
	}

	go func() {
		if err := s.out.Append(context.Background(), rec); err != nil {
			metrics.ActivitySinkFailures.WithLabelValues("append_error").Inc()
			logging.Error(ctx, "activity: sink append failed", zap.String("action", rec.Action), zap.Error(err))
		}
	}()
}

// Recent returns the in-memory window, oldest first.
func (s *Service) Recent() []types.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.ActivityRecord, 0, s.count)
	if s.count < s.size {
		out = append(out, s.ring[:s.count]...)
		return out
	}
	out = append(out, s.ring[s.nextIdx:]...)
	out = append(out, s.ring[:s.nextIdx]...)
	return out
}
