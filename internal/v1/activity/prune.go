package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Pruner is implemented by sinks that support deleting old records. It is
// optional: NoopSink and a plain append-only HTTPSink don't implement it,
// so PruneActivity degrades to a no-op against them.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// PruneActivity is the operation added beyond the ring buffer and
// fire-and-forget sink: it asks the sink to delete records older than
// olderThanDays, returning the count removed. It performs no authorization
// check of its own and does not use actor.
func (s *Service) PruneActivity(ctx context.Context, olderThanDays int, actor uuid.UUID) (int, error) {
	pruner, ok := s.out.(Pruner)
	if !ok {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	return pruner.Prune(ctx, cutoff)
}
