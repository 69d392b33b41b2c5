package types

import (
	"context"
	"sync"

	"github.com/taskboard/core/internal/v1/bus"
)

// BusService is the cross-instance fan-out contract, carried over from
// the teacher's types.BusService almost verbatim: it is domain-agnostic
// pub/sub plus a couple of set helpers used for distributed presence.
type BusService interface {
	Publish(ctx context.Context, roomID string, event string, payload any, senderID string, roles []string) error
	PublishDirect(ctx context.Context, targetUserID string, event string, payload any, senderID string) error
	Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload))
	Close() error
	SetAdd(ctx context.Context, key string, value string) error
	SetRem(ctx context.Context, key string, value string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// Fanout is the narrow view of the Room Router that the Task Service,
// Conflict Controller, and Activity Recorder depend on. Keeping it an
// injected interface (rather than a package-level singleton) is the
// generalization of the teacher's types.Roomer/types.BusService
// injection pattern, named explicitly in spec.md §9 ("global event bus
// vs injected dependency").
type Fanout interface {
	Broadcast(room RoomKey, frame Frame, exceptSession string)
	BroadcastToUser(userID string, frame Frame)
}
