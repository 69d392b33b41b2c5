// Package store defines the persistence contract the Task Service is
// built against, plus an in-memory adapter for standalone/dev operation
// and a Postgres adapter for production.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taskboard/core/internal/v1/types"
)

// ErrNotFound is returned by Get/Delete-style calls when the row does not
// exist. The Task Service maps it to types.ErrNotFound.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface named by spec.md §1's "persistence
// store" external collaborator, made concrete here so the Task Service
// is independently testable against the in-memory adapter.
//
// The contract assumes linearisable single-document reads/writes keyed
// by taskId (spec.md §5); TaskLock is the core's own per-task mutex and
// does not depend on the backing store providing distributed locking.
type Store interface {
	// TaskLock serializes all mutating operations against one taskID.
	// The returned func releases the lock and must always be called,
	// typically via defer.
	TaskLock(taskID uuid.UUID) func()

	CreateTask(ctx context.Context, task *types.Task) error
	GetTask(ctx context.Context, taskID uuid.UUID) (*types.Task, error)
	ListTasks(ctx context.Context) ([]*types.Task, error)

	// SaveTask persists task, conditioned on the stored row's version
	// still equalling previousVersion (the version the caller read before
	// mutating task in memory) — not assumed to be task.Version-1, since
	// some mutations (comments, a move's side-affected siblings) leave
	// Version unchanged. Returns ErrNotFound if the row moved on under the
	// caller, the Postgres half of the optimistic-concurrency guard
	// alongside the per-task mutex (spec.md §5).
	SaveTask(ctx context.Context, task *types.Task, previousVersion int) error
	DeleteTask(ctx context.Context, taskID uuid.UUID) error

	// TitleExists reports whether a non-archived task other than
	// excludeTaskID already has this title, case-insensitively (I1).
	TitleExists(ctx context.Context, title string, excludeTaskID uuid.UUID) (bool, error)

	// MaxPosition returns the highest position currently used in status,
	// or -1 if the column is empty.
	MaxPosition(ctx context.Context, status types.Status) (int, error)

	GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error)
	ActiveUsers(ctx context.Context) ([]*types.User, error)

	// ActiveLoad returns the count of non-archived tasks assigned to
	// userID whose status is todo or in-progress (spec.md §4.5).
	ActiveLoad(ctx context.Context, userID uuid.UUID) (int, error)
}
