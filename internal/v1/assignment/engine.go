// Package assignment implements the Assignment Engine (C5): the
// Smart-Assign policy of spec.md §4.5, picking the least-loaded active
// user with a uniform-random tie-break.
package assignment

import (
	"context"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/taskboard/core/internal/v1/store"
	"github.com/taskboard/core/internal/v1/types"
)

// Engine picks an assignee for task.smartAssign.
type Engine struct {
	store store.Store
}

// New builds an Engine backed by the given store.
func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// Pick returns the user id to assign, chosen as the active user with the
// fewest open (non-archived, todo/in-progress) tasks, breaking ties with a
// uniform-random draw so repeated contention doesn't always favor the
// same id. Returns types.NoEligibleUser if no active user exists.
func (e *Engine) Pick(ctx context.Context) (uuid.UUID, *types.Error) {
	users, err := e.store.ActiveUsers(ctx)
	if err != nil {
		return uuid.Nil, types.NewError(types.ErrInternal, "failed to list active users")
	}
	if len(users) == 0 {
		return uuid.Nil, types.NewError(types.ErrNoEligibleUser, "no active user is eligible for assignment")
	}

	type candidate struct {
		id   uuid.UUID
		load int
	}

	candidates := make([]candidate, 0, len(users))
	minLoad := -1
	for _, u := range users {
		load, err := e.store.ActiveLoad(ctx, u.ID)
		if err != nil {
			return uuid.Nil, types.NewError(types.ErrInternal, "failed to compute active load")
		}
		candidates = append(candidates, candidate{id: u.ID, load: load})
		if minLoad == -1 || load < minLoad {
			minLoad = load
		}
	}

	tied := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		if c.load == minLoad {
			tied = append(tied, c.id)
		}
	}

	if len(tied) == 1 {
		return tied[0], nil
	}
	return tied[rand.IntN(len(tied))], nil
}
