package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/taskboard/core/internal/v1/types"
)

// Memory is an in-process Store, the default when PERSISTENCE_DRIVER is
// "memory" (or unset). It mirrors the teacher's room registry pattern: a
// map guarded by a single RWMutex for the bulk of operations, plus a
// sync.Map of per-key mutexes for the one operation that needs finer
// granularity (per-task serialization, spec.md §5).
type Memory struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*types.Task
	users map[uuid.UUID]*types.User

	taskLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[uuid.UUID]*types.Task),
		users: make(map[uuid.UUID]*types.User),
	}
}

func (m *Memory) TaskLock(taskID uuid.UUID) func() {
	lockAny, _ := m.taskLocks.LoadOrStore(taskID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}

func (m *Memory) CreateTask(_ context.Context, task *types.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *Memory) GetTask(_ context.Context, taskID uuid.UUID) (*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (m *Memory) ListTasks(_ context.Context) ([]*types.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *Memory) SaveTask(_ context.Context, task *types.Task, previousVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[task.ID]
	if !ok || existing.Version != previousVersion {
		return ErrNotFound
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *Memory) DeleteTask(_ context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *Memory) TitleExists(_ context.Context, title string, excludeTaskID uuid.UUID) (bool, error) {
	folded := types.NormalizedTitle(title)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.IsArchived || t.ID == excludeTaskID {
			continue
		}
		if types.NormalizedTitle(t.Title) == folded {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) MaxPosition(_ context.Context, status types.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	max := -1
	for _, t := range m.tasks {
		if t.IsArchived || t.Status != status {
			continue
		}
		if t.Position > max {
			max = t.Position
		}
	}
	return max, nil
}

func (m *Memory) GetUser(_ context.Context, userID uuid.UUID) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) ActiveUsers(_ context.Context) ([]*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.User, 0, len(m.users))
	for _, u := range m.users {
		if u.IsActive {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ActiveLoad(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, t := range m.tasks {
		if t.IsArchived || t.AssignedTo == nil || *t.AssignedTo != userID {
			continue
		}
		if t.Status == types.StatusTodo || t.Status == types.StatusInProgress {
			count++
		}
	}
	return count, nil
}

// SeedUser registers a user in the directory. The identity source is
// external per spec.md §3; this is the in-memory adapter's way of
// populating that directory for standalone/dev operation and tests.
func (m *Memory) SeedUser(u *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}
