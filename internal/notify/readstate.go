package notify

import (
	"context"
	"sync"

	"github.com/loudlane/cabinet-backend/pkg/errors"
	"github.com/loudlane/cabinet-backend/pkg/redis"
)

// ReadStateStore persists which notification ids a user has read. Read
// state is an overlay: the deriver recomputes notifications from the entity
// mirror and flags the ones whose id appears here.
type ReadStateStore interface {
	ReadState(ctx context.Context, userID string) (map[string]bool, error)
	MarkRead(ctx context.Context, userID string, notificationIDs ...string) error
}

// RedisReadState keeps each user's read flags in a Redis hash keyed by
// notification id. Presence of a field means read; values are ignored.
type RedisReadState struct {
	client *redis.Client
}

func NewRedisReadState(client *redis.Client) *RedisReadState {
	return &RedisReadState{client: client}
}

func (r *RedisReadState) ReadState(ctx context.Context, userID string) (map[string]bool, error) {
	fields, err := r.client.HGetAll(ctx, r.client.ReadStateKey(userID))
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "load read state")
	}
	state := make(map[string]bool, len(fields))
	for id := range fields {
		if id == "" {
			continue
		}
		state[id] = true
	}
	return state, nil
}

func (r *RedisReadState) MarkRead(ctx context.Context, userID string, notificationIDs ...string) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	values := make([]any, 0, len(notificationIDs)*2)
	for _, id := range notificationIDs {
		if id == "" {
			continue
		}
		values = append(values, id, "1")
	}
	if len(values) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, r.client.ReadStateKey(userID), values...); err != nil {
		return errors.Wrap(errors.CodeDependency, err, "persist read state")
	}
	return nil
}

// MemoryReadState is an in-process ReadStateStore for tests and local runs
// without Redis.
type MemoryReadState struct {
	mu    sync.Mutex
	state map[string]map[string]bool
}

func NewMemoryReadState() *MemoryReadState {
	return &MemoryReadState{state: map[string]map[string]bool{}}
}

func (m *MemoryReadState) ReadState(_ context.Context, userID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.state[userID]))
	for id := range m.state[userID] {
		out[id] = true
	}
	return out, nil
}

func (m *MemoryReadState) MarkRead(_ context.Context, userID string, notificationIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state[userID] == nil {
		m.state[userID] = map[string]bool{}
	}
	for _, id := range notificationIDs {
		if id == "" {
			continue
		}
		m.state[userID][id] = true
	}
	return nil
}
