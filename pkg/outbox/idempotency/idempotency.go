// Package idempotency remembers which deliveries of an at-least-once feed
// were already handled.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the slice of the Redis client the guard needs. Keys are built by
// the store so they share its prefix.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var (
	errNoScope = errors.New("scope is required")
	errNoID    = errors.New("id is required")
)

// Manager marks deliveries as seen for ttl. A zero ttl keeps marks forever.
// Keys look like lc:idempotency:seen:<scope>:<id> and hold the time of the
// first delivery.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMark reports whether id was already seen in scope. A first
// delivery is marked before returning false.
func (m *Manager) CheckAndMark(ctx context.Context, scope, id string) (bool, error) {
	key, err := m.key(scope, id)
	if err != nil {
		return false, err
	}
	first, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !first, nil
}

// Release forgets id so the sender's retry is processed again.
func (m *Manager) Release(ctx context.Context, scope, id string) error {
	key, err := m.key(scope, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(scope, id string) (string, error) {
	scope, id = strings.TrimSpace(scope), strings.TrimSpace(id)
	switch {
	case scope == "":
		return "", errNoScope
	case id == "":
		return "", errNoID
	}
	return m.store.IdempotencyKey("seen:"+scope, id), nil
}
