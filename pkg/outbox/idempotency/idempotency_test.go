package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingStore struct {
	free    bool
	err     error
	key     string
	value   any
	ttl     time.Duration
	deleted []string
}

func (s *recordingStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.key, s.value, s.ttl = key, value, ttl
	return s.free, s.err
}

func (s *recordingStore) Del(_ context.Context, keys ...string) error {
	s.deleted = append(s.deleted, keys...)
	return nil
}

func (s *recordingStore) IdempotencyKey(scope, id string) string {
	return "lc:idempotency:" + scope + ":" + id
}

func newManager(t *testing.T, store Store, ttl time.Duration) *Manager {
	t.Helper()
	m, err := NewManager(store, ttl)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	return m
}

func TestCheckAndMarkFirstDelivery(t *testing.T) {
	store := &recordingStore{free: true}
	seen, err := newManager(t, store, 24*time.Hour).CheckAndMark(context.Background(), "payhere", " 320025071278:2 ")
	if err != nil || seen {
		t.Fatalf("first delivery: seen=%v err=%v", seen, err)
	}
	if store.key != "lc:idempotency:seen:payhere:320025071278:2" {
		t.Fatalf("unexpected key %q", store.key)
	}
	if store.ttl != 24*time.Hour || store.value != "2026-10-18T09:30:00Z" {
		t.Fatalf("unexpected mark %v ttl=%v", store.value, store.ttl)
	}
}

func TestCheckAndMarkOutcomes(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]struct {
		store    *recordingStore
		scope    string
		id       string
		wantSeen bool
		wantErr  error
	}{
		"redelivery":  {store: &recordingStore{}, scope: "payhere", id: "abc", wantSeen: true},
		"store error": {store: &recordingStore{err: boom}, scope: "payhere", id: "abc", wantErr: boom},
		"no scope":    {store: &recordingStore{free: true}, scope: "", id: "abc", wantErr: errNoScope},
		"blank id":    {store: &recordingStore{free: true}, scope: "payhere", id: " ", wantErr: errNoID},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			seen, err := newManager(t, tc.store, time.Hour).CheckAndMark(context.Background(), tc.scope, tc.id)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if seen != tc.wantSeen {
				t.Fatalf("expected seen=%v", tc.wantSeen)
			}
		})
	}
}

func TestRelease(t *testing.T) {
	store := &recordingStore{}
	if err := newManager(t, store, time.Hour).Release(context.Background(), "payhere", "abc"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "lc:idempotency:seen:payhere:abc" {
		t.Fatalf("unexpected deleted keys %v", store.deleted)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
	if _, err := NewManager(&recordingStore{}, -time.Second); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
