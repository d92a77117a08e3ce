package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
)

func TestFixedWindowAllowCountsPerScope(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i := 1; i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "cart:ip:10.0.0.1", 2, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !allowed || count != int64(i) {
			t.Fatalf("hit %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "cart:ip:10.0.0.1", 2, time.Minute)
	if err != nil {
		t.Fatalf("third hit: %v", err)
	}
	if allowed || count != 3 {
		t.Fatalf("expected third hit blocked, allowed=%v count=%d", allowed, count)
	}

	if got := mock.windows["lc:rate_limit:cart:ip:10.0.0.1"]; got != time.Minute.Milliseconds() {
		t.Fatalf("window should be set once to 60000ms, got %d", got)
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "cart:ip:10.0.0.2", 2, time.Minute)
	if err != nil || !allowed {
		t.Fatalf("other callers keep their own window: allowed=%v err=%v", allowed, err)
	}
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, _, err := client.FixedWindowAllow(context.Background(), "cart", 5, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestFixedWindowAllowSurfacesStoreErrors(t *testing.T) {
	mock := newMockCmdable()
	mock.evalErr = errors.New("connection refused")
	client := &Client{store: mock}
	if _, _, err := client.FixedWindowAllow(context.Background(), "cart", 5, time.Second); err == nil {
		t.Fatal("expected store error")
	}
}

func TestSetNXClaimsOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.IdempotencyKey("payhere:notify", "320025071278")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first claim to win: %v %v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected duplicate claim to lose: %v %v", second, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestCompareAndDeleteChecksOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	if _, err := client.SetNX(ctx, "lc:maintenance:lock:test", "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}

	deleted, err := client.CompareAndDelete(ctx, "lc:maintenance:lock:test", "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, "lc:maintenance:lock:test", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner delete failed: deleted=%v err=%v", deleted, err)
	}
}

func TestCompareAndExpireChecksOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := "lc:maintenance:lock:test"
	if _, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil {
		t.Fatalf("setnx: %v", err)
	}

	if ok, err := client.CompareAndExpire(ctx, key, "owner-b", time.Hour); err != nil || ok {
		t.Fatalf("foreign owner must not extend: ok=%v err=%v", ok, err)
	}
	if ok, err := client.CompareAndExpire(ctx, key, "owner-a", time.Hour); err != nil || !ok {
		t.Fatalf("owner extend failed: ok=%v err=%v", ok, err)
	}
	if got := mock.windows[key]; got != time.Hour.Milliseconds() {
		t.Fatalf("ttl = %d ms", got)
	}
	if ok, _ := client.CompareAndExpire(ctx, "lc:missing", "owner-a", time.Hour); ok {
		t.Fatal("missing key must not extend")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	cases := map[string]string{
		client.IdempotencyKey("POST /api/v1/checkout/orders", "tok"): "lc:idempotency:POST /api/v1/checkout/orders:tok",
		client.IdempotencyKey("scope", " "):                          "lc:idempotency:scope",
		client.RateLimitKey("cart:user:42"):                          "lc:rate_limit:cart:user:42",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "cart", 1, time.Second); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be a no-op: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: 3 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected options db=%d pool=%d dial=%s", opts.DB, opts.PoolSize, opts.DialTimeout)
	}

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 4 {
		t.Fatalf("unexpected address options %+v", opts)
	}
}

// mockCmdable emulates the two Lua scripts the client sends.
type mockCmdable struct {
	data    map[string]string
	counts  map[string]int64
	windows map[string]int64
	evalErr error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:    make(map[string]string),
		counts:  make(map[string]int64),
		windows: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if m.evalErr != nil {
		return redis.NewCmdResult(nil, m.evalErr)
	}
	key := keys[0]
	switch script {
	case fixedWindowScript:
		m.counts[key]++
		if m.counts[key] == 1 {
			m.windows[key] = args[0].(int64)
		}
		return redis.NewCmdResult(m.counts[key], nil)
	case compareAndExpireScript:
		if _, ok := m.data[key]; ok && m.data[key] == args[0].(string) {
			m.windows[key] = args[1].(int64)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case compareAndDeleteScript:
		if m.data[key] == args[0].(string) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
