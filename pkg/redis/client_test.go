package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i, wantAllowed := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if allowed != wantAllowed || count != int64(i+1) {
			t.Fatalf("call %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	if got := mock.ttl["sf:rate_limit:test-scope"]; got != time.Second {
		t.Fatalf("expected window ttl on key, got %v", got)
	}
	if mock.expireNXWins != 1 {
		t.Fatalf("expected ttl set once, set %d times", mock.expireNXWins)
	}
}

func TestFixedWindowAllowRepairsMissingTTL(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.incr["sf:rate_limit:stuck"] = 40
	client := &Client{store: mock}

	if allowed, _, err := client.FixedWindowAllow(ctx, "stuck", 2, time.Minute); err != nil || allowed {
		t.Fatalf("expected over-limit counter, allowed=%v err=%v", allowed, err)
	}
	if mock.ttl["sf:rate_limit:stuck"] != time.Minute {
		t.Fatal("expected ttl attached to a counter that had none")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 7, DB: 9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options addr=%s db=%d pool=%d", opts.Addr, opts.DB, opts.PoolSize)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.IdempotencyKey("webhook:razorpay", "evt_1")
	set, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !set {
		t.Fatalf("expected first SetNX to win, set=%v err=%v", set, err)
	}
	set, err = client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || set {
		t.Fatalf("expected second SetNX to lose, set=%v err=%v", set, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if _, err := client.SetNX(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatalf("expected error from uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on nil raw client should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := Key(" webhook ", "", "evt_1"); got != "sf:webhook:evt_1" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := client.IdempotencyKey("scope", "id"); got != "sf:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "sf:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.LockKey("cron"); got != "sf:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "sf:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data         map[string]string
	incr         map[string]int64
	ttl          map[string]time.Duration
	expireNXWins int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
		ttl:  make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if _, has := m.ttl[key]; has {
		return redis.NewBoolResult(false, nil)
	}
	m.ttl[key] = expiration
	m.expireNXWins++
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
