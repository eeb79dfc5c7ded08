package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	allowed, count, err := client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed on first request")
	}
	if count != 1 {
		t.Fatalf("expected counter 1 got %d", count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected expire for first increment")
	}

	allowed, count, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed || count != 2 {
		t.Fatalf("unexpected second call state allowed=%v count=%d", allowed, count)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expire should not be set again")
	}

	allowed, _, err = client.FixedWindowAllow(ctx, "test-scope", 2, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatalf("expected limit reached")
	}
}

func TestSetNXWriteOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.CacheKey("blacklist", "user-1")

	ok, err := client.SetNX(ctx, key, "true", time.Hour)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "false", time.Hour)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}
	value, err := client.Get(ctx, key)
	if err != nil || value != "true" {
		t.Fatalf("expected first value to stick, got %q err=%v", value, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestDelIfValueOnlyRemovesMatchingOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:test")
	mock.data[key] = "worker-a:1"

	removed, err := client.DelIfValue(ctx, key, "worker-b:2")
	if err != nil || removed {
		t.Fatalf("foreign owner must not delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.DelIfValue(ctx, key, "worker-a:1")
	if err != nil || !removed {
		t.Fatalf("owner should delete, removed=%v err=%v", removed, err)
	}
	if _, ok := mock.data[key]; ok {
		t.Fatal("key should be gone")
	}
}

func TestExtendIfValueRequiresOwnership(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:test")
	mock.data[key] = "worker-a:1"

	ok, err := client.ExtendIfValue(ctx, key, "worker-b:2", time.Minute)
	if err != nil || ok {
		t.Fatalf("foreign owner must not extend, ok=%v err=%v", ok, err)
	}
	ok, err = client.ExtendIfValue(ctx, key, "worker-a:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("owner should extend, ok=%v err=%v", ok, err)
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("unexpected expire calls %+v", mock.expireCalls)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 3, PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 3 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6380/2", DB: 5})
	if err != nil {
		t.Fatalf("url options: %v", err)
	}
	if opts.DB != 2 {
		t.Fatalf("url db should win, got %d", opts.DB)
	}

	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if _, err := client.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from uninitialized client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.CacheKey("vin", "WVWZZZ1JZXW000001"); got != "ae:cache:vin:WVWZZZ1JZXW000001" {
		t.Fatalf("unexpected cache key %s", got)
	}
	if got := client.LockKey("cron"); got != "ae:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.RateLimitKey("webhook"); got != "ae:rate_limit:webhook" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.IdempotencyKey("admin|release", "k1"); got != "ae:idem:admin|release:k1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.CacheKey("fingerprint", ""); got != "ae:cache:fingerprint" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
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

// EvalSha emulates the two owner-checked scripts the client runs.
func (m *mockCmdable) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	v, ok := m.data[keys[0]]
	if !ok || v != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha {
	case delIfValue.Hash():
		delete(m.data, keys[0])
	case extendIfValue.Hash():
		m.expireCalls = append(m.expireCalls, expireCall{key: keys[0], ttl: time.Duration(args[1].(int64)) * time.Millisecond})
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script %s", sha))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (m *mockCmdable) Eval(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, fmt.Errorf("Eval not expected; EvalSha is tried first"))
}

func (m *mockCmdable) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return m.Eval(ctx, script, keys, args...)
}

func (m *mockCmdable) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return m.EvalSha(ctx, sha, keys, args...)
}

func (m *mockCmdable) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (m *mockCmdable) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
