package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	key := client.SnapshotKey("order-1")
	if err := client.Set(ctx, key, `{"id":"order-1"}`, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"id":"order-1"}` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !IsMiss(err) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestCompareAndDeleteHonorsOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}

	deleted, err := client.CompareAndDelete(ctx, key, "owner-b")
	if err != nil || deleted {
		t.Fatalf("foreign owner must not release, deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, key, "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner should release, deleted=%v err=%v", deleted, err)
	}
}

func TestSetIfVersionRejectsStaleGeneration(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.SnapshotKey("order-1")
	versionKey := client.SnapshotVersionKey("order-1")

	seen, err := client.Version(ctx, versionKey)
	if err != nil || seen != 0 {
		t.Fatalf("expected generation 0, got %d err=%v", seen, err)
	}

	bumped, err := client.BumpVersion(ctx, versionKey, time.Hour)
	if err != nil || bumped != 1 {
		t.Fatalf("expected bump to 1, got %d err=%v", bumped, err)
	}

	written, err := client.SetIfVersion(ctx, key, versionKey, seen, "stale", time.Minute)
	if err != nil || written {
		t.Fatalf("stale generation must not write, written=%v err=%v", written, err)
	}
	if _, err := client.Get(ctx, key); !IsMiss(err) {
		t.Fatalf("expected miss after rejected write, got %v", err)
	}

	written, err = client.SetIfVersion(ctx, key, versionKey, bumped, "fresh", time.Minute)
	if err != nil || !written {
		t.Fatalf("current generation should write, written=%v err=%v", written, err)
	}
	if value, _ := client.Get(ctx, key); value != "fresh" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestPublishRecordsMessage(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	if _, err := client.Publish(context.Background(), "pf:events:orders", "payload"); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if got := mock.published["pf:events:orders"]; len(got) != 1 || got[0] != "payload" {
		t.Fatalf("unexpected published messages %v", got)
	}
}

func TestZeroClientReturnsNotInitialized(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected not initialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on zero client should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.SnapshotKey("abc"); got != "pf:order_snapshot:abc" {
		t.Fatalf("unexpected snapshot key %s", got)
	}
	if got := client.SnapshotVersionKey("abc"); got != "pf:order_snapshot:abc:version" {
		t.Fatalf("unexpected version key %s", got)
	}
	if got := client.LockKey(" cron "); got != "pf:lock:cron" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.LockKey(""); got != "pf:lock" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/0", DB: 3, PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected missing address to fail")
	}
}

type mockCmdable struct {
	data      map[string]string
	published map[string][]string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:      make(map[string]string),
		published: make(map[string][]string),
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

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	switch script {
	case releaseScript:
		if m.data[keys[0]] == fmt.Sprint(args[0]) {
			delete(m.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
	case setIfVersionScript:
		current, ok := m.data[keys[1]]
		if !ok {
			current = "0"
		}
		if current == fmt.Sprint(args[0]) {
			m.data[keys[0]] = fmt.Sprint(args[1])
			return redis.NewCmdResult(int64(1), nil)
		}
	case bumpVersionScript:
		next := int64(1)
		if current, ok := m.data[keys[0]]; ok {
			parsed, _ := strconv.ParseInt(current, 10, 64)
			next = parsed + 1
		}
		m.data[keys[0]] = strconv.FormatInt(next, 10)
		return redis.NewCmdResult(next, nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published[channel] = append(m.published[channel], fmt.Sprint(message))
	return redis.NewIntResult(1, nil)
}
