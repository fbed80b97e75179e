package cron

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type memoryLockStore struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExcludesSecondOwner(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "pf:lock:cron", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "pf:lock:cron", time.Minute)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if store.ttls["pf:lock:cron"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttls["pf:lock:cron"])
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatal("expected second acquire to fail while held")
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["pf:lock:cron"]; !held {
		t.Fatal("non-owner release must not free the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestRedisLockLeavesTakenOverKey(t *testing.T) {
	store := newMemoryLockStore()
	lock, _ := NewRedisLock(store, "pf:lock:cron", time.Minute)
	ctx := context.Background()

	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatal("expected acquire")
	}
	if !strings.Contains(store.values["pf:lock:cron"], ":") {
		t.Fatalf("expected instance-scoped owner token, got %q", store.values["pf:lock:cron"])
	}
	store.values["pf:lock:cron"] = "other-replica:token"

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["pf:lock:cron"] != "other-replica:token" {
		t.Fatal("release removed a lock owned by another instance")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatal("expected nil client to fail")
	}
	if _, err := NewRedisLock(newMemoryLockStore(), "", time.Minute); err == nil {
		t.Fatal("expected empty key to fail")
	}
}
