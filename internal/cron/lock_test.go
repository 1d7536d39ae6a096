package cron

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/wabaledger/pkg/redis"
)

type memoryStore struct {
	data map[string]string
	ttl  time.Duration
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	m.ttl = ttl
	return true, nil
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestRedisLockExclusiveAcrossInstances(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	a, err := NewRedisLock(store, "wl:lock:cron-worker:test", 0)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	b, _ := NewRedisLock(store, "wl:lock:cron-worker:test", 0)
	ctx := context.Background()

	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("first instance should acquire")
	}
	if store.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %v", store.ttl)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("non-owner release: %v", err)
	}
	if _, held := store.data["wl:lock:cron-worker:test"]; !held {
		t.Fatal("non-owner release must not delete the lock")
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("owner release: %v", err)
	}
	if ok, _ := b.Acquire(ctx); !ok {
		t.Fatal("lock should be free after owner release")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", 0); err == nil {
		t.Fatal("expected error without key")
	}
}
