package state

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestOpenMemory(t *testing.T) {
	t.Parallel()

	backend, closeFn, err := Open(context.Background(), Config{Backend: "MEMORY", TTL: time.Hour}, RedisConfig{}, UpstashRedisConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if _, ok := backend.(*MemoryBackend); !ok {
		t.Fatalf("expected memory backend, got %T", backend)
	}
}

func TestOpenRedis(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	backend, closeFn, err := Open(context.Background(), Config{Backend: BackendRedis, TTL: time.Hour, KeyPrefix: "t:"}, RedisConfig{URL: "redis://" + srv.Addr()}, UpstashRedisConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if err := backend.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !srv.Exists("t:k") {
		t.Fatal("expected prefixed key in redis")
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	if _, _, err := Open(context.Background(), Config{Backend: "etcd"}, RedisConfig{}, UpstashRedisConfig{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, _, err := Open(context.Background(), Config{Backend: BackendUpstash}, RedisConfig{}, UpstashRedisConfig{}); err == nil {
		t.Fatal("expected error for upstash without url")
	}
}
