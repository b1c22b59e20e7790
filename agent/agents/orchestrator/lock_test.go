package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedMutexHonoursContext(t *testing.T) {
	t.Parallel()

	k := newKeyedMutex()
	unlock, err := k.Lock(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := k.Lock(context.Background(), "u2")
	if err != nil {
		t.Fatalf("different keys must not block: %v", err)
	}
	other()

	unlock()
	unlock()
	if n := k.size(); n != 0 {
		t.Fatalf("expected empty lock table, got %d", n)
	}
}
