package lock

import (
	"context"
	"testing"
	"time"

	"github.com/Dox-Sweden/QuartzRedisJobStore/redisjobstore/redistest"
)

func TestLockUnlockRoundTrip(t *testing.T) {
	fake := redistest.New(func() int64 { return 0 })
	m := New(fake, "qz:lock", "instance-1", 5*time.Second)

	h, err := m.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := m.Unlock(context.Background(), h); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestLockExcludesConcurrentHolder(t *testing.T) {
	fake := redistest.New(func() int64 { return 0 })
	a := New(fake, "qz:lock", "instance-a", 5*time.Second)
	b := New(fake, "qz:lock", "instance-b", 5*time.Second)

	ha, err := a.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock a: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = b.Lock(ctx)
	if err == nil {
		t.Fatalf("expected b.Lock to fail while a holds the lock")
	}

	if err := a.Unlock(context.Background(), ha); err != nil {
		t.Fatalf("Unlock a: %v", err)
	}

	hb, err := b.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock b after release: %v", err)
	}
	if err := b.Unlock(context.Background(), hb); err != nil {
		t.Fatalf("Unlock b: %v", err)
	}
}

func TestUnlockAfterExpiryReportsLockLost(t *testing.T) {
	millis := int64(0)
	fake := redistest.New(func() int64 { return millis })
	m := New(fake, "qz:lock", "instance-1", 100*time.Millisecond)

	h, err := m.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	millis = 1000 // advance well past the TTL
	other := New(fake, "qz:lock", "instance-2", 5*time.Second)
	if _, err := other.Lock(context.Background()); err != nil {
		t.Fatalf("expected instance-2 to acquire the expired lock: %v", err)
	}

	if err := m.Unlock(context.Background(), h); err != ErrLockLost {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
}
