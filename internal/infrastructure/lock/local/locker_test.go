package local

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockSerialisesSameID(t *testing.T) {
	l := NewLocker()
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "doc")
			if err != nil {
				t.Errorf("Lock() error = %v", err)
				return
			}
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	if peak.Load() != 1 {
		t.Fatalf("expected exclusive access, peak holders = %d", peak.Load())
	}
	if l.Held() != 0 {
		t.Fatalf("expected slots to be released, got %d", l.Held())
	}
}

func TestLockDifferentIDsDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("Lock(a) error = %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) must not wait for a: %v", err)
	}
	unlockB()
}

func TestLockHonoursCancellation(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), "doc")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "doc"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock()
	if l.Held() != 0 {
		t.Fatalf("expected no held slots, got %d", l.Held())
	}
}
