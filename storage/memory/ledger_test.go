package memorystore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLedger_SeenAfterMark(t *testing.T) {
	l := NewLedger()
	defer l.Close()
	ctx := context.Background()

	if seen, _ := l.Seen(ctx, "msg_1"); seen {
		t.Fatalf("expected unseen key")
	}
	if err := l.Mark(ctx, "msg_1", time.Hour); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if seen, _ := l.Seen(ctx, "msg_1"); !seen {
		t.Fatalf("expected key to be seen after Mark")
	}
}

func TestLedger_Expiry(t *testing.T) {
	l := NewLedger()
	defer l.Close()
	ctx := context.Background()
	now := time.Now()
	l.now = func() time.Time { return now }

	_ = l.Mark(ctx, "k", time.Minute)
	l.now = func() time.Time { return now.Add(2 * time.Minute) }
	if seen, _ := l.Seen(ctx, "k"); seen {
		t.Fatalf("expected expired key to be unseen")
	}
	l.cleanup()
	if len(l.data) != 0 {
		t.Fatalf("expected cleanup to drop expired entries")
	}
}

func TestLedger_ConsumeOnce(t *testing.T) {
	l := NewLedger()
	defer l.Close()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Consume(ctx, "jti", time.Hour); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins.Load())
	}
	_ = l.Close()
	_ = l.Close()
}
