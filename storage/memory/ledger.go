package memorystore

import (
	"context"
	"sync"
	"time"
)

// Ledger remembers consumed keys (webhook delivery ids, refresh token ids)
// until their TTL passes.
type Ledger struct {
	mu     sync.Mutex
	data   map[string]time.Time
	now    func() time.Time
	closed chan struct{}
	once   sync.Once
}

// NewLedger starts a ledger that sweeps expired keys every minute.
func NewLedger() *Ledger {
	l := &Ledger{data: make(map[string]time.Time), now: time.Now, closed: make(chan struct{})}
	go l.cleanupLoop()
	return l
}

func (l *Ledger) Seen(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.data[key]
	if !ok {
		return false, nil
	}
	if l.now().After(exp) {
		delete(l.data, key)
		return false, nil
	}
	return true, nil
}

func (l *Ledger) Mark(_ context.Context, key string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[key] = l.now().Add(ttl)
	return nil
}

// Consume marks key and reports whether it was unused before. Check and
// mark happen under one lock.
func (l *Ledger) Consume(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.data[key]; ok && !now.After(exp) {
		return false, nil
	}
	l.data[key] = now.Add(ttl)
	return true, nil
}

func (l *Ledger) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.closed:
			return
		}
	}
}

func (l *Ledger) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for k, exp := range l.data {
		if now.After(exp) {
			delete(l.data, k)
		}
	}
}

// Close stops the sweeper. Safe to call more than once.
func (l *Ledger) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
