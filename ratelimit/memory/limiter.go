package memorylimiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/PaulFidika/userauth/ratelimit"
)

type bucketState struct {
	// timestamps holds request times in Unix ms, newest last.
	timestamps []int64
}

// Limiter is an in-memory sliding-window rate limiter for single-node
// deployments and tests.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]ratelimit.Limit
	buckets map[string]*bucketState
	now     func() time.Time
}

// New constructs a limiter. A nil map uses ratelimit.DefaultLimits.
func New(limits map[string]ratelimit.Limit) *Limiter {
	if limits == nil {
		limits = ratelimit.DefaultLimits()
	}
	return &Limiter{
		limits:  limits,
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// AllowNamed records one request for key in bucket and reports whether it is
// within the limit. Denied requests are not recorded.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, fmt.Errorf("bucket and key required")
	}

	lim := ratelimit.Resolve(l.limits, bucket)
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - lim.Window.Milliseconds()
	limitKey := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[limitKey]
	if !ok {
		b = &bucketState{}
		l.buckets[limitKey] = b
	}

	ts := b.timestamps
	i := 0
	for i < len(ts) && ts[i] <= windowStart {
		i++
	}
	ts = ts[i:]

	if len(ts) >= lim.Limit {
		b.timestamps = ts
		return false, nil
	}
	b.timestamps = append(ts, nowMs)
	return true, nil
}

// Sweep drops buckets with no requests inside their window.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	nowMs := l.now().UnixMilli()
	cutoff := nowMs - l.longestWindow().Milliseconds()
	removed := 0
	for k, b := range l.buckets {
		if len(b.timestamps) == 0 || b.timestamps[len(b.timestamps)-1] <= cutoff {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) longestWindow() time.Duration {
	longest := time.Minute
	for _, v := range l.limits {
		if v.Window > longest {
			longest = v.Window
		}
	}
	return longest
}
