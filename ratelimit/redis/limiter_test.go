package redislimiter

import (
	"testing"
	"time"

	"github.com/PaulFidika/userauth/ratelimit"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limits map[string]ratelimit.Limit) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, limits)
}

func TestAllowNamed_Window(t *testing.T) {
	mr, l := newTestLimiter(t, map[string]ratelimit.Limit{"b": {Limit: 2, Window: time.Minute}})

	for i := 0; i < 2; i++ {
		if ok, err := l.AllowNamed("b", "1.2.3.4"); err != nil || !ok {
			t.Fatalf("request %d should be allowed: %v %v", i, ok, err)
		}
	}
	if ok, err := l.AllowNamed("b", "1.2.3.4"); err != nil || ok {
		t.Fatalf("third request should be denied: %v %v", ok, err)
	}
	if ok, _ := l.AllowNamed("b", "5.6.7.8"); !ok {
		t.Fatalf("other client should have its own window")
	}

	key := keyPrefix + "b:1.2.3.4"
	members, err := mr.ZMembers(key)
	if err != nil {
		t.Fatalf("ZMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("denied request must not stay recorded, got %d members", len(members))
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected window key to expire, ttl=%s", ttl)
	}
}

func TestAllowNamed_Validation(t *testing.T) {
	_, l := newTestLimiter(t, nil)
	if _, err := l.AllowNamed("", "k"); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	var nilL *Limiter
	if ok, err := nilL.AllowNamed("b", "k"); !ok || err != nil {
		t.Fatalf("nil limiter should allow")
	}
}

func TestAllowNamed_RedisDown(t *testing.T) {
	mr, l := newTestLimiter(t, nil)
	mr.Close()
	if _, err := l.AllowNamed(ratelimit.BucketSignIn, "k"); err == nil {
		t.Fatalf("expected error when redis is unreachable")
	}
}
