package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for the two ledgers the service keeps.
const (
	PrefixWebhookDelivery = "auth:webhook:delivery:"
	PrefixRefreshUsed     = "auth:refresh:used:"
)

// Ledger remembers consumed keys in Redis with a TTL.
type Ledger struct {
	rdb   redis.Cmdable
	keyNS string
}

func NewLedger(rdb redis.Cmdable, keyPrefix string) *Ledger {
	if keyPrefix == "" {
		keyPrefix = PrefixWebhookDelivery
	}
	return &Ledger{rdb: rdb, keyNS: keyPrefix}
}

func (l *Ledger) key(k string) string { return l.keyNS + k }

func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Ledger) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return l.rdb.Set(ctx, l.key(key), "1", ttl).Err()
}

// Consume atomically marks key and reports whether it was unused before.
func (l *Ledger) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key(key), "1", ttl).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ok, nil
}
