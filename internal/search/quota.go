package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const quotaKeyPrefix = "brandshield:search:quota:"

// DailyQuota enforces a daily ceiling on outbound search calls. With a
// Redis client the counter is shared across processes; without one it
// falls back to an in-memory counter scoped to this process.
type DailyQuota struct {
	client *redis.Client
	max    int64

	mu    sync.Mutex
	day   string
	count int64
}

// NewDailyQuota connects to Redis and returns a shared quota counter.
func NewDailyQuota(addr, password string, db int, max int64) (*DailyQuota, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &DailyQuota{client: client, max: max}, nil
}

// NewLocalQuota returns an in-memory quota counter.
func NewLocalQuota(max int64) *DailyQuota {
	return &DailyQuota{max: max}
}

// Reserve claims one search from today's budget. It returns false once
// the budget is spent; the counter resets at midnight UTC.
func (q *DailyQuota) Reserve(ctx context.Context) (bool, error) {
	if q.max <= 0 {
		return true, nil
	}

	day := time.Now().UTC().Format("2006-01-02")

	if q.client == nil {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.day != day {
			q.day = day
			q.count = 0
		}
		if q.count >= q.max {
			return false, nil
		}
		q.count++
		return true, nil
	}

	key := quotaKeyPrefix + day
	n, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing quota counter: %w", err)
	}
	if n == 1 {
		// First reservation of the day sets the expiry.
		q.client.Expire(ctx, key, 48*time.Hour)
	}
	return n <= q.max, nil
}

// Close releases the Redis connection if one is held.
func (q *DailyQuota) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
