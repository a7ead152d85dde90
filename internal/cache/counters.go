package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	usageTTL        = 31 * 24 * time.Hour
	VerificationTTL = 24 * time.Hour
)

// Verification is stored under verified:<key>:<domain>
type Verification struct {
	Verified  bool   `json:"verified"`
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// Counters keeps usage, daily stats and installation checks in Redis
type Counters struct {
	rdb redis.Cmdable
}

// NewCounters creates Redis backed counters
func NewCounters(rdb redis.Cmdable) *Counters {
	return &Counters{rdb: rdb}
}

func usageKey(accountID, month string) string {
	return fmt.Sprintf("usage:%s:%s", accountID, month)
}

// Usage returns how many units of field were used in month (YYYY-MM)
func (c *Counters) Usage(ctx context.Context, accountID, month, field string) (int64, error) {
	n, err := c.rdb.HGet(ctx, usageKey(accountID, month), field).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}
	return n, nil
}

// IncrementUsage adds one unit of field to month
func (c *Counters) IncrementUsage(ctx context.Context, accountID, month, field string) error {
	key := usageKey(accountID, month)
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// IncrementStats bumps the daily event counter and, when known, the
// per-device and per-browser counters for day (YYYY-MM-DD)
func (c *Counters) IncrementStats(ctx context.Context, apiKey, day, eventType, device, browser string) error {
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, fmt.Sprintf("stats:%s:%s", apiKey, day), eventType, 1)
	if device != "" {
		pipe.HIncrBy(ctx, fmt.Sprintf("devices:%s:%s", apiKey, day), device, 1)
	}
	if browser != "" {
		pipe.HIncrBy(ctx, fmt.Sprintf("browsers:%s:%s", apiKey, day), browser, 1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

// DailyStats returns the event counters recorded for day
func (c *Counters) DailyStats(ctx context.Context, apiKey, day string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, fmt.Sprintf("stats:%s:%s", apiKey, day)).Result()
}

// MarkVerified records an installation check for VerificationTTL
func (c *Counters) MarkVerified(ctx context.Context, apiKey, domain string, v Verification) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("verified:%s:%s", apiKey, domain)
	if err := c.rdb.Set(ctx, key, raw, VerificationTTL).Err(); err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}
