// Package ratelimit throttles chat senders with a fixed window kept in Redis
// (INCR + EXPIRE). Redis failures never block a sender.
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule is a key prefix with a count allowed per window.
type Rule struct {
	Key    string
	Limit  int64
	Window time.Duration
}

func MessageRule(limit int64, window time.Duration) Rule {
	return Rule{Key: "bappool:rl:msg:", Limit: limit, Window: window}
}

type Limiter struct {
	client *redis.Client
	rule   Rule
}

func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Allow counts one action for userID. It fails open: on a Redis error the
// action is allowed and the error returned for logging.
func (l *Limiter) Allow(ctx context.Context, userID int64) (bool, error) {
	key := l.rule.Key + strconv.FormatInt(userID, 10)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		slog.WarnContext(ctx, "ratelimit incr failed, allowing", slog.String("key", key), slog.Any("err", err))
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, key, l.rule.Window).Err(); err != nil {
			slog.WarnContext(ctx, "ratelimit expire failed, allowing", slog.String("key", key), slog.Any("err", err))
			// a key without ttl would throttle the user forever
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return count <= l.rule.Limit, nil
}

// Ping checks connectivity at startup.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
