package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/money"
)

// CachedSource memoises another source's quotes in Redis for ttl.
type CachedSource struct {
	next   Source
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps next. A non-positive ttl defaults to one minute.
func NewCachedSource(next Source, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedSource{next: next, client: client, ttl: ttl, logger: logger}
}

func cacheKey(from, to money.Currency) string {
	return fmt.Sprintf("multiwallet:rate:%s:%s", from, to)
}

// Rate returns the cached quote or asks next and stores the answer. Redis
// failures degrade to asking next directly.
func (c *CachedSource) Rate(ctx context.Context, from, to money.Currency) (decimal.Decimal, error) {
	key := cacheKey(from, to)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(cached); perr == nil {
			return rate, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("rate cache read failed", "key", key, "error", err)
	}

	rate, err := c.next.Rate(ctx, from, to)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if err := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		c.logger.Warn("rate cache write failed", "key", key, "error", err)
	}
	return rate, nil
}
