package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript returns 1 on a match (key deleted), 0 when absent, -1 on a
// wrong code and -2 when expired (key deleted). Expiry is checked first.
var consumeScript = redis.NewScript(`
local data = redis.call("HMGET", KEYS[1], "code", "expires_at")
if not data[1] then
  return 0
end
if tonumber(ARGV[2]) >= tonumber(data[2]) then
  redis.call("DEL", KEYS[1])
  return -2
end
if data[1] ~= ARGV[1] then
  return -1
end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisStore keeps one hash per identity under "<prefix>:<identity>".
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore builds a Redis backed challenge store.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "multiwallet:otp"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + ":" + identity
}

// Save overwrites the identity's challenge. retention bounds how long the key
// lives; it should outlast ExpiresAt so expiry can still be reported.
func (s *RedisStore) Save(ctx context.Context, c Challenge, retention time.Duration) error {
	key := s.key(c.Identity)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code", c.Code,
			"destination", c.Destination,
			"issued_at", c.IssuedAt.UnixMilli(),
			"expires_at", c.ExpiresAt.UnixMilli(),
		)
		pipe.PExpire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp challenge: %w", err)
	}
	return nil
}

// Consume atomically verifies and removes the challenge.
func (s *RedisStore) Consume(ctx context.Context, identity, code string, now time.Time) (Challenge, error) {
	key := s.key(identity)

	// Read the metadata first so callers get the destination back; the script
	// remains the only step that decides and deletes.
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Challenge{}, fmt.Errorf("load otp challenge: %w", err)
	}

	res, err := consumeScript.Run(ctx, s.client, []string{key}, code, now.UnixMilli()).Int64()
	if err != nil {
		return Challenge{}, fmt.Errorf("consume otp challenge: %w", err)
	}

	switch res {
	case 1:
		return challengeFrom(identity, fields), nil
	case -1:
		return Challenge{}, ErrMismatch
	case -2:
		return challengeFrom(identity, fields), ErrExpired
	default:
		return Challenge{}, ErrNoChallenge
	}
}

// Delete discards the identity's challenge, if any.
func (s *RedisStore) Delete(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}

func challengeFrom(identity string, fields map[string]string) Challenge {
	c := Challenge{Identity: identity, Destination: fields["destination"], Code: fields["code"]}
	if ms, err := strconv.ParseInt(fields["issued_at"], 10, 64); err == nil {
		c.IssuedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["expires_at"], 10, 64); err == nil {
		c.ExpiresAt = time.UnixMilli(ms).UTC()
	}
	return c
}
