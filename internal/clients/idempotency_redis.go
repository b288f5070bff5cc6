package clients

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
)

const (
	idempotencyPrefix = "idempotency:order:"
	pendingMarker     = "pending"
)

// ErrIdempotencyInFlight is wrapped when another request holds the same key.
var ErrIdempotencyInFlight = errors.New("idempotent request in flight")

func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type redisIdempotencyStore struct {
	client     redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
	log        *logrus.Logger
}

// NewRedisIdempotencyStore keeps a pending marker under a key while its request runs and the
// resulting order id once it committed. A marker that is never completed expires after
// pendingTTL; a recorded order id expires after ttl.
func NewRedisIdempotencyStore(client redis.Cmdable, ttl, pendingTTL time.Duration, logger *logrus.Logger) domain.IdempotencyStore {
	return &redisIdempotencyStore{
		client:     client,
		ttl:        ttl,
		pendingTTL: pendingTTL,
		log:        logger,
	}
}

func (s *redisIdempotencyStore) Reserve(ctx context.Context, key string) (int64, bool, error) {
	k := idempotencyPrefix + key
	claimed, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		s.log.Errorf("Idempotency: Failed to claim key: %v", err)
		return 0, false, domain.Unexpected(err, "could not claim idempotency key")
	}
	if claimed {
		return 0, true, nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Released or expired between the two calls.
		return 0, false, domain.Conflict(ErrIdempotencyInFlight, "request with this idempotency key is being retried, try again")
	}
	if err != nil {
		s.log.Errorf("Idempotency: Failed to read key: %v", err)
		return 0, false, domain.Unexpected(err, "could not read idempotency key")
	}
	return parseMarker(val)
}

func (s *redisIdempotencyStore) Complete(ctx context.Context, key string, orderID int64) error {
	if err := s.client.Set(ctx, idempotencyPrefix+key, strconv.FormatInt(orderID, 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("could not record idempotency key: %w", err)
	}
	return nil
}

func (s *redisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyPrefix+key).Err(); err != nil {
		return fmt.Errorf("could not release idempotency key: %w", err)
	}
	return nil
}

func parseMarker(val string) (int64, bool, error) {
	if val == pendingMarker {
		return 0, false, domain.Conflict(ErrIdempotencyInFlight, "a request with this idempotency key is already in progress")
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, domain.Unexpected(err, "corrupt idempotency record")
	}
	return id, false, nil
}
