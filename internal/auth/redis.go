package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pollstream/pollstream/internal/metrics"
)

const (
	tokenKeyPrefix = "auth:token:"

	// verifyTimeout bounds a single token lookup so a stalled backend
	// cannot stall frame handling.
	verifyTimeout = 2 * time.Second
)

// RedisVerifier resolves tokens against entries the API layer writes to
// Redis under auth:token:<token>, with the entry TTL acting as the
// credential lifetime.
type RedisVerifier struct {
	client *goredis.Client
	clock  clockwork.Clock
}

// NewRedisVerifier creates a verifier over an established Redis client.
func NewRedisVerifier(client *goredis.Client, clock clockwork.Clock) *RedisVerifier {
	return &RedisVerifier{client: client, clock: clock}
}

func (v *RedisVerifier) Verify(ctx context.Context, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	start := v.clock.Now()
	userID, err := v.client.Get(ctx, tokenKeyPrefix+token).Result()
	metrics.AuthVerificationDuration.Observe(v.clock.Since(start).Seconds())

	if errors.Is(err, goredis.Nil) {
		metrics.AuthVerificationsTotal.WithLabelValues("invalid").Inc()
		return "", ErrInvalidToken
	}
	if err != nil {
		metrics.AuthVerificationsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("token lookup: %w", err)
	}

	metrics.AuthVerificationsTotal.WithLabelValues("ok").Inc()
	return userID, nil
}

// NewClient creates a Redis client from a URL (e.g. "redis://localhost:6379").
func NewClient(redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return goredis.NewClient(opts), nil
}
