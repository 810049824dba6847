package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trade-compliance-go/internal/config"
	"trade-compliance-go/internal/database"
	"trade-compliance-go/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	fieldPayload    = "payload"
	fieldComputedAt = "computed_at"
)

// RedisSnapshots keeps user metrics snapshots in redis hashes with a TTL.
// A missing or expired key reads as database.ErrNotFound, like the database store.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient opens a client for cfg and checks that the server answers.
func NewRedisClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisSnapshots wraps client. A non-positive ttl keeps snapshots until overwritten.
func NewRedisSnapshots(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

func (c *RedisSnapshots) key(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:metrics", userID.String())
}

// SaveUserMetrics replaces the user's snapshot.
func (c *RedisSnapshots) SaveUserMetrics(ctx context.Context, snapshot *models.UserMetricsSnapshot) error {
	key := c.key(snapshot.UserID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldPayload, snapshot.Payload,
			fieldComputedAt, snapshot.ComputedAt.UTC().Format(time.RFC3339Nano),
		)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache metrics for user %s: %w", snapshot.UserID, err)
	}
	return nil
}

// LoadUserMetrics returns the user's snapshot.
func (c *RedisSnapshots) LoadUserMetrics(ctx context.Context, userID uuid.UUID) (*models.UserMetricsSnapshot, error) {
	fields, err := c.client.HGetAll(ctx, c.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cached metrics for user %s: %w", userID, err)
	}
	payload, ok := fields[fieldPayload]
	if !ok {
		return nil, database.ErrNotFound
	}

	computedAt, err := time.Parse(time.RFC3339Nano, fields[fieldComputedAt])
	if err != nil {
		return nil, fmt.Errorf("invalid cached metrics timestamp for user %s: %w", userID, err)
	}
	return &models.UserMetricsSnapshot{
		UserID:     userID,
		Payload:    []byte(payload),
		ComputedAt: computedAt,
	}, nil
}
