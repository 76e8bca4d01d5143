package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSnapshotKeyPrefix = "storepulse:snapshot:"

// ErrSnapshotNotFound is returned when no mirrored snapshot exists under a name
var ErrSnapshotNotFound = errors.New("cache: snapshot not found")

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and pings it
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// SnapshotMirror publishes dashboard snapshots to Redis as JSON so processes
// other than the preloader can read warm data. A nil client makes every call a no-op.
type SnapshotMirror struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewSnapshotMirror creates a mirror over client. An empty prefix uses "storepulse:snapshot:".
func NewSnapshotMirror(client redis.UniversalClient, keyPrefix string) *SnapshotMirror {
	if keyPrefix == "" {
		keyPrefix = defaultSnapshotKeyPrefix
	}
	if c, ok := client.(*redis.Client); ok && c == nil {
		client = nil
	}
	return &SnapshotMirror{client: client, keyPrefix: keyPrefix}
}

// Enabled reports whether a Redis client is attached
func (m *SnapshotMirror) Enabled() bool {
	return m != nil && m.client != nil
}

// Key returns the Redis key of a snapshot name
func (m *SnapshotMirror) Key(name string) string {
	return m.keyPrefix + name
}

// Publish stores value as JSON under name with ttl
func (m *SnapshotMirror) Publish(ctx context.Context, name string, value any, ttl time.Duration) error {
	if !m.Enabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", name, err)
	}
	if err := m.client.Set(ctx, m.Key(name), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot %s: %w", name, err)
	}
	return nil
}

// Load decodes the snapshot stored under name into dest
func (m *SnapshotMirror) Load(ctx context.Context, name string, dest any) error {
	if !m.Enabled() {
		return ErrSnapshotNotFound
	}
	data, err := m.client.Get(ctx, m.Key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrSnapshotNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to unmarshal snapshot %s: %w", name, err)
	}
	return nil
}

// Purge removes every mirrored snapshot and returns how many keys were deleted
func (m *SnapshotMirror) Purge(ctx context.Context) (int, error) {
	if !m.Enabled() {
		return 0, nil
	}

	var deleted int
	iter := m.client.Scan(ctx, 0, m.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := m.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("failed to delete snapshot key %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan snapshot keys: %w", err)
	}
	return deleted, nil
}
