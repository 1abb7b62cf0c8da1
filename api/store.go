package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drawsync/drawsync/internal/protocol"
	"github.com/drawsync/drawsync/internal/slogging"
)

// SnapshotStore persists the current diagram snapshot so it survives a server
// restart. Only the current value is kept; document history stays out of
// scope.
type SnapshotStore interface {
	// Load returns the stored snapshot, or ok=false when none exists.
	Load(ctx context.Context) (doc protocol.DiagramDocument, ok bool, err error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, doc protocol.DiagramDocument) error
}

const snapshotKey = "drawsync:diagram:current"

// RedisSnapshotStore keeps the snapshot in a single Redis key.
type RedisSnapshotStore struct {
	client *redis.Client
}

// NewRedisSnapshotStore connects to Redis and verifies the connection with a
// ping before returning.
func NewRedisSnapshotStore(addr, password string, db int) (*RedisSnapshotStore, error) {
	logger := slogging.Get()
	logger.Debug("Initializing Redis snapshot store at %s DB=%d", addr, db)

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisSnapshotStore{client: client}, nil
}

// Load returns the stored snapshot, or ok=false when the key is absent.
func (s *RedisSnapshotStore) Load(ctx context.Context) (protocol.DiagramDocument, bool, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return protocol.DiagramDocument{}, false, nil
	}
	if err != nil {
		return protocol.DiagramDocument{}, false, fmt.Errorf("loading snapshot: %w", err)
	}

	var doc protocol.DiagramDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return protocol.DiagramDocument{}, false, fmt.Errorf("decoding stored snapshot: %w", err)
	}
	return doc, true, nil
}

// Save replaces the stored snapshot. No TTL: the snapshot stays until the
// next update or reset overwrites it.
func (s *RedisSnapshotStore) Save(ctx context.Context, doc protocol.DiagramDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, 0).Err(); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
