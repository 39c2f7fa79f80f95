package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openfleet/location-relay/internal/model"
)

const keyPrefix = "relay:last_sample:"

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	SampleTTL time.Duration // per-key TTL; stale entities age out
}

// RedisStore is a LastSampleStore backed by a single redis key per entity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    cfg.SampleTTL,
	}, nil
}

// Put overwrites the cached sample for the sample's entity.
func (s *RedisStore) Put(ctx context.Context, sample model.LocationSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+sample.EntityID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set sample: %w", err)
	}
	return nil
}

// Get returns the cached sample for an entity, or ErrNoSample.
func (s *RedisStore) Get(ctx context.Context, entityID string) (model.LocationSample, error) {
	data, err := s.client.Get(ctx, keyPrefix+entityID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.LocationSample{}, ErrNoSample
	}
	if err != nil {
		return model.LocationSample{}, fmt.Errorf("get sample: %w", err)
	}

	var sample model.LocationSample
	if err := json.Unmarshal(data, &sample); err != nil {
		return model.LocationSample{}, fmt.Errorf("unmarshal sample: %w", err)
	}
	return sample, nil
}

// Close releases the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
