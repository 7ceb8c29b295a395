package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	directoryKey   = "checkin:directory:v1"
	changeChannel  = "checkin:directory:changed"
	soundKeyPrefix = "checkin:sound:"
)

// RedisStore keeps the Directory as one JSON value under a single key and
// publishes a change signal on every write. It is the default backend: the
// key plays the role the localStorage slot played for the browser tabs this
// service replaced, and pub/sub plays the role of cross-tab storage events.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load reads the Directory. The second result is false when no document
// exists yet or when the stored value fails to parse; corruption is logged
// and treated as absence so the caller can reseed instead of crashing.
func (s *RedisStore) Load(ctx context.Context) (Directory, bool, error) {
	raw, err := s.client.Get(ctx, directoryKey).Result()
	if err == redis.Nil {
		return Directory{}, false, nil
	}
	if err != nil {
		return Directory{}, false, fmt.Errorf("load directory: %w", err)
	}

	var directory Directory
	if err := json.Unmarshal([]byte(raw), &directory); err != nil {
		log.Printf("WARNING: stored directory is unparseable, treating as absent: %v", err)
		return Directory{}, false, nil
	}
	return directory, true, nil
}

// Save writes the whole Directory and publishes the change signal. Writes
// are last-write-wins at document granularity.
func (s *RedisStore) Save(ctx context.Context, directory Directory) error {
	raw, err := json.Marshal(directory)
	if err != nil {
		return fmt.Errorf("marshal directory: %w", err)
	}
	if err := s.client.Set(ctx, directoryKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	if err := s.client.Publish(ctx, changeChannel, "1").Err(); err != nil {
		return fmt.Errorf("publish directory change: %w", err)
	}
	return nil
}

// Subscribe returns a channel that signals whenever any process writes the
// Directory. The channel carries no payload; consumers re-read the whole
// document. Signals arriving while the consumer is busy are coalesced.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe directory changes: %w", err)
	}

	signals := make(chan struct{}, 1)
	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case signals <- struct{}{}:
				default:
				}
			}
		}
	}()
	return signals, nil
}

// SoundPreference returns the stored alert-sound identifier for an advisor,
// or "" when none was saved.
func (s *RedisStore) SoundPreference(ctx context.Context, username string) (string, error) {
	value, err := s.client.Get(ctx, soundKeyPrefix+username).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load sound preference: %w", err)
	}
	return value, nil
}

// SaveSoundPreference stores an advisor's alert-sound identifier.
func (s *RedisStore) SaveSoundPreference(ctx context.Context, username, sound string) error {
	if err := s.client.Set(ctx, soundKeyPrefix+username, sound, 0).Err(); err != nil {
		return fmt.Errorf("save sound preference: %w", err)
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
