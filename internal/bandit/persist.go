package bandit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/threatscore/pkg/models"
)

// stateKey mirrors the original engine's fixed single-key bandit blob
// (garuda:linucb), here storing JSON rather than bincode since the Go
// side has no equivalent binary-layout requirement.
const stateKey = "threatscore:bandit:state"

// RedisStore persists a Bandit's state under a single Redis key.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes the bandit's current snapshot to Redis.
func (s *RedisStore) Save(ctx context.Context, b *Bandit) error {
	data, err := json.Marshal(b.Snapshot())
	if err != nil {
		return fmt.Errorf("bandit: marshal state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey, data, 0).Err(); err != nil {
		return fmt.Errorf("bandit: write state: %w", err)
	}
	return nil
}

// Load reads a previously persisted snapshot into b. A missing key is not
// an error — a freshly deployed bandit simply keeps its fresh-init state.
func (s *RedisStore) Load(ctx context.Context, b *Bandit) error {
	data, err := s.client.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bandit: read state: %w", err)
	}
	var state models.BanditState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("bandit: unmarshal state: %w", err)
	}
	b.Restore(state)
	return nil
}
