package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkline/adengine/internal/models"
)

const keySettings = "settings:placement"

// RedisStore keeps the record as one JSON value and replaces it under
// WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, g getter) (models.Settings, error) {
	raw, err := g.Get(ctx, keySettings).Bytes()
	if errors.Is(err, redis.Nil) {
		return normalize(Defaults()), nil
	}
	if err != nil {
		return models.Settings{}, err
	}
	var s models.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return normalize(s), nil
}

func (r *RedisStore) Get(ctx context.Context) (models.Settings, error) {
	return load(ctx, r.client)
}

func (r *RedisStore) Set(ctx context.Context, s models.Settings) (models.Settings, error) {
	var stored models.Settings
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := load(ctx, tx)
		if err != nil {
			return err
		}
		if s.Version != cur.Version {
			return ErrConcurrentMutation
		}
		next := normalize(s)
		next.Version = cur.Version + 1
		next.UpdatedAt = r.now().UTC()
		body, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keySettings, body, 0)
			return nil
		})
		if err != nil {
			return err
		}
		stored = next
		return nil
	}, keySettings)
	if errors.Is(err, redis.TxFailedErr) {
		return models.Settings{}, ErrConcurrentMutation
	}
	if err != nil {
		return models.Settings{}, err
	}
	return stored, nil
}
