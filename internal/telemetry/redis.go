package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inkline/adengine/internal/models"
)

const (
	keyLive      = "telemetry:live"
	keyLiveSeen  = "telemetry:live:seen"
	keyRecent    = "telemetry:recent"
	keyClaim     = "telemetry:archived:"
	keyRateLimit = "telemetry:rl:"
)

// takeScript removes a live session from the hash and the seen index in one
// step and returns it.
var takeScript = redis.NewScript(`
local v = redis.call('HGET', KEYS[1], ARGV[1])
if v then
  redis.call('HDEL', KEYS[1], ARGV[1])
  redis.call('ZREM', KEYS[2], ARGV[1])
end
return v
`)

// takeStaleScript is takeScript guarded by the seen score: the record is only
// removed while its last update is older than ARGV[2] (unix ms).
var takeStaleScript = redis.NewScript(`
local seen = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not seen or tonumber(seen) >= tonumber(ARGV[2]) then
  return false
end
local v = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return v
`)

// RedisLive keeps live sessions in a hash keyed by session id, with a sorted
// set of last-update times for the staleness sweep.
type RedisLive struct {
	client *redis.Client
}

func NewRedisLive(client *redis.Client) *RedisLive {
	return &RedisLive{client: client}
}

func decodeEvent(raw string) (*models.SessionEvent, error) {
	var ev models.SessionEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, fmt.Errorf("decode live session: %w", err)
	}
	return &ev, nil
}

func (r *RedisLive) Get(ctx context.Context, id string) (*models.SessionEvent, error) {
	raw, err := r.client.HGet(ctx, keyLive, id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(raw)
}

func (r *RedisLive) Set(ctx context.Context, ev models.SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal live session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, keyLive, ev.SessionID, body)
		pipe.ZAdd(ctx, keyLiveSeen, redis.Z{Score: float64(ev.UpdatedAt.UnixMilli()), Member: ev.SessionID})
		return nil
	})
	return err
}

func (r *RedisLive) Take(ctx context.Context, id string) (*models.SessionEvent, error) {
	raw, err := takeScript.Run(ctx, r.client, []string{keyLive, keyLiveSeen}, id).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(raw)
}

func (r *RedisLive) TakeIfStale(ctx context.Context, id string, before time.Time) (*models.SessionEvent, error) {
	raw, err := takeStaleScript.Run(ctx, r.client, []string{keyLive, keyLiveSeen}, id, before.UnixMilli()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(raw)
}

func (r *RedisLive) StaleIDs(ctx context.Context, before time.Time) ([]string, error) {
	return r.client.ZRangeByScore(ctx, keyLiveSeen, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
}

func (r *RedisLive) List(ctx context.Context) ([]models.SessionEvent, error) {
	vals, err := r.client.HVals(ctx, keyLive).Result()
	if err != nil {
		return nil, err
	}
	list := make([]models.SessionEvent, 0, len(vals))
	for _, raw := range vals {
		ev, err := decodeEvent(raw)
		if err != nil {
			continue
		}
		list = append(list, *ev)
	}
	return list, nil
}

// RedisArchive claims each session id with SET NX and keeps the newest
// archived sessions in a capped list.
type RedisArchive struct {
	client *redis.Client
	cap    int
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisArchive(client *redis.Client, capacity int, ttl time.Duration) *RedisArchive {
	if capacity <= 0 {
		capacity = DefaultArchiveCap
	}
	if ttl <= 0 {
		ttl = DefaultArchiveTTL
	}
	return &RedisArchive{client: client, cap: capacity, ttl: ttl, now: time.Now}
}

func (r *RedisArchive) Add(ctx context.Context, s models.ArchivedSession) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyClaim+s.SessionID, s.ArchivedAt.Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim session: %w", err)
	}
	if !ok {
		return false, nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return true, fmt.Errorf("marshal archived session: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, keyRecent, body)
		pipe.LTrim(ctx, keyRecent, 0, int64(r.cap-1))
		pipe.Expire(ctx, keyRecent, r.ttl)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("push recent: %w", err)
	}
	return true, nil
}

func (r *RedisArchive) Recent(ctx context.Context, limit int) ([]models.ArchivedSession, error) {
	vals, err := r.client.LRange(ctx, keyRecent, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	cutoff := r.now().Add(-r.ttl)
	list := make([]models.ArchivedSession, 0, len(vals))
	for _, raw := range vals {
		var s models.ArchivedSession
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		if s.ArchivedAt.Before(cutoff) {
			break
		}
		list = append(list, s)
	}
	return list, nil
}

// RedisLimiter is a fixed-window limiter built on SET NX PX.
type RedisLimiter struct {
	client *redis.Client
}

func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return r.client.SetNX(ctx, keyRateLimit+key, 1, window).Result()
}
