package adapter

import (
	"context"
	"errors"
	"strconv"
	"time"

	match "go-stranger/internal/pkg/matchmaking/application/domain"
	repository "go-stranger/internal/pkg/matchmaking/persistence/repository/port"

	redis "github.com/redis/go-redis/v9"
)

// sweepScript removes every member scored strictly below ARGV[1] from the heartbeat
// set together with its address, atomically, and returns how many were removed.
var sweepScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
if #ids == 0 then
	return 0
end
redis.call('ZREM', KEYS[1], unpack(ids))
redis.call('HDEL', KEYS[2], unpack(ids))
return #ids
`)

// RedisPresenceRepository keeps heartbeats in a sorted set scored by LastSeen
// (unix milliseconds) and transport addresses in a hash, both keyed by identity.
type RedisPresenceRepository struct {
	client     redis.UniversalClient
	seenKey    string
	addressKey string
}

var _ repository.PresenceRepository = (*RedisPresenceRepository)(nil)

// NewRedisPresenceRepository stores its keys under prefix (default "matchmaking:presence").
func NewRedisPresenceRepository(client redis.UniversalClient, prefix string) *RedisPresenceRepository {
	if prefix == "" {
		prefix = "matchmaking:presence"
	}
	return &RedisPresenceRepository{
		client:     client,
		seenKey:    prefix + ":last_seen",
		addressKey: prefix + ":address",
	}
}

func (r *RedisPresenceRepository) Upsert(ctx context.Context, rec match.PresenceRecord) error {
	if r == nil || r.client == nil {
		return errors.New("RedisPresenceRepository: nil client")
	}
	id := string(rec.Identity)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, r.seenKey, redis.Z{Score: float64(rec.LastSeen.UnixMilli()), Member: id})
		if rec.Address.Valid() {
			pipe.HSet(ctx, r.addressKey, id, string(rec.Address))
		} else {
			pipe.HDel(ctx, r.addressKey, id)
		}
		return nil
	})
	return err
}

func (r *RedisPresenceRepository) Delete(ctx context.Context, id match.Identity) (int64, error) {
	if r == nil || r.client == nil {
		return 0, errors.New("RedisPresenceRepository: nil client")
	}
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, r.seenKey, string(id))
		pipe.HDel(ctx, r.addressKey, string(id))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed.Val(), nil
}

func (r *RedisPresenceRepository) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if r == nil || r.client == nil {
		return 0, errors.New("RedisPresenceRepository: nil client")
	}
	keys := []string{r.seenKey, r.addressKey}
	return sweepScript.Run(ctx, r.client, keys, strconv.FormatInt(cutoff.UnixMilli(), 10)).Int64()
}

func (r *RedisPresenceRepository) Count(ctx context.Context) (int64, error) {
	if r == nil || r.client == nil {
		return 0, errors.New("RedisPresenceRepository: nil client")
	}
	return r.client.ZCard(ctx, r.seenKey).Result()
}
