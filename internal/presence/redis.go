package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/avorobev/peertalk/internal/core"
	"github.com/avorobev/peertalk/internal/domain"
)

const (
	entryKeyPrefix = "presence:user:"
	indexKey       = "presence:index"
)

// unregisterScript deletes the entry only while the caller's connection still
// owns it, atomically with the index update. Without this a stale disconnect
// could erase a fresh reconnect that already overwrote the entry.
var unregisterScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then return 0 end
local entry = cjson.decode(cur)
if entry.connId ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[2])
return 1
`)

// registerScript writes the entry and index membership atomically.
var registerScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// RedisStore is the shared directory for multi-gateway deployments. Every
// store error surfaces as ErrPresenceUnavailable, never as "user offline".
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func entryKey(userID domain.UserID) string {
	return entryKeyPrefix + string(userID)
}

func (s *RedisStore) Register(ctx context.Context, h domain.ConnHandle) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal presence entry: %w", err)
	}
	keys := []string{entryKey(h.UserID), indexKey}
	if err := registerScript.Run(ctx, s.rdb, keys, raw, string(h.UserID)).Err(); err != nil {
		return unavailable(err)
	}
	log.Info().Str("module", "presence").Str("user", string(h.UserID)).Str("conn", h.ConnID).Msg("registered")
	return nil
}

func (s *RedisStore) Unregister(ctx context.Context, userID domain.UserID, connID string) error {
	keys := []string{entryKey(userID), indexKey}
	removed, err := unregisterScript.Run(ctx, s.rdb, keys, connID, string(userID)).Int()
	if err != nil {
		return unavailable(err)
	}
	if removed == 0 {
		log.Debug().Str("module", "presence").Str("user", string(userID)).Str("conn", connID).Msg("stale unregister ignored")
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, userID domain.UserID) (domain.ConnHandle, bool, error) {
	raw, err := s.rdb.Get(ctx, entryKey(userID)).Bytes()
	if err == redis.Nil {
		return domain.ConnHandle{}, false, nil
	}
	if err != nil {
		return domain.ConnHandle{}, false, unavailable(err)
	}
	var h domain.ConnHandle
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.ConnHandle{}, false, fmt.Errorf("decode presence entry: %w", err)
	}
	return h, true, nil
}

func (s *RedisStore) Snapshot(ctx context.Context) ([]domain.UserID, error) {
	members, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		out = append(out, domain.UserID(m))
	}
	return out, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", core.ErrPresenceUnavailable, err)
}

var _ core.PresenceStore = (*RedisStore)(nil)
