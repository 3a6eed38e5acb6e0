package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reviewsight/reviewsight/internal/model"
)

// Mirror is a shared copy of cache entries that survives restarts.
type Mirror interface {
	Save(ctx context.Context, entry model.CacheEntry) error
	Load(ctx context.Context, key model.FilterKey) (model.CacheEntry, bool, error)
}

const keyPrefix = "insights:"

type RedisMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisMirror mirrors entries into rdb. A zero ttl keeps them until overwritten.
func NewRedisMirror(rdb *redis.Client, ttl time.Duration) *RedisMirror {
	return &RedisMirror{rdb: rdb, ttl: ttl}
}

func (m *RedisMirror) Save(ctx context.Context, entry model.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return m.rdb.Set(ctx, keyPrefix+entry.Key.String(), data, m.ttl).Err()
}

func (m *RedisMirror) Load(ctx context.Context, key model.FilterKey) (model.CacheEntry, bool, error) {
	data, err := m.rdb.Get(ctx, keyPrefix+key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, err
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return model.CacheEntry{}, false, err
	}
	entry.Key = key
	return entry, true, nil
}
