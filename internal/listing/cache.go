package listing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const cacheKeyPrefix = "listing:"

// CachedRepository is a read-through Redis cache in front of another Repository.
// Cache failures are logged and fall through to the wrapped store.
type CachedRepository struct {
	next   Repository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRepository(next Repository, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{next: next, client: client, ttl: ttl, logger: logger}
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func (r *CachedRepository) FindByID(ctx context.Context, id string) (*Listing, error) {
	key := cacheKeyPrefix + id

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var l Listing
		if err := json.Unmarshal(raw, &l); err == nil {
			return &l, nil
		}
		r.logger.Warn("dropping corrupt listing cache entry", "listing_id", id)
		r.client.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("listing cache read failed", "listing_id", id, "error", err)
	}

	l, err := r.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(l); err == nil {
		if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
			r.logger.Warn("listing cache write failed", "listing_id", id, "error", err)
		}
	}
	return l, nil
}

// Invalidate drops a cached listing after its prices change.
func (r *CachedRepository) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, cacheKeyPrefix+id).Err()
}
