package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/travelapi-search/internal/hotel"
)

const defaultTTL = 24 * time.Hour

// Source loads static records that are not cached.
type Source interface {
	StaticHotels(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error)
}

// StaticCache is a Redis read-through in front of the static-data store.
// Redis failures are logged and the source is queried directly.
type StaticCache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	log    *slog.Logger
}

// NewStaticCache constructs a StaticCache. A zero ttl uses 24 hours.
func NewStaticCache(client *redis.Client, source Source, ttl time.Duration, log *slog.Logger) *StaticCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &StaticCache{client: client, source: source, ttl: ttl, log: log}
}

// key returns the Redis key for the given hotel id.
func key(id string) string {
	return "hotel_static:" + id
}

// StaticHotels returns records for ids, serving hits from Redis and filling
// misses from the source.
func (c *StaticCache) StaticHotels(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error) {
	if len(ids) == 0 {
		return map[string]hotel.StaticRecord{}, nil
	}

	found, missing, err := c.get(ctx, ids)
	if err != nil {
		c.log.Warn("static cache read failed, falling back to database", "hotels", len(ids), "err", err)
		return c.source.StaticHotels(ctx, ids)
	}
	if len(missing) == 0 {
		return found, nil
	}

	loaded, err := c.source.StaticHotels(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("loading %d uncached static records: %w", len(missing), err)
	}

	if err := c.set(ctx, loaded); err != nil {
		c.log.Warn("static cache write failed", "hotels", len(loaded), "err", err)
	}

	for id, rec := range loaded {
		found[id] = rec
	}
	return found, nil
}

// get looks all ids up in one MGET. Undecodable values count as misses.
func (c *StaticCache) get(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, []string, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("cache mget for %d hotels: %w", len(ids), err)
	}

	found := make(map[string]hotel.StaticRecord, len(ids))
	var missing []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var rec hotel.StaticRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			c.log.Warn("discarding undecodable static cache entry", "hotel_id", ids[i], "err", err)
			missing = append(missing, ids[i])
			continue
		}
		found[ids[i]] = rec
	}

	return found, missing, nil
}

// set writes records with the configured TTL in a single pipeline.
func (c *StaticCache) set(ctx context.Context, records map[string]hotel.StaticRecord) error {
	if len(records) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for id, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling static record %s: %w", id, err)
		}
		pipe.Set(ctx, key(id), b, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pipeline set: %w", err)
	}
	return nil
}

// Ping verifies Redis is reachable.
func (c *StaticCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}
