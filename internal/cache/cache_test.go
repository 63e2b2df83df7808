package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/travelapi-search/internal/cache"
	"github.com/neexbeast/travelapi-search/internal/config"
	"github.com/neexbeast/travelapi-search/internal/hotel"
)

type mockSource struct {
	StaticHotelsFn func(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error)
	requested      [][]string
}

func (m *mockSource) StaticHotels(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error) {
	cp := append([]string(nil), ids...)
	sort.Strings(cp)
	m.requested = append(m.requested, cp)
	return m.StaticHotelsFn(ctx, ids)
}

func sourceOf(records ...hotel.StaticRecord) *mockSource {
	return &mockSource{
		StaticHotelsFn: func(_ context.Context, ids []string) (map[string]hotel.StaticRecord, error) {
			out := map[string]hotel.StaticRecord{}
			for _, id := range ids {
				for _, r := range records {
					if r.HotelID == id {
						out[id] = r
					}
				}
			}
			return out, nil
		},
	}
}

func newTestCache(t *testing.T, src cache.Source, ttl time.Duration) (*cache.StaticCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return cache.NewStaticCache(client, src, ttl, log), mr
}

func record(id, name string) hotel.StaticRecord {
	return hotel.StaticRecord{HotelID: id, Name: name, Images: []string{"https://cdn/{size}/" + id + ".jpg"}}
}

func seed(t *testing.T, mr *miniredis.Miniredis, rec hotel.StaticRecord) {
	t.Helper()
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, mr.Set("hotel_static:"+rec.HotelID, string(b)))
}

func TestStaticCache_MissFillsFromSourceAndWritesBack(t *testing.T) {
	src := sourceOf(record("h1", "One"), record("h2", "Two"))
	c, mr := newTestCache(t, src, time.Hour)

	got, err := c.StaticHotels(context.Background(), []string{"h1", "h2", "h3"})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "One", got["h1"].Name)
	assert.Equal(t, [][]string{{"h1", "h2", "h3"}}, src.requested)

	assert.True(t, mr.Exists("hotel_static:h1"))
	assert.True(t, mr.Exists("hotel_static:h2"))
	assert.False(t, mr.Exists("hotel_static:h3"), "unknown ids are not cached")
	assert.Equal(t, time.Hour, mr.TTL("hotel_static:h1"))
}

func TestStaticCache_HitsSkipSource(t *testing.T) {
	src := sourceOf()
	c, mr := newTestCache(t, src, 0)
	seed(t, mr, record("h1", "Cached One"))
	seed(t, mr, record("h2", "Cached Two"))

	got, err := c.StaticHotels(context.Background(), []string{"h1", "h2"})
	require.NoError(t, err)

	assert.Equal(t, "Cached One", got["h1"].Name)
	assert.Equal(t, []string{"https://cdn/{size}/h2.jpg"}, got["h2"].Images)
	assert.Empty(t, src.requested)
}

func TestStaticCache_PartialHitQueriesOnlyMisses(t *testing.T) {
	src := sourceOf(record("h2", "From DB"))
	c, mr := newTestCache(t, src, 0)
	seed(t, mr, record("h1", "Cached"))

	got, err := c.StaticHotels(context.Background(), []string{"h1", "h2"})
	require.NoError(t, err)

	assert.Equal(t, "Cached", got["h1"].Name)
	assert.Equal(t, "From DB", got["h2"].Name)
	assert.Equal(t, [][]string{{"h2"}}, src.requested)
	assert.Equal(t, 24*time.Hour, mr.TTL("hotel_static:h2"), "zero ttl falls back to the default")
}

func TestStaticCache_CorruptEntryIsRefetched(t *testing.T) {
	src := sourceOf(record("h1", "Fresh"))
	c, mr := newTestCache(t, src, time.Hour)
	require.NoError(t, mr.Set("hotel_static:h1", "{not json"))

	got, err := c.StaticHotels(context.Background(), []string{"h1"})
	require.NoError(t, err)
	assert.Equal(t, "Fresh", got["h1"].Name)

	raw, err := mr.Get("hotel_static:h1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"Fresh"`)
}

func TestStaticCache_ExpiredEntryIsRefetched(t *testing.T) {
	src := sourceOf(record("h1", "One"))
	c, mr := newTestCache(t, src, time.Hour)

	_, err := c.StaticHotels(context.Background(), []string{"h1"})
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, err = c.StaticHotels(context.Background(), []string{"h1"})
	require.NoError(t, err)
	assert.Len(t, src.requested, 2)
}

func TestStaticCache_RedisDownFallsBackToSource(t *testing.T) {
	src := sourceOf(record("h1", "One"))
	c, mr := newTestCache(t, src, time.Hour)
	mr.Close()

	got, err := c.StaticHotels(context.Background(), []string{"h1"})
	require.NoError(t, err)
	assert.Equal(t, "One", got["h1"].Name)
	assert.Len(t, src.requested, 1)
}

func TestStaticCache_SourceError(t *testing.T) {
	src := &mockSource{StaticHotelsFn: func(context.Context, []string) (map[string]hotel.StaticRecord, error) {
		return nil, errors.New("db down")
	}}
	c, _ := newTestCache(t, src, time.Hour)

	_, err := c.StaticHotels(context.Background(), []string{"h1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestStaticCache_EmptyIDs(t *testing.T) {
	src := sourceOf()
	c, _ := newTestCache(t, src, time.Hour)

	got, err := c.StaticHotels(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, src.requested)
}

func TestStaticCache_Ping(t *testing.T) {
	c, mr := newTestCache(t, sourceOf(), time.Hour)
	require.NoError(t, c.Ping(context.Background()))

	mr.Close()
	require.Error(t, c.Ping(context.Background()))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := cache.Connect(context.Background(), config.RedisConfig{URL: "not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing redis URL")
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := cache.Connect(context.Background(), config.RedisConfig{
		URL:         "redis://localhost:19999",
		DialTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging redis at localhost:19999")
}

func TestConnect_AppliesTimeouts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := cache.Connect(context.Background(), config.RedisConfig{
		URL:          "redis://" + mr.Addr() + "/0",
		DialTimeout:  time.Second,
		ReadTimeout:  250 * time.Millisecond,
		WriteTimeout: 300 * time.Millisecond,
		PoolSize:     3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	opts := client.Options()
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 300*time.Millisecond, opts.WriteTimeout)
	assert.Equal(t, 3, opts.PoolSize)
}

func TestConnect_ZeroSettingsKeepDefaults(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := cache.Connect(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, 5*time.Second, client.Options().DialTimeout)
	assert.Equal(t, 3*time.Second, client.Options().ReadTimeout)
}
