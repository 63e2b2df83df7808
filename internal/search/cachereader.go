package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/neexbeast/travelapi-search/internal/hotel"
)

// CacheStore returns the most recent cache entry for a region, or nil, nil.
type CacheStore interface {
	LatestCacheEntry(ctx context.Context, regionID int64) (*hotel.CacheEntry, error)
}

// CachedResults is a result list reconstructed from a cache entry.
type CachedResults struct {
	Found   bool
	Hotels  []hotel.Hotel
	Total   int
	Expired bool
}

// Available reports whether the cache can stand in for a live response.
func (c CachedResults) Available() bool {
	return c.Found && len(c.Hotels) > 0
}

// CacheReader reads fallback results. It never fails: lookup errors are logged
// and reported as a miss.
type CacheReader struct {
	store CacheStore
	log   *slog.Logger
	now   func() time.Time
}

// NewCacheReader constructs a CacheReader. A nil store always misses.
func NewCacheReader(store CacheStore, log *slog.Logger) *CacheReader {
	return NewCacheReaderWithClock(store, log, time.Now)
}

// NewCacheReaderWithClock constructs a CacheReader with a fixed time source (for tests).
func NewCacheReaderWithClock(store CacheStore, log *slog.Logger, now func() time.Time) *CacheReader {
	if log == nil {
		log = slog.Default()
	}
	return &CacheReader{store: store, log: log, now: now}
}

// Read looks up the latest entry for regionID. Expiry is reported, not enforced.
func (r *CacheReader) Read(ctx context.Context, regionID int64) CachedResults {
	if r == nil || r.store == nil {
		return CachedResults{}
	}

	entry, err := r.store.LatestCacheEntry(ctx, regionID)
	if err != nil {
		r.log.Warn("search cache lookup failed", "region_id", regionID, "err", err)
		return CachedResults{}
	}
	if entry == nil {
		return CachedResults{}
	}

	hotels := Reconstruct(entry)
	total := entry.TotalHotels
	if total == 0 {
		total = len(hotels)
	}

	return CachedResults{
		Found:   true,
		Hotels:  hotels,
		Total:   total,
		Expired: entry.Expired(r.now()),
	}
}

// Reconstruct builds one result per cached hotel id, in order, merging the
// id's rate info when the index has it.
func Reconstruct(entry *hotel.CacheEntry) []hotel.Hotel {
	hotels := make([]hotel.Hotel, 0, len(entry.HotelIDs))
	for _, id := range entry.HotelIDs {
		h := hotel.Hotel{}
		for k, v := range entry.RatesIndex[id] {
			h[k] = v
		}
		h["hotel_id"] = id
		hotels = append(hotels, h)
	}
	return hotels
}
