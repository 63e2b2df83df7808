package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/travelapi-search/internal/hotel"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository reads search cache entries and static hotel records.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// LatestCacheEntry returns the most recently cached result set for a region,
// expired or not. Returns nil, nil when the region was never cached.
func (r *Repository) LatestCacheEntry(ctx context.Context, regionID int64) (*hotel.CacheEntry, error) {
	const q = `
		SELECT region_id, hotel_ids, total_hotels, rates_index, expires_at, cached_at
		FROM search_cache
		WHERE region_id = $1
		ORDER BY cached_at DESC
		LIMIT 1
	`

	var e hotel.CacheEntry
	var idsJSON, ratesJSON []byte

	err := r.q.QueryRow(ctx, q, regionID).Scan(
		&e.RegionID,
		&idsJSON,
		&e.TotalHotels,
		&ratesJSON,
		&e.ExpiresAt,
		&e.CachedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying search cache for region %d: %w", regionID, err)
	}

	if err := json.Unmarshal(idsJSON, &e.HotelIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling hotel ids for region %d: %w", regionID, err)
	}
	if len(ratesJSON) > 0 {
		if err := json.Unmarshal(ratesJSON, &e.RatesIndex); err != nil {
			return nil, fmt.Errorf("unmarshaling rates index for region %d: %w", regionID, err)
		}
	}

	return &e, nil
}

// StaticHotels returns static records for the given ids in one query, keyed by
// hotel id. Unknown ids are absent from the map.
func (r *Repository) StaticHotels(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error) {
	out := make(map[string]hotel.StaticRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	const q = `
		SELECT hotel_id,
		       COALESCE(name, ''),
		       COALESCE(address, ''),
		       COALESCE(city, ''),
		       COALESCE(country, ''),
		       COALESCE(star_rating, 0)::float8,
		       images,
		       coordinates
		FROM hotel_static_data
		WHERE hotel_id = ANY($1)
	`

	rows, err := r.q.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("querying static data for %d hotels: %w", len(ids), err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec hotel.StaticRecord
		var imagesJSON, coordsJSON []byte

		if err := rows.Scan(
			&rec.HotelID,
			&rec.Name,
			&rec.Address,
			&rec.City,
			&rec.Country,
			&rec.StarRating,
			&imagesJSON,
			&coordsJSON,
		); err != nil {
			return nil, fmt.Errorf("scanning static data row: %w", err)
		}

		if len(imagesJSON) > 0 {
			if err := json.Unmarshal(imagesJSON, &rec.Images); err != nil {
				return nil, fmt.Errorf("unmarshaling images for hotel %s: %w", rec.HotelID, err)
			}
		}
		if len(coordsJSON) > 0 && string(coordsJSON) != "null" {
			var c hotel.Coordinates
			if err := json.Unmarshal(coordsJSON, &c); err != nil {
				return nil, fmt.Errorf("unmarshaling coordinates for hotel %s: %w", rec.HotelID, err)
			}
			rec.Coordinates = &c
		}

		out[rec.HotelID] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating static data rows: %w", err)
	}

	return out, nil
}
