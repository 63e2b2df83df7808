package hotel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Hotel is a single search result as returned to the caller. Upstream results
// carry arbitrary fields, so the shape is kept open.
type Hotel map[string]any

// ID returns the hotel identifier, looked up under "hotel_id" then "id".
// Numeric identifiers are rendered as decimal strings.
func (h Hotel) ID() string {
	for _, key := range []string{"hotel_id", "id"} {
		if id := idString(h[key]); id != "" {
			return id
		}
	}
	return ""
}

// Clone returns a shallow copy of h.
func (h Hotel) Clone() Hotel {
	out := make(Hotel, len(h)+1)
	for k, v := range h {
		out[k] = v
	}
	return out
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// Coordinates is a hotel's geographic position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StaticRecord is a row of descriptive hotel metadata from the static-data store.
// Images hold template URLs with a "{size}" placeholder.
type StaticRecord struct {
	HotelID     string       `json:"hotel_id"`
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	Country     string       `json:"country"`
	StarRating  float64      `json:"star_rating"`
	Images      []string     `json:"images"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// StaticData is the caller-facing projection of a StaticRecord attached to a
// Hotel under the "staticData" key.
type StaticData struct {
	Name        string       `json:"name"`
	Address     string       `json:"address"`
	City        string       `json:"city"`
	Country     string       `json:"country"`
	StarRating  float64      `json:"star_rating"`
	Images      []string     `json:"images"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// CacheEntry is the most recent cached result set for a region, written by the
// ingestion process and read-only here.
type CacheEntry struct {
	RegionID    int64
	HotelIDs    []string
	TotalHotels int
	RatesIndex  map[string]map[string]any
	ExpiresAt   time.Time
	CachedAt    time.Time
}

// Expired reports whether the entry's advisory expiry has passed at now.
// An entry without an expiry never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt)
}
