package hotel_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neexbeast/travelapi-search/internal/hotel"
)

func TestHotelID(t *testing.T) {
	tests := []struct {
		name string
		h    hotel.Hotel
		want string
	}{
		{"hotel_id string", hotel.Hotel{"hotel_id": "h1"}, "h1"},
		{"id fallback", hotel.Hotel{"id": "abc"}, "abc"},
		{"hotel_id wins over id", hotel.Hotel{"hotel_id": "h1", "id": "other"}, "h1"},
		{"numeric json id", hotel.Hotel{"id": float64(12345)}, "12345"},
		{"json.Number id", hotel.Hotel{"hotel_id": json.Number("987")}, "987"},
		{"empty hotel_id falls back", hotel.Hotel{"hotel_id": "", "id": "x"}, "x"},
		{"missing", hotel.Hotel{"name": "no id"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.ID())
		})
	}
}

func TestHotelClone_DoesNotShareMap(t *testing.T) {
	orig := hotel.Hotel{"hotel_id": "h1"}
	cp := orig.Clone()
	cp["staticData"] = "x"

	_, ok := orig["staticData"]
	assert.False(t, ok)
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&hotel.CacheEntry{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
	assert.True(t, (&hotel.CacheEntry{ExpiresAt: now}).Expired(now))
	assert.False(t, (&hotel.CacheEntry{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	assert.False(t, (&hotel.CacheEntry{}).Expired(now))
}
