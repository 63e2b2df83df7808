package search

import (
	"unicode/utf8"

	"github.com/neexbeast/travelapi-search/internal/hotel"
)

const errorPreviewLimit = 1500

// Reply is what the HTTP layer writes back. Raw, when set, is written verbatim
// with ContentType instead of JSON-encoding Body.
type Reply struct {
	Status      int
	Body        any
	Raw         []byte
	ContentType string
}

// CachedResponse is served when the cache stands in for the upstream.
type CachedResponse struct {
	Success      bool          `json:"success"`
	Hotels       []hotel.Hotel `json:"hotels"`
	Total        int           `json:"total"`
	HasMore      bool          `json:"hasMore"`
	Page         int           `json:"page"`
	FromCache    bool          `json:"fromCache"`
	CacheExpired bool          `json:"cacheExpired"`
	CacheWarning string        `json:"cacheWarning"`
	DurationMS   int64         `json:"duration_ms"`
}

// UnavailableResponse is the 503 body when neither upstream nor cache can answer.
type UnavailableResponse struct {
	Error        string        `json:"error"`
	Details      string        `json:"details"`
	WasWarm      bool          `json:"wasWarm"`
	WarmupStatus int           `json:"warmupStatus"`
	Attempts     int           `json:"attempts"`
	LastStatus   int           `json:"lastStatus"`
	DurationMS   int64         `json:"duration_ms"`
	Hotels       []hotel.Hotel `json:"hotels"`
	TotalHotels  int           `json:"totalHotels"`
}

// ErrorResponse is the body for validation, client and internal errors.
type ErrorResponse struct {
	Error       string        `json:"error"`
	Details     string        `json:"details,omitempty"`
	DurationMS  int64         `json:"duration_ms,omitempty"`
	Hotels      []hotel.Hotel `json:"hotels"`
	TotalHotels int           `json:"totalHotels"`
}

// NewErrorResponse builds an ErrorResponse with an empty hotel list.
func NewErrorResponse(msg, details string, durationMS int64) ErrorResponse {
	return ErrorResponse{
		Error:      msg,
		Details:    details,
		DurationMS: durationMS,
		Hotels:     []hotel.Hotel{},
	}
}

// Preview truncates body to at most errorPreviewLimit characters.
func Preview(body []byte) string {
	if utf8.RuneCount(body) <= errorPreviewLimit {
		return string(body)
	}
	runes := []rune(string(body))
	return string(runes[:errorPreviewLimit])
}
