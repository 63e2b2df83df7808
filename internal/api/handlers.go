package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/neexbeast/travelapi-search/internal/search"
)

const maxRequestBytes = 1 << 20

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	search Searcher
	log    *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(s Searcher, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{search: s, log: log}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeReply(w http.ResponseWriter, reply search.Reply) {
	if reply.Raw != nil {
		w.Header().Set("Content-Type", reply.ContentType)
		w.WriteHeader(reply.Status)
		_, _ = w.Write(reply.Raw)
		return
	}
	writeJSON(w, reply.Status, reply.Body)
}

// Search handles POST /api/v1/search.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := RequestIDFrom(r.Context())
	rec := &statusRecorder{ResponseWriter: w}

	defer func() {
		if p := recover(); p != nil {
			h.log.Error("search handler panicked", "request_id", requestID, "recover", p, "headers_sent", rec.written)
			if rec.written {
				return
			}
			writeJSON(rec, http.StatusInternalServerError,
				search.NewErrorResponse("Internal server error", fmt.Sprint(p), time.Since(start).Milliseconds()))
		}
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(rec, http.StatusRequestEntityTooLarge, search.NewErrorResponse("Request body is too large", "", 0))
			return
		}
		writeJSON(rec, http.StatusBadRequest, search.NewErrorResponse("Request body could not be read", "", 0))
		return
	}

	req, err := search.ParseRequest(body, requestID)
	if err != nil {
		var verr *search.ValidationError
		if !errors.As(err, &verr) {
			verr = &search.ValidationError{Message: err.Error()}
		}
		h.log.Info("rejected invalid search request", "request_id", requestID, "reason", verr.Message)
		writeJSON(rec, http.StatusBadRequest, search.NewErrorResponse(verr.Message, strings.Join(verr.Details, "; "), 0))
		return
	}

	writeReply(rec, h.search.Search(r.Context(), req))
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and, when
// configured, redis connectivity. A nil redis reports "disabled".
func HealthHandlerFunc(db Pinger, redis Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "disabled"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if redis != nil {
			redisStatus = "ok"
			if err := redis.Ping(ctx); err != nil {
				log.Error("health check: redis ping failed", "err", err)
				redisStatus = "error"
				status = http.StatusServiceUnavailable
			}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
