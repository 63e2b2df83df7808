package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/travelapi-search/internal/hotel"
	"github.com/neexbeast/travelapi-search/internal/obs"
	"github.com/neexbeast/travelapi-search/internal/upstream"
)

// Upstream is the subset of upstream.Client used by the service.
type Upstream interface {
	Execute(ctx context.Context, body []byte, requestID string) upstream.Result
	Warmup(ctx context.Context) upstream.WarmupResult
}

// Dependencies wires a Service.
type Dependencies struct {
	Upstream Upstream
	Cache    *CacheReader
	Enricher *Enricher
	Metrics  *obs.Metrics
	Log      *slog.Logger
	Now      func() time.Time
}

// Service orchestrates one search: cache read, warmup, retried upstream call,
// reconciliation and enrichment.
type Service struct {
	upstream Upstream
	cache    *CacheReader
	enricher *Enricher
	metrics  *obs.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewService(dep Dependencies) *Service {
	now := dep.Now
	if now == nil {
		now = time.Now
	}
	log := dep.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		upstream: dep.Upstream,
		cache:    dep.Cache,
		enricher: dep.Enricher,
		metrics:  dep.Metrics,
		log:      log,
		now:      now,
	}
}

// Search runs a validated request to completion. It always produces a reply.
func (s *Service) Search(ctx context.Context, req Request) Reply {
	start := s.now()
	log := s.log.With("request_id", req.RequestID, "region_id", req.RegionID, "destination", req.Destination)

	warmup := s.startWarmup(ctx)

	var (
		cached CachedResults
		result upstream.Result
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("cache read panicked", "recover", r)
				err = fmt.Errorf("cache read panicked: %v", r)
			}
		}()
		if req.HasRegion {
			cached = s.cache.Read(gCtx, req.RegionID)
		}
		return nil
	})

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("upstream search panicked", "recover", r)
				err = fmt.Errorf("upstream search panicked: %v", r)
			}
		}()
		result = s.upstream.Execute(gCtx, req.Body, req.RequestID)
		return nil
	})

	if err := g.Wait(); err != nil {
		s.metrics.IncSearch("internal_error")
		return Reply{
			Status: http.StatusInternalServerError,
			Body:   NewErrorResponse("Internal server error", err.Error(), s.elapsed(start)),
		}
	}

	for _, a := range result.Attempts {
		s.metrics.ObserveUpstreamAttempt(a.Status, a.Duration.Seconds())
		if a.Err != nil {
			log.Warn("upstream attempt failed", "attempt", a.Number, "err", a.Err)
		} else if a.Retryable {
			log.Warn("upstream attempt returned server error", "attempt", a.Number, "status", a.Status)
		}
	}

	decision := Decide(Classify(result), cached.Available())

	switch decision.Action {
	case ActionServeLive:
		return s.live(ctx, log, result.Response)
	case ActionServeCache:
		return s.fromCache(ctx, log, cached, decision, start)
	case ActionClientError:
		return s.clientError(log, req, result.Response, start)
	default:
		return s.unavailable(ctx, log, decision.Outcome, result, warmup, start)
	}
}

// startWarmup probes the upstream in the background. The result is only read
// when building diagnostics.
func (s *Service) startWarmup(ctx context.Context) <-chan upstream.WarmupResult {
	ch := make(chan upstream.WarmupResult, 1)
	probeCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("warmup probe panicked", "recover", r)
				ch <- upstream.WarmupResult{}
			}
		}()
		ch <- s.upstream.Warmup(probeCtx)
	}()
	return ch
}

func (s *Service) live(ctx context.Context, log *slog.Logger, resp *upstream.Response) Reply {
	var body map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &body); err != nil || body == nil {
		log.Warn("upstream body is not a JSON object, proxying verbatim", "status", resp.Status)
		s.metrics.IncSearch("passthrough")
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		return Reply{Status: resp.Status, Raw: resp.Body, ContentType: contentType}
	}

	if raw, ok := body["hotels"]; ok {
		var hotels []hotel.Hotel
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&hotels); err != nil {
			log.Warn("upstream hotels list not decodable, skipping enrichment", "err", err)
		} else if enriched, err := json.Marshal(s.enricher.Enrich(ctx, hotels)); err == nil {
			body["hotels"] = enriched
		}
	}

	s.metrics.IncSearch("live")
	return Reply{Status: resp.Status, Body: body}
}

func (s *Service) fromCache(ctx context.Context, log *slog.Logger, cached CachedResults, d Decision, start time.Time) Reply {
	log.Warn("serving cached results", "reason", d.Outcome.String(), "hotels", len(cached.Hotels), "expired", cached.Expired)
	s.metrics.IncCacheFallback(d.Outcome.String())
	s.metrics.IncSearch("cache_" + d.Outcome.String())

	return Reply{
		Status: http.StatusOK,
		Body: CachedResponse{
			Success:      true,
			Hotels:       s.enricher.Enrich(ctx, cached.Hotels),
			Total:        cached.Total,
			HasMore:      false,
			Page:         1,
			FromCache:    true,
			CacheExpired: cached.Expired,
			CacheWarning: d.CacheWarning,
			DurationMS:   s.elapsed(start),
		},
	}
}

func (s *Service) clientError(log *slog.Logger, req Request, resp *upstream.Response, start time.Time) Reply {
	s.metrics.IncSearch("client_error")

	var msg, details string
	switch {
	case DestinationNotFound(resp.Body) && req.Destination != "":
		msg = `"` + req.Destination + `" is not available for search. Try a major city nearby.`
	case DestinationNotFound(resp.Body):
		msg = "This destination is not available for search. Try a major city nearby."
	default:
		msg = "Search request was rejected"
		details = Preview(resp.Body)
	}

	log.Info("upstream rejected search", "status", resp.Status)
	return Reply{Status: http.StatusBadRequest, Body: NewErrorResponse(msg, details, s.elapsed(start))}
}

func (s *Service) unavailable(ctx context.Context, log *slog.Logger, o Outcome, result upstream.Result, warmup <-chan upstream.WarmupResult, start time.Time) Reply {
	var w upstream.WarmupResult
	select {
	case w = <-warmup:
	case <-ctx.Done():
	}

	body := UnavailableResponse{
		WasWarm:      w.OK,
		WarmupStatus: w.Status,
		Attempts:     len(result.Attempts),
		LastStatus:   result.LastStatus(),
		Hotels:       []hotel.Hotel{},
	}

	if o == OutcomeNoResponse {
		body.Error = "Search service unavailable"
		if w.OK {
			body.Details = fmt.Sprintf("Upstream is up but the search endpoint did not respond after %d attempts", body.Attempts)
		} else {
			body.Details = fmt.Sprintf("Upstream did not respond to warmup (cold start or outage); search failed after %d attempts", body.Attempts)
		}
	} else {
		body.Error = "Search service error"
		body.Details = Preview(result.Response.Body)
	}
	body.DurationMS = s.elapsed(start)

	log.Error("search failed with no cache fallback",
		"outcome", o.String(),
		"attempts", body.Attempts,
		"last_status", body.LastStatus,
		"was_warm", body.WasWarm,
		"warmup_status", body.WarmupStatus,
	)
	s.metrics.IncSearch("unavailable_" + o.String())

	return Reply{Status: http.StatusServiceUnavailable, Body: body}
}

func (s *Service) elapsed(start time.Time) int64 {
	return s.now().Sub(start).Milliseconds()
}
