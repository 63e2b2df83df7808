package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/neexbeast/travelapi-search/internal/hotel"
	"github.com/neexbeast/travelapi-search/internal/obs"
)

const (
	staticDataKey    = "staticData"
	imageSizeToken   = "{size}"
	DefaultImageSize = "640x400"
	DefaultMaxImages = 5
)

// StaticLookup fetches static records for a batch of hotel ids. Ids without a
// record are absent from the result.
type StaticLookup interface {
	StaticHotels(ctx context.Context, ids []string) (map[string]hotel.StaticRecord, error)
}

// Enricher decorates results with static hotel metadata.
type Enricher struct {
	lookup    StaticLookup
	imageSize string
	maxImages int
	log       *slog.Logger
	metrics   *obs.Metrics
}

// NewEnricher constructs an Enricher. Zero imageSize/maxImages use the defaults.
func NewEnricher(lookup StaticLookup, imageSize string, maxImages int, log *slog.Logger, metrics *obs.Metrics) *Enricher {
	if imageSize == "" {
		imageSize = DefaultImageSize
	}
	if maxImages <= 0 {
		maxImages = DefaultMaxImages
	}
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{
		lookup:    lookup,
		imageSize: imageSize,
		maxImages: maxImages,
		log:       log,
		metrics:   metrics,
	}
}

// Enrich returns a copy of hotels with staticData attached to every result
// that has a matching record. Lookup failures return the input unchanged.
func (e *Enricher) Enrich(ctx context.Context, hotels []hotel.Hotel) []hotel.Hotel {
	if e == nil || e.lookup == nil || len(hotels) == 0 {
		return hotels
	}

	ids := uniqueIDs(hotels)
	if len(ids) == 0 {
		return hotels
	}

	records, err := e.lookup.StaticHotels(ctx, ids)
	if err != nil {
		e.log.Warn("static data lookup failed, returning unenriched results", "hotels", len(ids), "err", err)
		e.metrics.IncEnrichmentFailures()
		return hotels
	}
	if len(records) == 0 {
		return hotels
	}

	out := make([]hotel.Hotel, len(hotels))
	for i, h := range hotels {
		rec, ok := records[h.ID()]
		if !ok {
			out[i] = h
			continue
		}
		enriched := h.Clone()
		enriched[staticDataKey] = e.staticData(rec)
		out[i] = enriched
	}

	return out
}

func (e *Enricher) staticData(rec hotel.StaticRecord) hotel.StaticData {
	return hotel.StaticData{
		Name:        rec.Name,
		Address:     rec.Address,
		City:        rec.City,
		Country:     rec.Country,
		StarRating:  rec.StarRating,
		Images:      ProcessImages(rec.Images, e.imageSize, e.maxImages),
		Coordinates: rec.Coordinates,
	}
}

// ProcessImages substitutes the size placeholder in up to max template URLs.
func ProcessImages(templates []string, size string, max int) []string {
	images := make([]string, 0, min(len(templates), max))
	for _, tmpl := range templates {
		if len(images) == max {
			break
		}
		if tmpl == "" {
			continue
		}
		images = append(images, strings.ReplaceAll(tmpl, imageSizeToken, size))
	}
	return images
}

func uniqueIDs(hotels []hotel.Hotel) []string {
	seen := make(map[string]struct{}, len(hotels))
	ids := make([]string, 0, len(hotels))
	for _, h := range hotels {
		id := h.ID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
