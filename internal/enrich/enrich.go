// Package enrich attaches weather and road context to fresh detections.
//
// Provider calls run concurrently with a bounded limit, and every failure
// degrades to a nil context rather than dropping the detection: a hotspot
// with no weather data still clusters, it just scores on fewer signals.
package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/observability"
)

// WeatherProvider supplies atmospheric context for a detection.
type WeatherProvider interface {
	Context(ctx context.Context, geo domain.Geo, acquiredAt time.Time) (*domain.WeatherContext, error)
}

// RoadProvider supplies road proximity context for a location.
type RoadProvider interface {
	Context(ctx context.Context, geo domain.Geo) (*domain.RoadContext, error)
}

// Enricher coordinates context lookups for a batch of detections.
type Enricher struct {
	weather WeatherProvider
	roads   RoadProvider
	params  config.EnrichmentParams
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewEnricher creates an enrichment coordinator.
func NewEnricher(weather WeatherProvider, roads RoadProvider, params config.EnrichmentParams, metrics *observability.Metrics, logger *slog.Logger) *Enricher {
	return &Enricher{
		weather: weather,
		roads:   roads,
		params:  params,
		metrics: metrics,
		logger:  logger,
	}
}

// Enrich fetches weather and road context for every detection, preserving
// input order. It never fails the batch; the worst case is a batch of
// detections with nil contexts.
func (e *Enricher) Enrich(ctx context.Context, dets []domain.Detection) []domain.EnrichedDetection {
	enriched := make([]domain.EnrichedDetection, len(dets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.params.Concurrency)
	for i, det := range dets {
		enriched[i].Detection = det
		g.Go(func() error {
			enriched[i].Weather = e.fetchWeather(gctx, det)
			enriched[i].Road = e.fetchRoad(gctx, det)
			return nil
		})
	}
	// Workers never return errors, so Wait only orders memory.
	_ = g.Wait()

	return enriched
}

func (e *Enricher) fetchWeather(ctx context.Context, det domain.Detection) *domain.WeatherContext {
	callCtx, cancel := context.WithTimeout(ctx, e.params.CallTimeout.Std())
	defer cancel()

	start := time.Now()
	wc, err := e.weather.Context(callCtx, det.Geo, det.AcquiredAt)
	e.metrics.EnrichDuration.WithLabelValues("weather").Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.EnrichRequests.WithLabelValues("weather", "error").Inc()
		e.logger.Warn("weather enrichment failed",
			"detection", det.ID, "lat", det.Geo.Lat, "lon", det.Geo.Lon, "error", err)
		return nil
	}
	e.metrics.EnrichRequests.WithLabelValues("weather", "success").Inc()
	return wc
}

func (e *Enricher) fetchRoad(ctx context.Context, det domain.Detection) *domain.RoadContext {
	callCtx, cancel := context.WithTimeout(ctx, e.params.CallTimeout.Std())
	defer cancel()

	start := time.Now()
	rc, err := e.roads.Context(callCtx, det.Geo)
	e.metrics.EnrichDuration.WithLabelValues("roads").Observe(time.Since(start).Seconds())
	if err != nil {
		e.metrics.EnrichRequests.WithLabelValues("roads", "error").Inc()
		e.logger.Warn("road enrichment failed",
			"detection", det.ID, "lat", det.Geo.Lat, "lon", det.Geo.Lon, "error", err)
		return nil
	}
	e.metrics.EnrichRequests.WithLabelValues("roads", "success").Inc()
	return rc
}
