package enrich

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/observability"
)

type fakeWeather struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeWeather) Context(_ context.Context, geo domain.Geo, _ time.Time) (*domain.WeatherContext, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.WeatherContext{HumidityPct: geo.Lat * -1}, nil
}

type fakeRoads struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeRoads) Context(_ context.Context, _ domain.Geo) (*domain.RoadContext, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RoadContext{NearestDistanceM: 350, NearestRoadType: "track"}, nil
}

func testEnricher(weather WeatherProvider, roads RoadProvider) *Enricher {
	params := config.EnrichmentParams{
		Concurrency: 4,
		CallTimeout: config.Duration(time.Second),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEnricher(weather, roads, params, observability.NewMetricsForTesting(), logger)
}

func detections(n int) []domain.Detection {
	dets := make([]domain.Detection, n)
	for i := range dets {
		dets[i] = domain.Detection{
			ID:         fmt.Sprintf("det-%04d", i),
			Source:     domain.SourceVIIRSSNPP,
			Geo:        domain.Geo{Lat: -42.0 - float64(i)*0.01, Lon: -71.5},
			AcquiredAt: time.Date(2026, 1, 15, 4, 32, 0, 0, time.UTC),
		}
	}
	return dets
}

func TestEnrichAttachesBothContexts(t *testing.T) {
	weather := &fakeWeather{}
	roads := &fakeRoads{}
	e := testEnricher(weather, roads)

	enriched := e.Enrich(context.Background(), detections(5))
	require.Len(t, enriched, 5)

	for i, ed := range enriched {
		// Input order survives the concurrent fan-out.
		assert.Equal(t, fmt.Sprintf("det-%04d", i), ed.Detection.ID)
		require.NotNil(t, ed.Weather)
		require.NotNil(t, ed.Road)
		assert.InDelta(t, ed.Detection.Geo.Lat*-1, ed.Weather.HumidityPct, 1e-9)
	}
	assert.Equal(t, 5, weather.calls)
	assert.Equal(t, 5, roads.calls)
}

func TestEnrichDegradesOnWeatherFailure(t *testing.T) {
	weather := &fakeWeather{err: errors.New("api down")}
	roads := &fakeRoads{}
	e := testEnricher(weather, roads)

	enriched := e.Enrich(context.Background(), detections(3))
	require.Len(t, enriched, 3)

	for _, ed := range enriched {
		assert.Nil(t, ed.Weather)
		require.NotNil(t, ed.Road)
	}
}

func TestEnrichDegradesOnRoadFailure(t *testing.T) {
	weather := &fakeWeather{}
	roads := &fakeRoads{err: errors.New("rate limited")}
	e := testEnricher(weather, roads)

	enriched := e.Enrich(context.Background(), detections(2))
	require.Len(t, enriched, 2)

	for _, ed := range enriched {
		require.NotNil(t, ed.Weather)
		assert.Nil(t, ed.Road)
	}
}

func TestEnrichEmptyBatch(t *testing.T) {
	e := testEnricher(&fakeWeather{}, &fakeRoads{})
	assert.Empty(t, e.Enrich(context.Background(), nil))
}

// slowWeather blocks until released, tracking peak concurrency.
type slowWeather struct {
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (s *slowWeather) Context(_ context.Context, _ domain.Geo, _ time.Time) (*domain.WeatherContext, error) {
	n := s.active.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-s.release
	s.active.Add(-1)
	return &domain.WeatherContext{}, nil
}

func TestEnrichBoundsConcurrency(t *testing.T) {
	weather := &slowWeather{release: make(chan struct{})}
	e := testEnricher(weather, &fakeRoads{})

	done := make(chan []domain.EnrichedDetection)
	go func() {
		done <- e.Enrich(context.Background(), detections(16))
	}()

	// Let the pool fill, then release everything.
	time.Sleep(50 * time.Millisecond)
	close(weather.release)

	enriched := <-done
	require.Len(t, enriched, 16)
	assert.LessOrEqual(t, weather.peak.Load(), int32(4))
}
