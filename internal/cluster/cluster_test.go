package cluster

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
)

var base = time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)

func newClusterer(t *testing.T) *Clusterer {
	t.Helper()
	return New(config.ClusteringParams{
		SpatialRadiusM: 1000,
		TemporalWindow: config.Duration(2 * time.Hour),
		CriticalFRPMW:  100,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func enriched(lat, lon, frp float64, at time.Time) domain.EnrichedDetection {
	return domain.EnrichedDetection{Detection: domain.Detection{
		ID:         domain.DetectionID(domain.SourceVIIRSSNPP, domain.Geo{Lat: lat, Lon: lon}, at),
		Source:     domain.SourceVIIRSSNPP,
		Geo:        domain.Geo{Lat: lat, Lon: lon},
		FRP:        frp,
		AcquiredAt: at,
	}}
}

func TestAssignSeedsNewEvent(t *testing.T) {
	c := newClusterer(t)

	res := c.Assign(nil, []domain.EnrichedDetection{enriched(-42.0, -71.5, 15, base)})

	require.Len(t, res.Created, 1)
	assert.Empty(t, res.Updated)

	ev := res.Created[0]
	assert.Equal(t, domain.Geo{Lat: -42.0, Lon: -71.5}, ev.Centroid)
	assert.Equal(t, 1, ev.DetectionCount)
	assert.Equal(t, domain.SeverityLow, ev.Severity)
	assert.Equal(t, base, ev.FirstDetected)
	assert.Equal(t, base, ev.LastDetected)
	assert.True(t, ev.Active)
	assert.Contains(t, ev.ID, "fe-")
}

func TestAssignJoinsNearbyEvent(t *testing.T) {
	c := newClusterer(t)

	active := []domain.FireEvent{{
		ID:             "fe-existing",
		Centroid:       domain.Geo{Lat: -42.0, Lon: -71.5},
		Detections:     []domain.EnrichedDetection{enriched(-42.0, -71.5, 15, base)},
		DetectionCount: 1,
		Severity:       domain.SeverityLow,
		MaxFRP:         15,
		FirstDetected:  base,
		LastDetected:   base,
		Active:         true,
	}}

	// ~550m north, 30 minutes later.
	res := c.Assign(active, []domain.EnrichedDetection{enriched(-41.995, -71.5, 40, base.Add(30*time.Minute))})

	assert.Empty(t, res.Created)
	require.Len(t, res.Updated, 1)

	ev := res.Updated[0]
	assert.Equal(t, "fe-existing", ev.ID)
	assert.Equal(t, 2, ev.DetectionCount)
	assert.Equal(t, 40.0, ev.MaxFRP)
	assert.Equal(t, base.Add(30*time.Minute), ev.LastDetected)
	// Centroid moves to the mean of both points.
	assert.InDelta(t, -41.9975, ev.Centroid.Lat, 1e-9)
	assert.Equal(t, domain.SeverityLow, res.PrevSeverity["fe-existing"])

	// The caller's slice is untouched.
	assert.Equal(t, 1, active[0].DetectionCount)
}

func TestAssignRespectsRadiusAndWindow(t *testing.T) {
	c := newClusterer(t)

	active := []domain.FireEvent{{
		ID:            "fe-existing",
		Centroid:      domain.Geo{Lat: -42.0, Lon: -71.5},
		FirstDetected: base,
		LastDetected:  base,
		Severity:      domain.SeverityLow,
		Active:        true,
	}}

	tests := []struct {
		name string
		det  domain.EnrichedDetection
	}{
		{
			// ~1.7km north.
			name: "outside spatial radius",
			det:  enriched(-41.985, -71.5, 10, base.Add(10*time.Minute)),
		},
		{
			name: "outside temporal window",
			det:  enriched(-42.0, -71.5, 10, base.Add(3*time.Hour)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Assign(active, []domain.EnrichedDetection{tt.det})
			require.Len(t, res.Created, 1)
			assert.Empty(t, res.Updated)
		})
	}
}

func TestAssignNearestWinsThenOldest(t *testing.T) {
	c := newClusterer(t)

	active := []domain.FireEvent{
		{
			ID:            "fe-far",
			Centroid:      domain.Geo{Lat: -42.008, Lon: -71.5},
			FirstDetected: base.Add(-time.Hour),
			LastDetected:  base,
			Active:        true,
		},
		{
			ID:            "fe-near",
			Centroid:      domain.Geo{Lat: -42.002, Lon: -71.5},
			FirstDetected: base,
			LastDetected:  base,
			Active:        true,
		},
	}

	res := c.Assign(active, []domain.EnrichedDetection{enriched(-42.001, -71.5, 10, base.Add(10*time.Minute))})
	require.Len(t, res.Updated, 1)
	assert.Equal(t, "fe-near", res.Updated[0].ID)

	// Equidistant from two events: the one detected first wins.
	equal := []domain.FireEvent{
		{
			ID:            "fe-younger",
			Centroid:      domain.Geo{Lat: -42.004, Lon: -71.5},
			FirstDetected: base,
			LastDetected:  base,
			Active:        true,
		},
		{
			ID:            "fe-older",
			Centroid:      domain.Geo{Lat: -42.000, Lon: -71.5},
			FirstDetected: base.Add(-time.Hour),
			LastDetected:  base,
			Active:        true,
		},
	}
	res = c.Assign(equal, []domain.EnrichedDetection{enriched(-42.002, -71.5, 10, base.Add(10*time.Minute))})
	require.Len(t, res.Updated, 1)
	assert.Equal(t, "fe-older", res.Updated[0].ID)
}

func TestAssignBurstGrowsOneEvent(t *testing.T) {
	c := newClusterer(t)

	// Five points within a few hundred meters, minutes apart. Later points
	// keep joining the event seeded by the first.
	dets := []domain.EnrichedDetection{
		enriched(-42.000, -71.500, 10, base),
		enriched(-42.002, -71.500, 12, base.Add(5*time.Minute)),
		enriched(-42.000, -71.503, 20, base.Add(10*time.Minute)),
		enriched(-41.998, -71.500, 18, base.Add(15*time.Minute)),
		enriched(-42.000, -71.497, 25, base.Add(20*time.Minute)),
	}

	res := c.Assign(nil, dets)
	require.Len(t, res.Created, 1)
	ev := res.Created[0]
	assert.Equal(t, 5, ev.DetectionCount)
	assert.Equal(t, domain.SeverityMedium, ev.Severity)
	assert.Equal(t, base, ev.FirstDetected)
	assert.Equal(t, base.Add(20*time.Minute), ev.LastDetected)
}

func TestSeverityBands(t *testing.T) {
	c := newClusterer(t)

	tests := []struct {
		name   string
		count  int
		maxFRP float64
		want   domain.Severity
	}{
		{name: "two detections", count: 2, maxFRP: 10, want: domain.SeverityLow},
		{name: "three detections", count: 3, maxFRP: 10, want: domain.SeverityMedium},
		{name: "six detections", count: 6, maxFRP: 10, want: domain.SeverityHigh},
		{name: "ten detections", count: 10, maxFRP: 10, want: domain.SeverityCritical},
		{name: "high FRP promotes", count: 1, maxFRP: 150, want: domain.SeverityCritical},
		{name: "threshold FRP does not", count: 1, maxFRP: 100, want: domain.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &domain.FireEvent{DetectionCount: tt.count, MaxFRP: tt.maxFRP}
			assert.Equal(t, tt.want, c.severity(ev))
		})
	}
}
