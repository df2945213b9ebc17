package pgstore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/store/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("FIRESENTINEL_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FIRESENTINEL_TEST_DATABASE_URL not set, skipping integration test")
	}
	s, err := pgstore.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestDetectionRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	d := domain.Detection{
		ID:         "det-" + uuid.NewString()[:8],
		Source:     domain.SourceVIIRSSNPP,
		Geo:        domain.Geo{Lat: -42.1, Lon: -71.4},
		Brightness: 330.5,
		FRP:        12.3,
		Confidence: "h",
		AcquiredAt: now,
		DayNight:   domain.Night,
		Satellite:  "N",
		IngestedAt: now,
	}

	n, err := s.InsertDetections(ctx, []domain.Detection{d})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-insert is a no-op.
	n, err = s.InsertDetections(ctx, []domain.Detection{d})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.RecentDetections(ctx, domain.SourceVIIRSSNPP, now.Add(-time.Minute))
	require.NoError(t, err)

	found := false
	for _, g := range got {
		if g.ID == d.ID {
			found = true
			assert.Equal(t, d.Geo, g.Geo)
			assert.Equal(t, d.FRP, g.FRP)
			assert.Equal(t, domain.Night, g.DayNight)
		}
	}
	assert.True(t, found, "inserted detection not returned")
}

func TestEventUpsertAndStale(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	ev := &domain.FireEvent{
		ID:       "fe-" + uuid.NewString()[:8],
		Centroid: domain.Geo{Lat: -42.0, Lon: -71.5},
		Detections: []domain.EnrichedDetection{
			{Detection: domain.Detection{ID: "d1", Source: domain.SourceMODIS, AcquiredAt: now}},
		},
		DetectionCount: 1,
		Severity:       domain.SeverityLow,
		FirstDetected:  now.Add(-36 * time.Hour),
		LastDetected:   now.Add(-36 * time.Hour),
		Active:         true,
	}
	require.NoError(t, s.UpsertEvent(ctx, ev))

	ev.Severity = domain.SeverityHigh
	ev.Intent = &domain.IntentBreakdown{Total: 80, Label: domain.IntentLikelyIntentional, ActiveSignals: 5, TotalSignals: 6}
	require.NoError(t, s.UpsertEvent(ctx, ev))

	active, err := s.ActiveEvents(ctx)
	require.NoError(t, err)
	var got *domain.FireEvent
	for i := range active {
		if active[i].ID == ev.ID {
			got = &active[i]
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, domain.SeverityHigh, got.Severity)
	require.NotNil(t, got.Intent)
	assert.Equal(t, 80, got.Intent.Total)
	require.Len(t, got.Detections, 1)

	closed, err := s.CloseStaleEvents(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, closed, ev.ID)
}

func TestHistoricalFires(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	// Unique cell per run keeps counts stable across reruns.
	cell := "hist-" + uuid.NewString()[:8]
	require.NoError(t, s.AddHistoricalFire(ctx, cell, now.AddDate(0, -14, 0)))
	require.NoError(t, s.AddHistoricalFire(ctx, cell, now.AddDate(-3, 0, 0)))
	require.NoError(t, s.AddHistoricalFire(ctx, cell, now.AddDate(-7, 0, 0)))

	since := now.AddDate(-5, 0, 0)
	count, err := s.HistoricalFireCount(ctx, cell, since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	last, found, err := s.LastHistoricalFire(ctx, cell, since)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now.AddDate(0, -14, 0), last)

	_, found, err = s.LastHistoricalFire(ctx, "hist-empty-"+uuid.NewString()[:8], since)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAlertRecordHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Microsecond).UTC()

	eventID := "fe-" + uuid.NewString()[:8]
	subID := "sub-" + uuid.NewString()[:8]

	for _, offset := range []time.Duration{-8 * time.Hour, -2 * time.Hour} {
		require.NoError(t, s.AppendAlertRecord(ctx, &domain.AlertRecord{
			ID:             uuid.NewString(),
			FireEventID:    eventID,
			SubscriptionID: subID,
			Channel:        domain.ChannelTelegram,
			Message:        "test",
			SentAt:         now.Add(offset),
			Delivered:      true,
			EventSeverity:  domain.SeverityMedium,
			IntentLabel:    domain.IntentUncertain,
		}))
	}

	within, err := s.AlertRecordsFor(ctx, eventID, subID, now.Add(-6*time.Hour))
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, domain.IntentUncertain, within[0].IntentLabel)

	last, ok, err := s.LastAlertRecord(ctx, eventID, subID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now.Add(-2*time.Hour), last.SentAt)

	_, ok, err = s.LastAlertRecord(ctx, "fe-none", subID)
	require.NoError(t, err)
	assert.False(t, ok)
}
