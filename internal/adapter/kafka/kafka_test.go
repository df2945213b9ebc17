package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	detected := time.Date(2026, 1, 15, 4, 32, 0, 0, time.UTC)
	event := &domain.FireEvent{
		ID:             "fe-a1b2c3d4",
		Centroid:       domain.Geo{Lat: -41.96, Lon: -71.53},
		DetectionCount: 4,
		Severity:       domain.SeverityMedium,
		MaxFRP:         22.5,
		FirstDetected:  detected,
		LastDetected:   detected.Add(30 * time.Minute),
		Intent: &domain.IntentBreakdown{
			Total: 75,
			Label: domain.IntentSuspicious,
		},
		Active: true,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("fe-a1b2c3d4"), msg.Key)
	assert.Contains(t, string(msg.Value), `"severity":"medium"`)
	assert.Contains(t, string(msg.Value), `"total":75`)

	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "severity", msg.Headers[0].Key)
	assert.Equal(t, []byte("medium"), msg.Headers[0].Value)
	assert.Equal(t, "last_detected", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-01-15T05:02:00Z"), msg.Headers[1].Value)
	assert.Equal(t, "intent_label", msg.Headers[2].Key)
	assert.Equal(t, []byte(domain.IntentSuspicious), msg.Headers[2].Value)
}

func TestSerializeToMessageUnscored(t *testing.T) {
	event := &domain.FireEvent{
		ID:       "fe-11111111",
		Severity: domain.SeverityLow,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	// No intent header until the event has been scored.
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "severity", msg.Headers[0].Key)
	assert.Equal(t, "last_detected", msg.Headers[1].Key)
}

func TestSerializeToMessageHeaderOrderStable(t *testing.T) {
	event := &domain.FireEvent{ID: "fe-22222222", Severity: domain.SeverityHigh}

	a, err := serializeToMessage(event)
	require.NoError(t, err)
	b, err := serializeToMessage(event)
	require.NoError(t, err)

	var keysA, keysB []string
	for _, h := range a.Headers {
		keysA = append(keysA, h.Key)
	}
	for _, h := range b.Headers {
		keysB = append(keysB, h.Key)
	}
	assert.Equal(t, keysA, keysB)
}
