package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLabelForScore(t *testing.T) {
	tests := []struct {
		score    int
		expected IntentLabel
	}{
		{0, IntentNatural},
		{25, IntentNatural}, // boundary belongs to the lower band
		{26, IntentUncertain},
		{50, IntentUncertain},
		{51, IntentSuspicious},
		{75, IntentSuspicious},
		{76, IntentLikelyIntentional},
		{100, IntentLikelyIntentional},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, LabelForScore(tt.score), "score %d", tt.score)
	}
}

func TestSeverityRank(t *testing.T) {
	assert.True(t, SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(t, SeverityCritical.Rank() > SeverityHigh.Rank())
	assert.True(t, SeverityLow.Rank() < SeverityMedium.Rank())
	assert.Equal(t, -1, Severity("bogus").Rank())
}

func TestIntentLabelRank(t *testing.T) {
	assert.True(t, IntentSuspicious.Rank() > IntentUncertain.Rank())
	assert.True(t, IntentLikelyIntentional.Rank() > IntentSuspicious.Rank())
	assert.Equal(t, -1, IntentLabel("").Rank())
}

func TestDetectionID(t *testing.T) {
	at := time.Date(2026, 2, 10, 5, 12, 0, 0, time.UTC)

	t.Run("deterministic", func(t *testing.T) {
		id1 := DetectionID(SourceVIIRSSNPP, Geo{-42.0, -71.5}, at)
		id2 := DetectionID(SourceVIIRSSNPP, Geo{-42.0, -71.5}, at)
		assert.Equal(t, id1, id2)
	})

	t.Run("distinct inputs produce distinct ids", func(t *testing.T) {
		id1 := DetectionID(SourceVIIRSSNPP, Geo{-42.0, -71.5}, at)
		id2 := DetectionID(SourceMODIS, Geo{-42.0, -71.5}, at)
		id3 := DetectionID(SourceVIIRSSNPP, Geo{-42.0, -71.5}, at.Add(time.Minute))
		assert.NotEqual(t, id1, id2)
		assert.NotEqual(t, id1, id3)
	})

	t.Run("prefixed", func(t *testing.T) {
		assert.Contains(t, DetectionID(SourceMODIS, Geo{}, at), "det-")
	})
}
