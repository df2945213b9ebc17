// Package intent scores fire events for probability of intentional origin.
//
// Six independent evidence signals each contribute up to their configured
// weight. When a collaborator was unavailable (weather API down, road lookup
// failed) the affected signal is excluded and the remaining weights are
// renormalized so the total still lands on a 0-100 scale: a fire scored on
// four signals is more useful than one artificially deflated because an API
// was down.
package intent

import (
	"errors"
	"log/slog"
	"math"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
)

// ErrInsufficientSignals is returned when no signal could be evaluated.
// The event stays unscored rather than carrying a misleading zero.
var ErrInsufficientSignals = errors.New("no intent signals available")

// Observations carries the per-event context the classifier cannot derive
// from the event itself: store lookups and cross-event counts gathered by
// the pipeline.
type Observations struct {
	// HistoryAvailable is false when the historical lookup itself failed,
	// which excludes the signal. A successful lookup that found nothing is
	// still an observation.
	HistoryAvailable bool
	HistoryCount     int
	// MonthsSinceLast is the age of the most recent prior fire in the same
	// grid cell, or -1 when there is none.
	MonthsSinceLast int

	// NearbyNear counts other ignitions within the near radius and temporal
	// window; NearbyFar counts them within the far radius (a superset).
	NearbyNear int
	NearbyFar  int
}

// Classifier is the rule-based intentionality scorer.
type Classifier struct {
	params config.IntentParams
	logger *slog.Logger
}

// New builds a Classifier. The weight set is validated at config load.
func New(params config.IntentParams, logger *slog.Logger) *Classifier {
	return &Classifier{params: params, logger: logger}
}

type signal struct {
	score     int
	weight    float64
	available bool
}

// Classify scores a fire event across all six signals. The same event and
// observations always produce the same breakdown. When every signal is
// unavailable it returns ErrInsufficientSignals and no breakdown.
func (c *Classifier) Classify(event *domain.FireEvent, obs Observations) (*domain.IntentBreakdown, error) {
	weather, road := eventContext(event)
	w := c.params.Weights

	signals := []signal{
		c.scoreLightning(weather, w.LightningAbsence),
		c.scoreRoad(road, w.RoadProximity),
		c.scoreNight(event, w.Nighttime),
		c.scoreHistory(obs, w.HistoricalRepeat),
		c.scoreMultiPoint(obs, w.MultiPoint),
		c.scoreDryness(weather, w.DryConditions),
	}

	breakdown, err := c.combine(signals)
	if err != nil {
		return nil, err
	}

	c.logger.Info("intent classification",
		"event_id", event.ID,
		"total", breakdown.Total,
		"label", breakdown.Label,
		"active_signals", breakdown.ActiveSignals,
		"total_signals", breakdown.TotalSignals)
	return breakdown, nil
}

// scoreLightning rewards the absence of natural ignition sources. A
// thunderstorm in the pre-detection window or high convective energy makes
// lightning a plausible cause and zeroes the signal.
func (c *Classifier) scoreLightning(weather *domain.WeatherContext, weight float64) signal {
	if weather == nil {
		return signal{weight: weight}
	}
	switch {
	case weather.HasThunderstorm:
		return signal{score: 0, weight: weight, available: true}
	case weather.CAPE >= c.params.CAPE.High:
		return signal{score: 0, weight: weight, available: true}
	case weather.CAPE >= c.params.CAPE.Moderate:
		return signal{score: round(weight * 0.6), weight: weight, available: true}
	default:
		return signal{score: round(weight), weight: weight, available: true}
	}
}

// scoreRoad scores proximity to the nearest road. Closer roads mean easier
// human access.
func (c *Classifier) scoreRoad(road *domain.RoadContext, weight float64) signal {
	if road == nil {
		return signal{weight: weight}
	}
	tiers := c.params.RoadDistanceM
	dist := road.NearestDistanceM
	switch {
	case dist < tiers.VeryClose:
		return signal{score: round(weight), weight: weight, available: true}
	case dist < tiers.Close:
		return signal{score: round(weight * 0.75), weight: weight, available: true}
	case dist < tiers.Near:
		return signal{score: round(weight * 0.50), weight: weight, available: true}
	case dist < tiers.Moderate:
		return signal{score: round(weight * 0.25), weight: weight, available: true}
	default:
		return signal{score: 0, weight: weight, available: true}
	}
}

// scoreNight scores ignition during local nighttime hours. Legitimate
// agricultural burns do not start at night. Always available: the hour
// comes from satellite data.
func (c *Classifier) scoreNight(event *domain.FireEvent, weight float64) signal {
	hour := c.localHour(event)
	night := c.params.Night
	switch {
	case night.Peak.Contains(hour):
		return signal{score: round(weight), weight: weight, available: true}
	case night.ShoulderMorning.Contains(hour), night.ShoulderEvening.Contains(hour):
		return signal{score: round(weight * 0.5), weight: weight, available: true}
	default:
		return signal{score: 0, weight: weight, available: true}
	}
}

// scoreHistory scores recurrence at the same location. Repeated fires in one
// grid cell can indicate land clearing or disputes. Recency drives the tier.
func (c *Classifier) scoreHistory(obs Observations, weight float64) signal {
	if !obs.HistoryAvailable {
		return signal{weight: weight}
	}
	if obs.HistoryCount == 0 || obs.MonthsSinceLast < 0 {
		return signal{score: 0, weight: weight, available: true}
	}
	h := c.params.History
	switch {
	case obs.MonthsSinceLast < h.RecentMonths:
		return signal{score: round(weight), weight: weight, available: true}
	case obs.MonthsSinceLast < h.MidMonths:
		return signal{score: round(weight * 0.67), weight: weight, available: true}
	case obs.MonthsSinceLast < h.OldMonths:
		return signal{score: round(weight * 0.33), weight: weight, available: true}
	default:
		return signal{score: 0, weight: weight, available: true}
	}
}

// scoreMultiPoint scores simultaneous separate ignitions nearby, a strong
// arson indicator.
func (c *Classifier) scoreMultiPoint(obs Observations, weight float64) signal {
	switch {
	case obs.NearbyNear >= 2:
		return signal{score: round(weight), weight: weight, available: true}
	case obs.NearbyFar >= 1:
		return signal{score: round(weight * 0.5), weight: weight, available: true}
	default:
		return signal{score: 0, weight: weight, available: true}
	}
}

// scoreDryness scores extreme dryness with no recent rain. A force
// multiplier, not evidence of intent on its own, hence the small weight.
func (c *Classifier) scoreDryness(weather *domain.WeatherContext, weight float64) signal {
	if weather == nil {
		return signal{weight: weight}
	}
	d := c.params.Dryness
	switch {
	case weather.HumidityPct < d.SevereHumidityPct && weather.PrecipitationMM72h <= d.SevereMaxPrecipMM:
		return signal{score: round(weight), weight: weight, available: true}
	case weather.HumidityPct < d.ModerateHumidityPct && weather.PrecipitationMM72h < d.ModerateMaxPrecipMM:
		return signal{score: round(weight * 0.5), weight: weight, available: true}
	default:
		return signal{score: 0, weight: weight, available: true}
	}
}

// combine renormalizes over available signals. Per-signal scores stay raw
// (bounded by their weight); only the total is rescaled so that the
// available weights map onto 0-100.
func (c *Classifier) combine(signals []signal) (*domain.IntentBreakdown, error) {
	var availableWeight float64
	var availableRaw, active int
	for _, s := range signals {
		if s.available {
			availableWeight += s.weight
			availableRaw += s.score
			active++
		}
	}
	if active == 0 {
		return nil, ErrInsufficientSignals
	}

	total := round(100 * float64(availableRaw) / availableWeight)
	if total > 100 {
		total = 100
	}

	return &domain.IntentBreakdown{
		LightningScore:     signals[0].score,
		RoadScore:          signals[1].score,
		NightScore:         signals[2].score,
		HistoryScore:       signals[3].score,
		MultiPointScore:    signals[4].score,
		DryConditionsScore: signals[5].score,
		ActiveSignals:      active,
		TotalSignals:       len(signals),
		Total:              total,
		Label:              domain.LabelForScore(total),
	}, nil
}

// localHour returns the hour of the earliest detection in configured local
// time. Defaults to noon when the event has no detections.
func (c *Classifier) localHour(event *domain.FireEvent) int {
	if len(event.Detections) == 0 {
		return 12
	}
	earliest := event.Detections[0].Detection.AcquiredAt
	for _, d := range event.Detections[1:] {
		if d.Detection.AcquiredAt.Before(earliest) {
			earliest = d.Detection.AcquiredAt
		}
	}
	return (earliest.UTC().Hour() + c.params.Night.UTCOffsetHours + 24) % 24
}

// eventContext pulls weather and road context from the first detection, the
// one that seeded the event.
func eventContext(event *domain.FireEvent) (*domain.WeatherContext, *domain.RoadContext) {
	if len(event.Detections) == 0 {
		return nil, nil
	}
	return event.Detections[0].Weather, event.Detections[0].Road
}

func round(f float64) int {
	return int(math.Round(f))
}
