// Package cluster groups detections into fire events. A detection joins an
// active event when it falls within the spatial radius of the event's
// centroid and within the temporal window of the event's last activity;
// otherwise it seeds a new event. Events only ever grow or resolve, they
// never split or merge.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
)

// Clusterer assigns detections to fire events.
type Clusterer struct {
	radiusM       float64
	window        time.Duration
	criticalFRPMW float64
	logger        *slog.Logger
}

// Result is the outcome of one clustering pass.
type Result struct {
	Created []*domain.FireEvent
	Updated []*domain.FireEvent

	// PrevSeverity maps updated event IDs to their severity before this
	// pass, so the alert stage can detect escalations.
	PrevSeverity map[string]domain.Severity
}

// New builds a Clusterer with the configured radius and window.
func New(params config.ClusteringParams, logger *slog.Logger) *Clusterer {
	return &Clusterer{
		radiusM:       params.SpatialRadiusM,
		window:        params.TemporalWindow.Std(),
		criticalFRPMW: params.CriticalFRPMW,
		logger:        logger,
	}
}

// Assign clusters the new detections against the active events. The
// detections are processed in acquisition order so a burst of nearby points
// deterministically grows one event rather than racing to seed several.
// Events passed in are not mutated; updated events are returned as copies.
func (c *Clusterer) Assign(active []domain.FireEvent, dets []domain.EnrichedDetection) *Result {
	res := &Result{PrevSeverity: make(map[string]domain.Severity)}

	// Working set: copies of active events plus events created this pass.
	working := make([]*domain.FireEvent, 0, len(active))
	for i := range active {
		cp := active[i]
		working = append(working, &cp)
	}

	sorted := make([]domain.EnrichedDetection, len(dets))
	copy(sorted, dets)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Detection.AcquiredAt.Before(sorted[j].Detection.AcquiredAt)
	})

	created := make(map[string]*domain.FireEvent)
	updated := make(map[string]*domain.FireEvent)

	for i := range sorted {
		det := sorted[i]
		target := c.match(working, det)
		if target == nil {
			ev := c.seed(det)
			working = append(working, ev)
			created[ev.ID] = ev
			continue
		}

		if _, isNew := created[target.ID]; !isNew {
			if _, seen := updated[target.ID]; !seen {
				res.PrevSeverity[target.ID] = target.Severity
				updated[target.ID] = target
			}
		}
		c.attach(target, det)
	}

	for _, ev := range working {
		if _, ok := created[ev.ID]; ok {
			res.Created = append(res.Created, ev)
		} else if _, ok := updated[ev.ID]; ok {
			res.Updated = append(res.Updated, ev)
		}
	}

	if len(res.Created)+len(res.Updated) > 0 {
		c.logger.Debug("clustered detections",
			"detections", len(dets),
			"events_created", len(res.Created),
			"events_updated", len(res.Updated))
	}
	return res
}

// match returns the best event for the detection, or nil if none qualifies.
// Nearest centroid wins; on a distance tie the older event does.
func (c *Clusterer) match(working []*domain.FireEvent, det domain.EnrichedDetection) *domain.FireEvent {
	var best *domain.FireEvent
	var bestDist float64

	for _, ev := range working {
		dt := det.Detection.AcquiredAt.Sub(ev.LastDetected)
		if dt < 0 {
			dt = -dt
		}
		if dt > c.window {
			continue
		}
		dist := domain.Haversine(det.Detection.Geo, ev.Centroid)
		if dist > c.radiusM {
			continue
		}
		switch {
		case best == nil, dist < bestDist:
			best, bestDist = ev, dist
		case dist == bestDist && ev.FirstDetected.Before(best.FirstDetected):
			best = ev
		}
	}
	return best
}

func (c *Clusterer) seed(det domain.EnrichedDetection) *domain.FireEvent {
	ev := &domain.FireEvent{
		ID:            fmt.Sprintf("fe-%s", uuid.NewString()[:8]),
		Centroid:      det.Detection.Geo,
		Detections:    []domain.EnrichedDetection{det},
		FirstDetected: det.Detection.AcquiredAt,
		LastDetected:  det.Detection.AcquiredAt,
		MaxFRP:        det.Detection.FRP,
		Active:        true,
	}
	c.recompute(ev)
	return ev
}

func (c *Clusterer) attach(ev *domain.FireEvent, det domain.EnrichedDetection) {
	ev.Detections = append(ev.Detections, det)
	at := det.Detection.AcquiredAt
	if at.Before(ev.FirstDetected) {
		ev.FirstDetected = at
	}
	if at.After(ev.LastDetected) {
		ev.LastDetected = at
	}
	if det.Detection.FRP > ev.MaxFRP {
		ev.MaxFRP = det.Detection.FRP
	}
	c.recompute(ev)
}

// recompute refreshes the derived fields after membership changes. The
// centroid is the unweighted mean of all member coordinates; brightness does
// not pull it around.
func (c *Clusterer) recompute(ev *domain.FireEvent) {
	var lat, lon float64
	for _, d := range ev.Detections {
		lat += d.Detection.Geo.Lat
		lon += d.Detection.Geo.Lon
	}
	n := float64(len(ev.Detections))
	ev.Centroid = domain.Geo{Lat: lat / n, Lon: lon / n}
	ev.DetectionCount = len(ev.Detections)
	ev.Severity = c.severity(ev)
}

// severity classifies by detection count, promoted to critical when the peak
// fire radiative power crosses the configured threshold.
func (c *Clusterer) severity(ev *domain.FireEvent) domain.Severity {
	if ev.MaxFRP > c.criticalFRPMW {
		return domain.SeverityCritical
	}
	switch n := ev.DetectionCount; {
	case n >= 10:
		return domain.SeverityCritical
	case n >= 6:
		return domain.SeverityHigh
	case n >= 3:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
