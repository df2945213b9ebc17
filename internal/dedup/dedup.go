// Package dedup filters satellite detections that re-report a thermal
// anomaly already stored. Overlapping swaths and repeated NRT publications
// mean the same hotspot arrives several times per source; a detection within
// the spatial and temporal tolerance of a stored one from the same source is
// a duplicate, not a new fire.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/store"
)

// Deduper filters fetched detections against the detection store.
type Deduper struct {
	store    store.Store
	spatialM float64
	temporal time.Duration
	logger   *slog.Logger
}

// New builds a Deduper with the configured tolerances.
func New(st store.Store, params config.DedupParams, logger *slog.Logger) *Deduper {
	return &Deduper{
		store:    st,
		spatialM: params.SpatialToleranceM,
		temporal: params.TemporalTolerance.Std(),
		logger:   logger,
	}
}

// Filter returns the detections that are genuinely new, plus the number
// discarded as duplicates. Comparison is per source: a VIIRS point never
// suppresses a MODIS point. New detections are compared both against the
// store and against earlier detections in the same batch, so Filter is
// idempotent: feeding its output back in yields the same output.
//
// A store lookup failure drops only that source's batch for this cycle;
// the failed map reports which sources were lost.
func (d *Deduper) Filter(ctx context.Context, dets []domain.Detection) (fresh []domain.Detection, dupes int, failed map[domain.Source]error) {
	if len(dets) == 0 {
		return nil, 0, nil
	}

	bySource := make(map[domain.Source][]domain.Detection)
	for _, det := range dets {
		bySource[det.Source] = append(bySource[det.Source], det)
	}

	for _, source := range domain.AllSources {
		batch, ok := bySource[source]
		if !ok {
			continue
		}
		kept, dropped, err := d.filterSource(ctx, source, batch)
		if err != nil {
			d.logger.Warn("dropping source batch, lookup failed",
				"source", source, "detections", len(batch), "error", err)
			if failed == nil {
				failed = make(map[domain.Source]error)
			}
			failed[source] = err
			continue
		}
		fresh = append(fresh, kept...)
		dupes += dropped
	}

	if dupes > 0 {
		d.logger.Debug("deduplicated detections", "kept", len(fresh), "dropped", dupes)
	}
	return fresh, dupes, failed
}

func (d *Deduper) filterSource(ctx context.Context, source domain.Source, batch []domain.Detection) ([]domain.Detection, int, error) {
	sort.Slice(batch, func(i, j int) bool { return batch[i].AcquiredAt.Before(batch[j].AcquiredAt) })

	// The store window reaches back one tolerance before the oldest
	// candidate; anything earlier cannot be a temporal match.
	since := batch[0].AcquiredAt.Add(-d.temporal)
	stored, err := d.store.RecentDetections(ctx, source, since)
	if err != nil {
		return nil, 0, fmt.Errorf("loading recent %s detections: %w", source, err)
	}

	var kept []domain.Detection
	dropped := 0
	for _, det := range batch {
		if d.matchesAny(det, stored) || d.matchesAny(det, kept) {
			dropped++
			continue
		}
		kept = append(kept, det)
	}
	return kept, dropped, nil
}

func (d *Deduper) matchesAny(det domain.Detection, against []domain.Detection) bool {
	for _, other := range against {
		if det.ID == other.ID {
			return true
		}
		dt := det.AcquiredAt.Sub(other.AcquiredAt)
		if dt < 0 {
			dt = -dt
		}
		if dt > d.temporal {
			continue
		}
		if domain.Haversine(det.Geo, other.Geo) <= d.spatialM {
			return true
		}
	}
	return false
}
