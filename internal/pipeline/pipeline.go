// Package pipeline runs the detection cycle: fetch, dedup, enrich, cluster,
// score, alert. Stage failures degrade the cycle rather than aborting it; a
// dead weather API or a failing satellite feed costs signals, not the cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/patagonialabs/firesentinel/internal/alert"
	"github.com/patagonialabs/firesentinel/internal/cluster"
	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/intent"
	"github.com/patagonialabs/firesentinel/internal/observability"
	"github.com/patagonialabs/firesentinel/internal/store"
)

// Fetcher pulls detections from the satellite sources, returning partial
// results plus per-source failures.
type Fetcher interface {
	FetchAll(ctx context.Context, region domain.BoundingBox, dayRange int) ([]domain.Detection, map[domain.Source]error)
}

// Deduper filters a fetched batch down to genuinely new detections.
type Deduper interface {
	Filter(ctx context.Context, dets []domain.Detection) ([]domain.Detection, int, map[domain.Source]error)
}

// Enricher attaches weather and road context to detections.
type Enricher interface {
	Enrich(ctx context.Context, dets []domain.Detection) []domain.EnrichedDetection
}

// Clusterer assigns enriched detections to fire events.
type Clusterer interface {
	Assign(active []domain.FireEvent, dets []domain.EnrichedDetection) *cluster.Result
}

// Classifier scores a fire event's intentionality.
type Classifier interface {
	Classify(event *domain.FireEvent, obs intent.Observations) (*domain.IntentBreakdown, error)
}

// Dispatcher delivers alerts for scored events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []domain.FireEvent) (alert.Outcome, error)
}

// EventPublisher streams scored events to downstream consumers. Optional.
type EventPublisher interface {
	PublishEvents(ctx context.Context, events []*domain.FireEvent) error
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Fetcher    Fetcher
	Deduper    Deduper
	Enricher   Enricher
	Clusterer  Clusterer
	Classifier Classifier
	Dispatcher Dispatcher
	Publisher  EventPublisher // nil disables event streaming
	Store      store.Store
	Params     *config.Params
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Orchestrator executes detection cycles in fixed stage order.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator wires the cycle stages together.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// RunCycle executes one complete cycle and persists its record. It always
// returns a record; the record's status and error list describe how much of
// the cycle succeeded.
func (o *Orchestrator) RunCycle(ctx context.Context) *domain.CycleRecord {
	d := o.deps
	started := domain.Now()
	rec := &domain.CycleRecord{
		ID:              "cycle-" + uuid.NewString()[:8],
		StartedAt:       started,
		FetchedBySource: make(map[domain.Source]int),
		StageDurations:  make(map[string]time.Duration),
	}

	d.Metrics.CycleRunning.Set(1)
	defer d.Metrics.CycleRunning.Set(0)
	d.Logger.Info("cycle started", "cycle_id", rec.ID)

	o.closeStale(ctx, rec)
	fresh := o.ingest(ctx, rec)
	enriched := o.enrich(ctx, rec, fresh)
	touched, ok := o.clusterAndScore(ctx, rec, enriched)
	if ok {
		o.publish(ctx, rec, touched)
		o.dispatch(ctx, rec, touched)
	}

	rec.CompletedAt = domain.Now()
	rec.Status = o.status(rec, ok)

	duration := rec.CompletedAt.Sub(rec.StartedAt)
	d.Metrics.CycleDuration.Observe(duration.Seconds())
	d.Metrics.CyclesTotal.WithLabelValues(string(rec.Status)).Inc()

	if err := d.Store.SaveCycleRecord(ctx, rec); err != nil {
		d.Logger.Error("saving cycle record failed", "cycle_id", rec.ID, "error", err)
	}

	d.Logger.Info("cycle finished",
		"cycle_id", rec.ID,
		"status", rec.Status,
		"duration", duration,
		"new_detections", rec.NewDetections,
		"events_created", rec.EventsCreated,
		"events_updated", rec.EventsUpdated,
		"events_scored", rec.EventsScored,
		"alerts_sent", rec.AlertsSent,
		"alerts_suppressed", rec.AlertsSuppressed,
		"alerts_failed", rec.AlertsFailed)
	return rec
}

// closeStale deactivates events with no detection inside the staleness
// window, before clustering so fresh detections near a dead fire start a new
// event instead of reviving it.
func (o *Orchestrator) closeStale(ctx context.Context, rec *domain.CycleRecord) {
	d := o.deps
	defer o.timeStage(rec, "staleness", domain.Now())

	cutoff := rec.StartedAt.Add(-d.Params.Clustering.Staleness.Std())
	closed, err := d.Store.CloseStaleEvents(ctx, cutoff)
	if err != nil {
		o.fail(rec, fmt.Errorf("closing stale events: %w", err))
		return
	}
	if len(closed) > 0 {
		d.Metrics.EventsStale.Add(float64(len(closed)))
		d.Logger.Info("closed stale events", "count", len(closed), "ids", closed)
	}
}

// ingest fetches from all sources, deduplicates, and persists the survivors.
// A failing source is recorded and the cycle continues with the rest.
func (o *Orchestrator) ingest(ctx context.Context, rec *domain.CycleRecord) []domain.Detection {
	d := o.deps

	fetchStart := domain.Now()
	dets, fetchFailed := d.Fetcher.FetchAll(ctx, d.Params.Monitoring.Region, d.Params.Monitoring.DayRange)
	o.timeStage(rec, "fetch", fetchStart)

	for source, err := range fetchFailed {
		d.Metrics.FetchErrors.WithLabelValues(string(source)).Inc()
		o.fail(rec, fmt.Errorf("fetch %s: %w", source, err))
	}
	for _, det := range dets {
		rec.FetchedBySource[det.Source]++
	}
	for source, n := range rec.FetchedBySource {
		d.Metrics.DetectionsFetched.WithLabelValues(string(source)).Add(float64(n))
	}

	dedupStart := domain.Now()
	fresh, dupes, dedupFailed := d.Deduper.Filter(ctx, dets)
	o.timeStage(rec, "dedup", dedupStart)

	for source, err := range dedupFailed {
		o.fail(rec, fmt.Errorf("dedup %s: %w", source, err))
	}
	d.Metrics.DetectionsNew.Add(float64(len(fresh)))
	d.Metrics.DetectionsDuped.Add(float64(dupes))
	rec.NewDetections = len(fresh)

	if len(fresh) > 0 {
		if _, err := d.Store.InsertDetections(ctx, fresh); err != nil {
			// Keep going: the in-memory batch still clusters and alerts,
			// the next overpass re-reports anything lost here.
			o.fail(rec, fmt.Errorf("persisting detections: %w", err))
		}
	}
	return fresh
}

func (o *Orchestrator) enrich(ctx context.Context, rec *domain.CycleRecord, fresh []domain.Detection) []domain.EnrichedDetection {
	start := domain.Now()
	defer o.timeStage(rec, "enrich", start)

	if len(fresh) == 0 {
		return nil
	}
	stageCtx, cancel := context.WithTimeout(ctx, o.deps.Params.Enrichment.StageTimeout.Std())
	defer cancel()
	return o.deps.Enricher.Enrich(stageCtx, fresh)
}

// clusterAndScore groups detections into events, scores every touched event,
// and persists them. Returns false when the active-event read failed: without
// it, clustering would seed duplicate events for every ongoing fire.
func (o *Orchestrator) clusterAndScore(ctx context.Context, rec *domain.CycleRecord, enriched []domain.EnrichedDetection) ([]*domain.FireEvent, bool) {
	d := o.deps

	clusterStart := domain.Now()
	active, err := d.Store.ActiveEvents(ctx)
	if err != nil {
		o.fail(rec, fmt.Errorf("reading active events: %w", err))
		o.timeStage(rec, "cluster", clusterStart)
		return nil, false
	}

	res := d.Clusterer.Assign(active, enriched)
	o.timeStage(rec, "cluster", clusterStart)

	rec.EventsCreated = len(res.Created)
	rec.EventsUpdated = len(res.Updated)
	d.Metrics.EventsCreated.Add(float64(len(res.Created)))
	d.Metrics.EventsUpdated.Add(float64(len(res.Updated)))

	touched := make([]*domain.FireEvent, 0, len(res.Created)+len(res.Updated))
	touched = append(touched, res.Created...)
	touched = append(touched, res.Updated...)

	scoreStart := domain.Now()
	neighborhood := o.neighborhood(active, touched)
	for _, ev := range touched {
		obs := o.observe(ctx, rec, ev, neighborhood)
		breakdown, err := d.Classifier.Classify(ev, obs)
		switch {
		case errors.Is(err, intent.ErrInsufficientSignals):
			rec.EventsUnscored++
			d.Logger.Warn("event left unscored", "event_id", ev.ID)
		case err != nil:
			o.fail(rec, fmt.Errorf("scoring event %s: %w", ev.ID, err))
		default:
			ev.Intent = breakdown
			rec.EventsScored++
			d.Metrics.EventsScored.Inc()
		}
	}
	o.timeStage(rec, "score", scoreStart)

	persistStart := domain.Now()
	for _, ev := range touched {
		if err := d.Store.UpsertEvent(ctx, ev); err != nil {
			o.fail(rec, fmt.Errorf("persisting event %s: %w", ev.ID, err))
		}
	}
	o.timeStage(rec, "persist", persistStart)

	return touched, true
}

// neighborhood is the full set of candidate ignition points for the
// multi-point signal: every active event, with touched copies taking
// precedence over their stale stored versions.
func (o *Orchestrator) neighborhood(active []domain.FireEvent, touched []*domain.FireEvent) []*domain.FireEvent {
	byID := make(map[string]*domain.FireEvent, len(active)+len(touched))
	for i := range active {
		byID[active[i].ID] = &active[i]
	}
	for _, ev := range touched {
		byID[ev.ID] = ev
	}
	all := make([]*domain.FireEvent, 0, len(byID))
	for _, ev := range byID {
		all = append(all, ev)
	}
	return all
}

// observe gathers the cross-event and store-backed context the classifier
// needs. A failed history lookup disables that signal for this event only.
func (o *Orchestrator) observe(ctx context.Context, rec *domain.CycleRecord, ev *domain.FireEvent, neighborhood []*domain.FireEvent) intent.Observations {
	d := o.deps
	obs := intent.Observations{MonthsSinceLast: -1}

	cell := domain.GridCell(ev.Centroid)
	since := rec.StartedAt.AddDate(-d.Params.Intent.History.LookbackYears, 0, 0)
	count, countErr := d.Store.HistoricalFireCount(ctx, cell, since)
	last, found, lastErr := d.Store.LastHistoricalFire(ctx, cell, since)
	if countErr != nil || lastErr != nil {
		d.Logger.Warn("history lookup failed", "event_id", ev.ID, "cell", cell,
			"error", errors.Join(countErr, lastErr))
	} else {
		obs.HistoryAvailable = true
		obs.HistoryCount = count
		if found {
			obs.MonthsSinceLast = monthsBetween(last, rec.StartedAt)
		}
	}

	window := d.Params.Intent.MultiPoint.Window.Std()
	nearM := d.Params.Intent.MultiPoint.NearKm * 1000
	farM := d.Params.Intent.MultiPoint.FarKm * 1000
	for _, other := range neighborhood {
		if other.ID == ev.ID {
			continue
		}
		dt := other.FirstDetected.Sub(ev.FirstDetected)
		if dt < 0 {
			dt = -dt
		}
		if dt > window {
			continue
		}
		dist := domain.Haversine(ev.Centroid, other.Centroid)
		if dist <= nearM {
			obs.NearbyNear++
		}
		if dist <= farM {
			obs.NearbyFar++
		}
	}
	return obs
}

func (o *Orchestrator) publish(ctx context.Context, rec *domain.CycleRecord, touched []*domain.FireEvent) {
	d := o.deps
	if d.Publisher == nil || len(touched) == 0 {
		return
	}
	start := domain.Now()
	defer o.timeStage(rec, "publish", start)

	if err := d.Publisher.PublishEvents(ctx, touched); err != nil {
		o.fail(rec, fmt.Errorf("publishing events: %w", err))
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, rec *domain.CycleRecord, touched []*domain.FireEvent) {
	d := o.deps
	start := domain.Now()
	defer o.timeStage(rec, "alert", start)

	if len(touched) == 0 {
		return
	}
	events := make([]domain.FireEvent, len(touched))
	for i, ev := range touched {
		events[i] = *ev
	}

	outcome, err := d.Dispatcher.Dispatch(ctx, events)
	if err != nil {
		o.fail(rec, fmt.Errorf("dispatching alerts: %w", err))
	}
	rec.AlertsSent = outcome.Sent
	rec.AlertsSuppressed = outcome.Suppressed
	rec.AlertsFailed = outcome.Failed
	d.Metrics.AlertsSent.Add(float64(outcome.Sent))
	d.Metrics.AlertsSuppressed.Add(float64(outcome.Suppressed))
	d.Metrics.AlertsFailed.Add(float64(outcome.Failed))
}

// status reduces the error list to the cycle's final status. A cycle that
// never reached clustering failed outright; recorded errors with a completed
// chain mean partial.
func (o *Orchestrator) status(rec *domain.CycleRecord, clustered bool) domain.CycleStatus {
	switch {
	case !clustered:
		return domain.CycleFailed
	case len(rec.Errors) > 0:
		return domain.CyclePartial
	default:
		return domain.CycleSuccess
	}
}

func (o *Orchestrator) fail(rec *domain.CycleRecord, err error) {
	o.deps.Logger.Error("cycle stage error", "cycle_id", rec.ID, "error", err)
	rec.Errors = append(rec.Errors, err.Error())
}

// monthsBetween counts whole 30-day months from a past instant to now.
func monthsBetween(past, now time.Time) int {
	if past.After(now) {
		return 0
	}
	return int(now.Sub(past).Hours() / (24 * 30))
}

func (o *Orchestrator) timeStage(rec *domain.CycleRecord, stage string, start time.Time) {
	d := domain.Now().Sub(start)
	rec.StageDurations[stage] = d
	o.deps.Metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
