// Package store defines the persistence interface for the detection
// pipeline. Two implementations exist: memstore for development and tests,
// and pgstore backed by PostgreSQL for production.
package store

import (
	"context"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// Store is the persistence interface shared by every pipeline stage.
// Implementations must be safe for concurrent use.
type Store interface {
	// InsertDetections persists new detections, skipping any whose ID is
	// already stored. It returns the number actually inserted.
	InsertDetections(ctx context.Context, dets []domain.Detection) (int, error)

	// RecentDetections returns stored detections for a source acquired at
	// or after the given time, for deduplication against fresh fetches.
	RecentDetections(ctx context.Context, source domain.Source, since time.Time) ([]domain.Detection, error)

	// ActiveEvents returns all fire events still considered active.
	ActiveEvents(ctx context.Context) ([]domain.FireEvent, error)

	// UpsertEvent inserts or replaces a fire event by ID.
	UpsertEvent(ctx context.Context, ev *domain.FireEvent) error

	// CloseStaleEvents deactivates active events whose last detection is
	// older than the cutoff and returns their IDs.
	CloseStaleEvents(ctx context.Context, cutoff time.Time) ([]string, error)

	// HistoricalFireCount counts recorded past fires in a grid cell since
	// the given time. Used by the repeat-location scoring signal.
	HistoricalFireCount(ctx context.Context, cell string, since time.Time) (int, error)

	// LastHistoricalFire returns the most recent recorded fire in a grid
	// cell at or after the given time, if any.
	LastHistoricalFire(ctx context.Context, cell string, since time.Time) (time.Time, bool, error)

	// AddHistoricalFire records a past fire occurrence in a grid cell.
	AddHistoricalFire(ctx context.Context, cell string, occurredAt time.Time) error

	// ActiveSubscriptions returns all subscriptions eligible for alerts.
	ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)

	// AddSubscription persists a subscription.
	AddSubscription(ctx context.Context, sub *domain.Subscription) error

	// AppendAlertRecord appends a delivery attempt to the alert history.
	// Records are immutable once written.
	AppendAlertRecord(ctx context.Context, rec *domain.AlertRecord) error

	// AlertRecordsFor returns delivery attempts for an event/subscription
	// pair sent at or after the given time, oldest first.
	AlertRecordsFor(ctx context.Context, eventID, subscriptionID string, since time.Time) ([]domain.AlertRecord, error)

	// LastAlertRecord returns the most recent delivery attempt for an
	// event/subscription pair, if any.
	LastAlertRecord(ctx context.Context, eventID, subscriptionID string) (*domain.AlertRecord, bool, error)

	// SaveCycleRecord persists the outcome of a completed cycle.
	SaveCycleRecord(ctx context.Context, rec *domain.CycleRecord) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
