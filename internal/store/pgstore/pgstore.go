// Package pgstore provides a PostgreSQL implementation of store.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

//go:embed schema.sql
var schema string

// Store persists pipeline state in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InsertDetections inserts detections, skipping IDs already present.
func (s *Store) InsertDetections(ctx context.Context, dets []domain.Detection) (int, error) {
	inserted := 0
	for _, d := range dets {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO detections (id, source, lat, lon, brightness, brightness_2, frp,
				confidence, acquired_at, daynight, satellite, ingested_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Source, d.Geo.Lat, d.Geo.Lon, d.Brightness, d.Brightness2, d.FRP,
			d.Confidence, d.AcquiredAt, d.DayNight, d.Satellite, d.IngestedAt)
		if err != nil {
			return inserted, fmt.Errorf("insert detection %s: %w", d.ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// RecentDetections returns detections for a source acquired at or after since.
func (s *Store) RecentDetections(ctx context.Context, source domain.Source, since time.Time) ([]domain.Detection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, lat, lon, brightness, brightness_2, frp,
			confidence, acquired_at, daynight, satellite, ingested_at
		FROM detections
		WHERE source = $1 AND acquired_at >= $2
		ORDER BY acquired_at`,
		source, since)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []domain.Detection
	for rows.Next() {
		var d domain.Detection
		if err := rows.Scan(&d.ID, &d.Source, &d.Geo.Lat, &d.Geo.Lon, &d.Brightness,
			&d.Brightness2, &d.FRP, &d.Confidence, &d.AcquiredAt, &d.DayNight,
			&d.Satellite, &d.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ActiveEvents returns all active fire events.
func (s *Store) ActiveEvents(ctx context.Context) ([]domain.FireEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, centroid_lat, centroid_lon, detections, detection_count, severity,
			max_frp, first_detected, last_detected, intent, active
		FROM fire_events
		WHERE active
		ORDER BY first_detected`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.FireEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// UpsertEvent inserts or replaces a fire event by ID.
func (s *Store) UpsertEvent(ctx context.Context, ev *domain.FireEvent) error {
	detections, err := json.Marshal(ev.Detections)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}
	var intent []byte
	if ev.Intent != nil {
		if intent, err = json.Marshal(ev.Intent); err != nil {
			return fmt.Errorf("marshal intent: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO fire_events (id, centroid_lat, centroid_lon, detections, detection_count,
			severity, max_frp, first_detected, last_detected, intent, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			centroid_lat = EXCLUDED.centroid_lat,
			centroid_lon = EXCLUDED.centroid_lon,
			detections = EXCLUDED.detections,
			detection_count = EXCLUDED.detection_count,
			severity = EXCLUDED.severity,
			max_frp = EXCLUDED.max_frp,
			first_detected = EXCLUDED.first_detected,
			last_detected = EXCLUDED.last_detected,
			intent = EXCLUDED.intent,
			active = EXCLUDED.active`,
		ev.ID, ev.Centroid.Lat, ev.Centroid.Lon, detections, ev.DetectionCount,
		ev.Severity, ev.MaxFRP, ev.FirstDetected, ev.LastDetected, intent, ev.Active)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", ev.ID, err)
	}
	return nil
}

// CloseStaleEvents deactivates active events last seen before cutoff.
func (s *Store) CloseStaleEvents(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE fire_events SET active = FALSE
		WHERE active AND last_detected < $1
		RETURNING id`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("close stale events: %w", err)
	}
	defer rows.Close()

	var closed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan closed id: %w", err)
		}
		closed = append(closed, id)
	}
	return closed, rows.Err()
}

// HistoricalFireCount counts recorded fires in a grid cell since the given time.
func (s *Store) HistoricalFireCount(ctx context.Context, cell string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM historical_fires
		WHERE grid_cell = $1 AND occurred_at >= $2`,
		cell, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count historical fires: %w", err)
	}
	return count, nil
}

// LastHistoricalFire returns the most recent recorded fire in a grid cell
// at or after the given time.
func (s *Store) LastHistoricalFire(ctx context.Context, cell string, since time.Time) (time.Time, bool, error) {
	var last time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT occurred_at FROM historical_fires
		WHERE grid_cell = $1 AND occurred_at >= $2
		ORDER BY occurred_at DESC LIMIT 1`,
		cell, since).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last historical fire: %w", err)
	}
	return last, true, nil
}

// AddHistoricalFire records a past fire occurrence in a grid cell.
func (s *Store) AddHistoricalFire(ctx context.Context, cell string, occurredAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO historical_fires (grid_cell, occurred_at) VALUES ($1, $2)`,
		cell, occurredAt)
	if err != nil {
		return fmt.Errorf("insert historical fire: %w", err)
	}
	return nil
}

// ActiveSubscriptions returns all active subscriptions.
func (s *Store) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, channel, address, zone, custom_lat, custom_lon, custom_radius_km,
			min_severity, active, created_at
		FROM subscriptions
		WHERE active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ID, &sub.Channel, &sub.Address, &sub.Zone,
			&sub.CustomLat, &sub.CustomLon, &sub.CustomKm,
			&sub.MinSeverity, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// AddSubscription persists a subscription.
func (s *Store) AddSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, channel, address, zone, custom_lat, custom_lon,
			custom_radius_km, min_severity, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			channel = EXCLUDED.channel,
			address = EXCLUDED.address,
			zone = EXCLUDED.zone,
			custom_lat = EXCLUDED.custom_lat,
			custom_lon = EXCLUDED.custom_lon,
			custom_radius_km = EXCLUDED.custom_radius_km,
			min_severity = EXCLUDED.min_severity,
			active = EXCLUDED.active`,
		sub.ID, sub.Channel, sub.Address, sub.Zone, sub.CustomLat, sub.CustomLon,
		sub.CustomKm, sub.MinSeverity, sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.ID, err)
	}
	return nil
}

// AppendAlertRecord appends a delivery attempt to the alert history.
func (s *Store) AppendAlertRecord(ctx context.Context, rec *domain.AlertRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_records (id, fire_event_id, subscription_id, channel, message,
			sent_at, delivered, is_escalation, event_severity, intent_label, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.FireEventID, rec.SubscriptionID, rec.Channel, rec.Message,
		rec.SentAt, rec.Delivered, rec.IsEscalation, rec.EventSeverity, rec.IntentLabel, rec.Error)
	if err != nil {
		return fmt.Errorf("append alert record: %w", err)
	}
	return nil
}

const alertColumns = `id, fire_event_id, subscription_id, channel, message,
	sent_at, delivered, is_escalation, event_severity, intent_label, error`

// AlertRecordsFor returns delivery attempts for an event/subscription pair
// sent at or after since, oldest first.
func (s *Store) AlertRecordsFor(ctx context.Context, eventID, subscriptionID string, since time.Time) ([]domain.AlertRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+` FROM alert_records
		WHERE fire_event_id = $1 AND subscription_id = $2 AND sent_at >= $3
		ORDER BY sent_at`,
		eventID, subscriptionID, since)
	if err != nil {
		return nil, fmt.Errorf("query alert records: %w", err)
	}
	defer rows.Close()

	var out []domain.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// LastAlertRecord returns the most recent delivery attempt for an
// event/subscription pair.
func (s *Store) LastAlertRecord(ctx context.Context, eventID, subscriptionID string) (*domain.AlertRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+` FROM alert_records
		WHERE fire_event_id = $1 AND subscription_id = $2
		ORDER BY sent_at DESC
		LIMIT 1`,
		eventID, subscriptionID)

	rec, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// SaveCycleRecord persists the outcome of a completed cycle. Counters and
// stage timings live in a JSONB payload; the indexed columns cover the
// queries operators actually run.
func (s *Store) SaveCycleRecord(ctx context.Context, rec *domain.CycleRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cycle record: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cycle_records (id, started_at, completed_at, status, payload)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.StartedAt, rec.CompletedAt, rec.Status, payload)
	if err != nil {
		return fmt.Errorf("save cycle record: %w", err)
	}
	return nil
}

// Ping reports whether PostgreSQL is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEvent(rows pgx.Rows) (*domain.FireEvent, error) {
	var ev domain.FireEvent
	var detections, intent []byte
	if err := rows.Scan(&ev.ID, &ev.Centroid.Lat, &ev.Centroid.Lon, &detections,
		&ev.DetectionCount, &ev.Severity, &ev.MaxFRP, &ev.FirstDetected,
		&ev.LastDetected, &intent, &ev.Active); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if err := json.Unmarshal(detections, &ev.Detections); err != nil {
		return nil, fmt.Errorf("unmarshal detections for %s: %w", ev.ID, err)
	}
	if len(intent) > 0 {
		ev.Intent = &domain.IntentBreakdown{}
		if err := json.Unmarshal(intent, ev.Intent); err != nil {
			return nil, fmt.Errorf("unmarshal intent for %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

func scanAlert(row pgx.Row) (*domain.AlertRecord, error) {
	var rec domain.AlertRecord
	if err := row.Scan(&rec.ID, &rec.FireEventID, &rec.SubscriptionID, &rec.Channel,
		&rec.Message, &rec.SentAt, &rec.Delivered, &rec.IsEscalation,
		&rec.EventSeverity, &rec.IntentLabel, &rec.Error); err != nil {
		return nil, err
	}
	return &rec, nil
}
