// Package memstore provides an in-memory implementation of store.Store.
// Suitable for dev runs and tests; everything is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patagonialabs/firesentinel/internal/domain"
)

// Store holds all pipeline state in memory behind a single RWMutex.
type Store struct {
	mu            sync.RWMutex
	detections    map[string]domain.Detection // detection ID -> detection
	events        map[string]*domain.FireEvent
	history       map[string][]time.Time // grid cell -> fire occurrences
	subscriptions map[string]*domain.Subscription
	alerts        []domain.AlertRecord // append-only
	cycles        []domain.CycleRecord
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		detections:    make(map[string]domain.Detection),
		events:        make(map[string]*domain.FireEvent),
		history:       make(map[string][]time.Time),
		subscriptions: make(map[string]*domain.Subscription),
	}
}

// InsertDetections stores detections not already present, keyed by ID.
func (s *Store) InsertDetections(_ context.Context, dets []domain.Detection) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, d := range dets {
		if _, ok := s.detections[d.ID]; ok {
			continue
		}
		s.detections[d.ID] = d
		inserted++
	}
	return inserted, nil
}

// RecentDetections returns copies of stored detections for a source acquired
// at or after since.
func (s *Store) RecentDetections(_ context.Context, source domain.Source, since time.Time) ([]domain.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Detection
	for _, d := range s.detections {
		if d.Source == source && !d.AcquiredAt.Before(since) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AcquiredAt.Before(out[j].AcquiredAt) })
	return out, nil
}

// ActiveEvents returns deep copies of all active fire events.
func (s *Store) ActiveEvents(_ context.Context) ([]domain.FireEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.FireEvent
	for _, ev := range s.events {
		if ev.Active {
			out = append(out, copyEvent(ev))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstDetected.Before(out[j].FirstDetected) })
	return out, nil
}

// UpsertEvent stores a deep copy of the event, replacing any previous version.
func (s *Store) UpsertEvent(_ context.Context, ev *domain.FireEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyEvent(ev)
	s.events[ev.ID] = &cp
	return nil
}

// CloseStaleEvents deactivates active events last seen before cutoff.
func (s *Store) CloseStaleEvents(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var closed []string
	for id, ev := range s.events {
		if ev.Active && ev.LastDetected.Before(cutoff) {
			ev.Active = false
			closed = append(closed, id)
		}
	}
	sort.Strings(closed)
	return closed, nil
}

// HistoricalFireCount counts recorded fires in a grid cell since the given time.
func (s *Store) HistoricalFireCount(_ context.Context, cell string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, at := range s.history[cell] {
		if !at.Before(since) {
			count++
		}
	}
	return count, nil
}

// LastHistoricalFire returns the most recent recorded fire in a grid cell
// at or after the given time.
func (s *Store) LastHistoricalFire(_ context.Context, cell string, since time.Time) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	found := false
	for _, at := range s.history[cell] {
		if !at.Before(since) && at.After(last) {
			last = at
			found = true
		}
	}
	return last, found, nil
}

// AddHistoricalFire records a past fire occurrence in a grid cell.
func (s *Store) AddHistoricalFire(_ context.Context, cell string, occurredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[cell] = append(s.history[cell], occurredAt)
	return nil
}

// ActiveSubscriptions returns copies of all active subscriptions.
func (s *Store) ActiveSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Subscription
	for _, sub := range s.subscriptions {
		if sub.Active {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddSubscription stores a copy of the subscription.
func (s *Store) AddSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subscriptions[sub.ID] = &cp
	return nil
}

// AppendAlertRecord appends a copy of the record to the alert history.
func (s *Store) AppendAlertRecord(_ context.Context, rec *domain.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *rec)
	return nil
}

// AlertRecordsFor returns records for an event/subscription pair sent at or
// after since, oldest first.
func (s *Store) AlertRecordsFor(_ context.Context, eventID, subscriptionID string, since time.Time) ([]domain.AlertRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AlertRecord
	for _, rec := range s.alerts {
		if rec.FireEventID == eventID && rec.SubscriptionID == subscriptionID && !rec.SentAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// LastAlertRecord returns the most recent record for an event/subscription pair.
func (s *Store) LastAlertRecord(_ context.Context, eventID, subscriptionID string) (*domain.AlertRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		rec := s.alerts[i]
		if rec.FireEventID == eventID && rec.SubscriptionID == subscriptionID {
			return &rec, true, nil
		}
	}
	return nil, false, nil
}

// SaveCycleRecord appends a copy of the cycle record.
func (s *Store) SaveCycleRecord(_ context.Context, rec *domain.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, *rec)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

func copyEvent(ev *domain.FireEvent) domain.FireEvent {
	cp := *ev
	if ev.Detections != nil {
		cp.Detections = make([]domain.EnrichedDetection, len(ev.Detections))
		copy(cp.Detections, ev.Detections)
	}
	if ev.Intent != nil {
		intent := *ev.Intent
		cp.Intent = &intent
	}
	return cp
}
