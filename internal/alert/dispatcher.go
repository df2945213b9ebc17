// Package alert routes scored fire events to matching subscriptions and
// dispatches rendered messages through the channel senders.
//
// All rate-limit and escalation decisions derive from the append-only
// AlertRecord history; there are no counters to drift or to lose on a crash
// mid-cycle.
package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/patagonialabs/firesentinel/internal/config"
	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/store"
)

// Sender delivers one rendered message to one address on a channel.
// Implementations live in the channel subpackages.
type Sender interface {
	Send(ctx context.Context, address, message string) error
}

// Dispatcher matches events to subscriptions and sends alerts. A channel
// with no configured sender degrades gracefully: the attempt is recorded as
// failed rather than dropped.
type Dispatcher struct {
	store   store.Store
	senders map[domain.AlertChannel]Sender
	params  config.AlertParams
	zones   map[string]config.Zone
	logger  *slog.Logger
}

// Outcome summarizes one dispatch pass for the cycle record.
type Outcome struct {
	Sent       int
	Suppressed int
	Failed     int
}

// New builds a Dispatcher. senders may omit channels that are not
// configured for this deployment.
func New(st store.Store, senders map[domain.AlertChannel]Sender, params config.AlertParams, zones map[string]config.Zone, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   st,
		senders: senders,
		params:  params,
		zones:   zones,
		logger:  logger,
	}
}

// Dispatch processes a batch of events against all active subscriptions.
// Store failures on the subscription lookup abort the pass; per-pair
// failures are absorbed into the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.FireEvent) (Outcome, error) {
	var out Outcome
	if len(events) == 0 {
		return out, nil
	}

	subs, err := d.store.ActiveSubscriptions(ctx)
	if err != nil {
		return out, fmt.Errorf("loading subscriptions: %w", err)
	}

	for i := range events {
		ev := &events[i]
		for _, sub := range subs {
			if !d.matches(ev, sub) {
				continue
			}
			d.dispatchPair(ctx, ev, sub, &out)
		}
	}
	return out, nil
}

// matches applies the zone and minimum-severity filters.
func (d *Dispatcher) matches(ev *domain.FireEvent, sub domain.Subscription) bool {
	if ev.Severity.Rank() < sub.MinSeverity.Rank() {
		return false
	}

	var center domain.Geo
	var radiusKm float64
	if sub.Zone == "custom" {
		if sub.CustomKm <= 0 {
			return false
		}
		center = domain.Geo{Lat: sub.CustomLat, Lon: sub.CustomLon}
		radiusKm = sub.CustomKm
	} else {
		zone, ok := d.zones[sub.Zone]
		if !ok {
			d.logger.Warn("subscription references unknown zone", "subscription_id", sub.ID, "zone", sub.Zone)
			return false
		}
		center = domain.Geo{Lat: zone.Lat, Lon: zone.Lon}
		radiusKm = zone.RadiusKm
	}
	return domain.Haversine(ev.Centroid, center) <= radiusKm*1000
}

// dispatchPair runs the per-(event, subscription) state machine:
//
//   - no prior record: send a normal alert
//   - prior records: send only on escalation (severity increase or intent
//     label upgrade since the last record) and while under the rolling
//     window limit
//   - otherwise: suppress, writing nothing
func (d *Dispatcher) dispatchPair(ctx context.Context, ev *domain.FireEvent, sub domain.Subscription, out *Outcome) {
	prev, hasPrev, err := d.store.LastAlertRecord(ctx, ev.ID, sub.ID)
	if err != nil {
		d.logger.Error("alert history lookup failed", "event_id", ev.ID, "subscription_id", sub.ID, "error", err)
		out.Failed++
		return
	}

	escalation := false
	if hasPrev {
		escalation = d.escalated(ev, prev)
		if !escalation {
			out.Suppressed++
			return
		}

		now := domain.Now()
		window, err := d.store.AlertRecordsFor(ctx, ev.ID, sub.ID, now.Add(-d.params.Window.Std()))
		if err != nil {
			d.logger.Error("alert window lookup failed", "event_id", ev.ID, "subscription_id", sub.ID, "error", err)
			out.Failed++
			return
		}
		if len(window) >= d.params.MaxPerEventPerSubscriber {
			d.logger.Info("alert rate limit reached",
				"event_id", ev.ID, "subscription_id", sub.ID, "window_records", len(window))
			out.Suppressed++
			return
		}
	}

	message := d.render(ev, sub, prev, escalation)

	var sendErr error
	if sender, ok := d.senders[sub.Channel]; ok {
		sendErr = sender.Send(ctx, sub.Address, message)
	} else {
		sendErr = fmt.Errorf("no sender configured for channel %s", sub.Channel)
	}

	rec := &domain.AlertRecord{
		ID:             uuid.NewString(),
		FireEventID:    ev.ID,
		SubscriptionID: sub.ID,
		Channel:        sub.Channel,
		Message:        message,
		SentAt:         domain.Now(),
		Delivered:      sendErr == nil,
		IsEscalation:   escalation,
		EventSeverity:  ev.Severity,
	}
	if ev.Intent != nil {
		rec.IntentLabel = ev.Intent.Label
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
		d.logger.Warn("alert delivery failed",
			"event_id", ev.ID, "subscription_id", sub.ID, "channel", sub.Channel, "error", sendErr)
		out.Failed++
	} else {
		out.Sent++
	}

	// A failed delivery still counts toward the rate limit: it was
	// attempted, and the record is the ledger.
	if err := d.store.AppendAlertRecord(ctx, rec); err != nil {
		d.logger.Error("failed to persist alert record", "event_id", ev.ID, "subscription_id", sub.ID, "error", err)
	}
}

// escalated reports whether the event has worsened since the last record's
// snapshots.
func (d *Dispatcher) escalated(ev *domain.FireEvent, prev *domain.AlertRecord) bool {
	if ev.Severity.Rank() > prev.EventSeverity.Rank() {
		return true
	}
	if ev.Intent != nil && ev.Intent.Label.Rank() > prev.IntentLabel.Rank() && prev.IntentLabel != "" {
		return true
	}
	return false
}

func (d *Dispatcher) render(ev *domain.FireEvent, sub domain.Subscription, prev *domain.AlertRecord, escalation bool) string {
	if escalation {
		return FormatEscalation(ev, prev)
	}
	if sub.Channel == domain.ChannelWhatsApp {
		return FormatWhatsApp(ev)
	}
	return FormatTelegram(ev)
}
