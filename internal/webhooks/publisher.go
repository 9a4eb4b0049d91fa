package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
	"fleetwatch/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// EventType is the webhook topic for a trailer event, derived from its
// wire token, e.g. "trailer.alarm".
func EventType(ev model.Event) string {
	return "trailer." + ev.State.WireToken()
}

// EmitEvent enqueues the event for every matching subscription.
// Best-effort; a failed enqueue is dropped rather than blocking ingest.
func (p *Publisher) EmitEvent(ctx context.Context, ev model.Event) {
	eventType := EventType(ev)
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, eventType)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":        ev.ID,
		"type":      eventType,
		"trailerId": ev.TrailerID,
		"ts":        time.Now().UTC().Format(time.RFC3339),
		"data":      ev,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, eventType, s.URL, s.Secret, body)
	}
}

// EmitAlarms fans out only the alarm-category events of a batch. Full
// snapshots pass through here after a refetch; operators subscribe to
// alarms, not to routine engine/network chatter.
func (p *Publisher) EmitAlarms(ctx context.Context, evs []model.Event) {
	for _, ev := range evs {
		if ev.State.MarkerCategory() == state.CategoryAlarm {
			p.EmitEvent(ctx, ev)
		}
	}
}
