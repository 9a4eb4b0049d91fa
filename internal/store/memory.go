package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleetwatch/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	events    map[string]model.Event // event id -> event
	byTrailer map[string][]string    // trailer id -> event ids
	subs      []model.Subscription
	// Webhooks queue state
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		events:     map[string]model.Event{},
		byTrailer:  map[string][]string{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) UpsertEvents(ctx context.Context, trailerID string, evs []model.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	accepted := 0
	for _, ev := range evs {
		if ev.TrailerID == "" {
			ev.TrailerID = trailerID
		}
		if ev.ID == "" || ev.TrailerID == "" {
			continue
		}
		if _, exists := m.events[ev.ID]; !exists {
			m.byTrailer[ev.TrailerID] = append(m.byTrailer[ev.TrailerID], ev.ID)
		}
		m.events[ev.ID] = ev
		accepted++
	}
	return accepted, nil
}

func (m *Memory) ReplaceTrailerEvents(ctx context.Context, trailerID string, evs []model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byTrailer[trailerID] {
		delete(m.events, id)
	}
	m.byTrailer[trailerID] = nil
	for _, ev := range evs {
		if ev.ID == "" {
			continue
		}
		m.events[ev.ID] = ev
		m.byTrailer[trailerID] = append(m.byTrailer[trailerID], ev.ID)
	}
	return nil
}

// ListEvents returns a trailer's events ascending by time. Zero from/to
// leave that side of the range open; limit <= 0 means no limit.
func (m *Memory) ListEvents(ctx context.Context, trailerID string, from, to time.Time, limit int) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Event{}
	for _, id := range m.byTrailer[trailerID] {
		ev := m.events[id]
		if !from.IsZero() && ev.Time.Before(from) {
			continue
		}
		if !to.IsZero() && ev.Time.After(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:] // keep the most recent ones
	}
	return out, nil
}

func (m *Memory) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return ev, nil
}

func (m *Memory) SetInteractions(ctx context.Context, eventID string, interactions []model.Interaction) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	ev.Interactions = interactions
	m.events[eventID] = ev
	return ev, nil
}

func (m *Memory) ListTrailerIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byTrailer))
	for id := range m.byTrailer {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs = append(m.subs, s)
	return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Subscription, len(m.subs))
	copy(out, m.subs)
	return out, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, s := range m.subs {
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s.ID == id {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:             id,
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        payload,
			Status:         "pending",
		},
		NextAttemptAt: time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d == nil || d.Status != "pending" || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}
