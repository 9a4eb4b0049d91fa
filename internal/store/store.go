package store

import (
	"context"
	"errors"
	"time"

	"fleetwatch/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Events
	UpsertEvents(ctx context.Context, trailerID string, evs []model.Event) (accepted int, err error)
	ReplaceTrailerEvents(ctx context.Context, trailerID string, evs []model.Event) error
	ListEvents(ctx context.Context, trailerID string, from, to time.Time, limit int) ([]model.Event, error)
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	SetInteractions(ctx context.Context, eventID string, interactions []model.Interaction) (model.Event, error)
	ListTrailerIDs(ctx context.Context) ([]string, error)

	// Webhook subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var ErrNotFound = errors.New("not found")
