package api

import (
	"strings"

	"fleetwatch/internal/auth"
	"fleetwatch/internal/config"
	"fleetwatch/internal/feed"
	"fleetwatch/internal/model"
	"fleetwatch/internal/store"
	"fleetwatch/internal/upstream"
	"fleetwatch/internal/webhooks"
)

type Server struct {
	Cfg       config.Config
	Store     store.Store
	Feed      *feed.Table
	Broker    EventBroker
	Pub       *webhooks.Publisher
	Auth      *auth.Verifier
	Poller    *upstream.Poller
	Positions *PositionCache
}

// NewServer wires the service. No DATABASE_URL means in-memory store,
// no REDIS_URL means in-process broker, no upstream URL means the
// poller is off and events arrive via ingest only.
func NewServer(cfg config.Config) (*Server, error) {
	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = sp
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		broker = rb
	} else {
		broker = NewBroker()
	}

	s := &Server{
		Cfg:       cfg,
		Store:     st,
		Feed:      feed.NewTable(),
		Broker:    broker,
		Pub:       webhooks.NewPublisher(st),
		Auth:      auth.NewVerifierFromEnv(),
		Positions: NewPositionCache(),
	}

	if cfg.UpstreamBaseURL != "" {
		s.Poller = upstream.NewPoller(st, s.Feed, cfg.UpstreamBaseURL, cfg.PollInterval, cfg.PageSize, cfg.RefetchPerSecond, cfg.RefetchBurst)
		s.Poller.OnCommit = s.afterCommit
	}
	return s, nil
}

// afterCommit fans a fresh snapshot out to stream consumers and the
// webhook queue.
func (s *Server) afterCommit(trailerID string, evs []model.Event) {
	for _, ev := range evs {
		if ev.Location != nil {
			s.Positions.Observe(ev)
		}
	}
	s.Broker.Publish(trailerID, SSEEvent{Type: "feed.updated", Data: map[string]any{
		"trailerId": trailerID,
		"count":     len(evs),
	}})
}

// NewWebhookWorker creates the background delivery worker.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Cfg.WebhookMaxAttempts)
}
