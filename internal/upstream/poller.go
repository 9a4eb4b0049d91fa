// Package upstream pulls raw event feeds from the backend REST API and
// keeps the per-trailer snapshots current. Push notifications do not
// carry event payloads; they only tell us a trailer changed, so every
// push turns into a refetch of that trailer's feed.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"fleetwatch/internal/events"
	"fleetwatch/internal/feed"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/model"
	"fleetwatch/internal/store"
)

type Poller struct {
	Store    store.Store
	Feed     *feed.Table
	Base     string
	HTTP     *http.Client
	Interval time.Duration
	PageSize int

	// Limiter bounds push-triggered refetches so a push storm does not
	// become a fetch storm against the backend.
	Limiter *rate.Limiter

	// OnCommit, if set, runs after a refetch lands in the feed table.
	OnCommit func(trailerID string, evs []model.Event)

	Stop chan struct{}
}

func NewPoller(s store.Store, tbl *feed.Table, base string, interval time.Duration, pageSize int, perSecond float64, burst int) *Poller {
	return &Poller{
		Store:    s,
		Feed:     tbl,
		Base:     base,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Interval: interval,
		PageSize: pageSize,
		Limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		Stop:     make(chan struct{}),
	}
}

// Start runs the periodic full sweep in the background.
func (p *Poller) Start() {
	go func() {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.Stop:
				return
			case <-ticker.C:
				p.pollOnce()
			}
		}
	}()
}

func (p *Poller) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.Interval)
	defer cancel()
	ids, err := p.Store.ListTrailerIDs(ctx)
	if err != nil {
		log.Printf("upstream: list trailers: %v", err)
		return
	}
	for _, id := range ids {
		if err := p.Refetch(ctx, id); err != nil {
			log.Printf("upstream: refetch %s: %v", id, err)
		}
	}
}

// TriggerRefetch handles a push notification for one trailer. The
// refetch runs asynchronously; returns false when the limiter sheds it.
func (p *Poller) TriggerRefetch(trailerID string) bool {
	if !p.Limiter.Allow() {
		metrics.PushRefetches.WithLabelValues("throttled").Inc()
		return false
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := p.Refetch(ctx, trailerID); err != nil {
			log.Printf("upstream: push refetch %s: %v", trailerID, err)
		}
	}()
	return true
}

// Refetch fetches the trailer's current event feed and commits it as
// the new snapshot. The sequence reserved before the fetch guards
// against a slow response overwriting a newer one.
func (p *Poller) Refetch(ctx context.Context, trailerID string) error {
	seq := p.Feed.Begin(trailerID)

	minDate, maxDate := events.DefaultWindow(time.Now())
	params := events.QueryParams(events.DefaultFilters(), minDate, maxDate, p.PageSize)
	raws, err := p.fetchPage(ctx, trailerID, params)
	if err != nil {
		metrics.PushRefetches.WithLabelValues("error").Inc()
		return err
	}

	evs := events.NormalizeBatch(raws, trailerID)
	for _, ev := range evs {
		metrics.EventsIngested.WithLabelValues(ev.State.Category().String()).Inc()
	}
	if dropped := len(raws) - len(evs); dropped > 0 {
		metrics.EventsDropped.Add(float64(dropped))
	}

	if err := p.Store.ReplaceTrailerEvents(ctx, trailerID, evs); err != nil {
		metrics.PushRefetches.WithLabelValues("error").Inc()
		return err
	}
	if !p.Feed.Commit(trailerID, seq, evs) {
		metrics.PushRefetches.WithLabelValues("stale").Inc()
		return nil
	}
	metrics.PushRefetches.WithLabelValues("ok").Inc()
	if p.OnCommit != nil {
		p.OnCommit(trailerID, evs)
	}
	return nil
}

func (p *Poller) fetchPage(ctx context.Context, trailerID string, params url.Values) ([]model.RawEvent, error) {
	u := fmt.Sprintf("%s/trailers/%s/events?%s", p.Base, url.PathEscape(trailerID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	var body struct {
		Data []model.RawEvent `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
