package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleetwatch/internal/events"
	"fleetwatch/internal/metrics"
	"fleetwatch/internal/model"
	"fleetwatch/internal/store"
)

// TrailersIndexHandler handles GET /v1/trailers.
func (s *Server) TrailersIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/trailers" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ids, err := s.Store.ListTrailerIDs(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List trailers failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": ids})
}

// TrailerByIDHandler routes /v1/trailers/{id}/(events|clusters|stream|position).
func (s *Server) TrailerByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/trailers/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" || len(parts) < 2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing resource", r.URL.Path)
		return
	}
	switch parts[1] {
	case "events":
		if len(parts) > 2 && parts[2] == "stream" {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.streamEvents(w, r, id)
			return
		}
		switch r.Method {
		case http.MethodPost:
			s.ingestEvents(w, r, id)
		case http.MethodGet:
			s.listEvents(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "clusters":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.listClusters(w, r, id)
	case "stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.streamEvents(w, r, id)
	case "position":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := s.Positions.Get(id)
		if !ok {
			writeProblem(w, http.StatusNotFound, "No position", "no located event seen for trailer", r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

// ingestEvents handles POST /v1/trailers/{id}/events: a batch of raw
// records pushed directly into the service.
func (s *Server) ingestEvents(w http.ResponseWriter, r *http.Request, trailerID string) {
	var body struct {
		Data []model.RawEvent `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	evs := events.NormalizeBatch(body.Data, trailerID)
	for _, ev := range evs {
		metrics.EventsIngested.WithLabelValues(ev.State.Category().String()).Inc()
	}
	if dropped := len(body.Data) - len(evs); dropped > 0 {
		metrics.EventsDropped.Add(float64(dropped))
	}
	accepted, err := s.Store.UpsertEvents(r.Context(), trailerID, evs)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Ingest failed", err.Error(), r.URL.Path)
		return
	}
	// rebuild the snapshot from the store so the feed reflects the
	// union of pushed and previously known events
	all, err := s.Store.ListEvents(r.Context(), trailerID, time.Time{}, time.Time{}, 0)
	if err == nil {
		s.Feed.Replace(trailerID, all)
	}
	for _, ev := range evs {
		s.Positions.Observe(ev)
		s.Broker.Publish(trailerID, SSEEvent{Type: "event." + ev.State.WireToken(), Data: map[string]any{
			"id":        ev.ID,
			"trailerId": ev.TrailerID,
			"ts":        ev.Time.Format(time.RFC3339),
		}})
	}
	s.Pub.EmitAlarms(r.Context(), evs)
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted, "dropped": len(body.Data) - len(evs)})
}

// listEvents handles GET /v1/trailers/{id}/events: the curated list
// after the cancellation, kind, and date passes, newest first.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request, trailerID string) {
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad filter", err.Error(), r.URL.Path)
		return
	}
	minDate, maxDate, err := parseWindow(r.URL.Query(), time.Now())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad date window", err.Error(), r.URL.Path)
		return
	}
	if err := s.hydrate(r, trailerID); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load events failed", err.Error(), r.URL.Path)
		return
	}
	view := s.Feed.Recompute(trailerID, f, minDate, maxDate)
	list := view.List
	if v := r.URL.Query().Get("page[size]"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(list) {
			list = list[:n]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// listClusters handles GET /v1/trailers/{id}/clusters?zoom=Z: located
// events grouped by screen proximity at the given zoom.
func (s *Server) listClusters(w http.ResponseWriter, r *http.Request, trailerID string) {
	zoom, err := parseZoom(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad zoom", err.Error(), r.URL.Path)
		return
	}
	f, err := parseFilters(r.URL.Query())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad filter", err.Error(), r.URL.Path)
		return
	}
	minDate, maxDate, err := parseWindow(r.URL.Query(), time.Now())
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad date window", err.Error(), r.URL.Path)
		return
	}
	if err := s.hydrate(r, trailerID); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load events failed", err.Error(), r.URL.Path)
		return
	}
	view := s.Feed.Recompute(trailerID, f, minDate, maxDate)
	clusters, err := events.Clusterize(view.Located, zoom)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad zoom", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": clusters, "located": view.Located, "zoom": zoom})
}

// hydrate loads the trailer's events from the store into the feed
// table when the snapshot slot is empty (e.g. after a restart).
func (s *Server) hydrate(r *http.Request, trailerID string) error {
	if s.Feed.Snapshot(trailerID) != nil {
		return nil
	}
	all, err := s.Store.ListEvents(r.Context(), trailerID, time.Time{}, time.Time{}, 0)
	if err != nil {
		return err
	}
	if len(all) > 0 {
		s.Feed.Replace(trailerID, all)
	}
	return nil
}

// streamEvents handles GET /v1/trailers/{id}/stream (SSE).
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, trailerID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(trailerID)
	defer s.Broker.Unsubscribe(trailerID, ch)
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"trailerId\":\"%s\",\"ts\":\"%s\"}\n\n", trailerID, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"trailerId\":\"%s\",\"ts\":\"%s\"}\n\n", trailerID, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// EventByIDHandler routes /v1/events/{id} and /v1/events/{id}/interactions.
func (s *Server) EventByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 && parts[1] == "interactions" {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.recordInteractions(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ev, err := s.Store.GetEvent(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Event not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get event failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// recordInteractions handles POST /v1/events/{id}/interactions: an
// operator acknowledging or escalating an alarm. The stored set is the
// normalized union of existing and new records, earliest per state.
func (s *Server) recordInteractions(w http.ResponseWriter, r *http.Request, eventID string) {
	pr := s.getPrincipal(r)
	if !isOperator(pr) {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator role required", r.URL.Path)
		return
	}
	var body struct {
		Data []model.RawInteraction `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	incoming := events.NormalizeInteractions(body.Data)
	if len(incoming) == 0 {
		writeProblem(w, http.StatusBadRequest, "No interactions", "no parseable interaction records", r.URL.Path)
		return
	}
	cur, err := s.Store.GetEvent(r.Context(), eventID)
	if err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Event not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get event failed", err.Error(), r.URL.Path)
		return
	}
	merged := events.MergeInteractions(cur.Interactions, incoming)
	ev, err := s.Store.SetInteractions(r.Context(), eventID, merged)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Record interactions failed", err.Error(), r.URL.Path)
		return
	}
	// snapshot is stale now; drop it so the next read rehydrates
	if all, err := s.Store.ListEvents(r.Context(), ev.TrailerID, time.Time{}, time.Time{}, 0); err == nil {
		s.Feed.Replace(ev.TrailerID, all)
	}
	s.Broker.Publish(ev.TrailerID, SSEEvent{Type: "event.acknowledged", Data: map[string]any{
		"id":        ev.ID,
		"trailerId": ev.TrailerID,
		"by":        pr.Subject,
	}})
	writeJSON(w, http.StatusOK, ev)
}

// PushHandler handles POST /v1/push: a push notification that a
// trailer's feed changed. No payload beyond the trailer id; the data
// comes from a refetch.
func (s *Server) PushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.Poller == nil {
		writeProblem(w, http.StatusServiceUnavailable, "No upstream", "push requires an upstream feed", r.URL.Path)
		return
	}
	var body struct {
		TrailerID string `json:"trailer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.TrailerID == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid push", "trailer_id required", r.URL.Path)
		return
	}
	if !s.Poller.TriggerRefetch(body.TrailerID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"status": "throttled"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "refetching"})
}

// PositionsHandler handles GET /v1/positions.
func (s *Server) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.Positions.List()})
}

// SubscriptionsHandler handles /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSubscriptionRequest(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		subs, err := s.Store.ListSubscriptions(r.Context())
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": subs})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if err == store.ErrNotFound {
			writeProblem(w, http.StatusNotFound, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.ListTrailerIDs(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store unavailable", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
