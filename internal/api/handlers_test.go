package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleetwatch/internal/config"
	"fleetwatch/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Config{Port: "0", PageSize: 20, PollInterval: time.Minute})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func ingestBody(raws ...string) []byte {
	return []byte(`{"data":[` + strings.Join(raws, ",") + `]}`)
}

func rawEvent(id, kind string, ts time.Time) string {
	return fmt.Sprintf(`{"id":%q,"trailer":{"id":"tr-1"},"kind":%q,"triggered_at":%q,"route_log":{"latitude":52.1,"longitude":21.0}}`,
		id, kind, ts.Format(time.RFC3339))
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestIngestAndList(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC().Truncate(time.Second)

	// engine off cancelled by engine on a minute later; the alarm stays
	body := ingestBody(
		rawEvent("e1", "engine_off", now.Add(-10*time.Minute)),
		rawEvent("e2", "engine_on", now.Add(-9*time.Minute)),
		rawEvent("e3", "alarm", now.Add(-5*time.Minute)),
	)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/trailers/tr-1/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.TrailerByIDHandler(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: got %d: %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/events", nil))
	if rr.Code != 200 {
		t.Fatalf("list: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data []model.Event `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "e3" {
		t.Fatalf("want only the alarm to survive the pipeline, got %+v", resp.Data)
	}
}

func TestListRespectsKindFilter(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	body := ingestBody(
		rawEvent("e1", "alarm", now.Add(-2*time.Hour)),
		rawEvent("e2", "armed", now.Add(-time.Hour)),
	)
	rr := httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/trailers/tr-1/events", bytes.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/events?filter[kinds]=armed", nil))
	var resp struct {
		Data []model.Event `json:"data"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 || resp.Data[0].ID != "e2" {
		t.Fatalf("kind filter not applied: %+v", resp.Data)
	}

	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/events?filter[kinds]=nonsense", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind should 400, got %d", rr.Code)
	}
}

func TestClusters(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	body := ingestBody(
		rawEvent("e1", "alarm", now.Add(-2*time.Hour)),
		rawEvent("e2", "armed", now.Add(-time.Hour)),
	)
	rr := httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/trailers/tr-1/events", bytes.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d", rr.Code)
	}

	// both events share a position; zoomed out they form one cluster
	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/clusters?zoom=5", nil))
	if rr.Code != 200 {
		t.Fatalf("clusters: got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data []model.EventCluster `json:"data"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 {
		t.Fatalf("want one cluster, got %d", len(resp.Data))
	}
	if len(resp.Data[0].Tail) != 1 {
		t.Fatalf("second event should join the first cluster: %+v", resp.Data[0])
	}

	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/clusters?zoom=-1", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative zoom should 400, got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/clusters", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing zoom should 400, got %d", rr.Code)
	}
}

func TestInteractionsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC().Truncate(time.Second)
	rr := httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/trailers/tr-1/events",
		bytes.NewReader(ingestBody(rawEvent("e1", "alarm", now.Add(-time.Hour))))))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d", rr.Code)
	}

	// two silenced records; the earlier one wins
	body := fmt.Sprintf(`{"data":[
		{"kind":"alarm_silenced","triggered_at":%q,"logistician":{"id":"u1","email":"op@example.com"}},
		{"kind":"alarm_silenced","triggered_at":%q}
	]}`, now.Add(-30*time.Minute).Format(time.RFC3339), now.Add(-10*time.Minute).Format(time.RFC3339))
	rr = httptest.NewRecorder()
	s.EventByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/events/e1/interactions", strings.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("interactions: got %d: %s", rr.Code, rr.Body.String())
	}
	var ev model.Event
	_ = json.Unmarshal(rr.Body.Bytes(), &ev)
	if len(ev.Interactions) != 1 {
		t.Fatalf("want deduped single interaction, got %+v", ev.Interactions)
	}
	if ev.Interactions[0].Logistician == nil || ev.Interactions[0].Logistician.ID != "u1" {
		t.Fatalf("earliest interaction should win: %+v", ev.Interactions[0])
	}

	// non-operator is rejected
	req := httptest.NewRequest(http.MethodPost, "/v1/events/e1/interactions", strings.NewReader(body))
	req.Header.Set("X-Role", "viewer")
	rr = httptest.NewRecorder()
	s.EventByIDHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer should be forbidden, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.EventByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/events/missing/interactions", strings.NewReader(body)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing event should 404, got %d", rr.Code)
	}
}

func TestPushWithoutUpstream(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.PushHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/push", strings.NewReader(`{"trailer_id":"tr-1"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("push without upstream should 503, got %d", rr.Code)
	}
}

func TestSubscriptionsCRUD(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions",
		strings.NewReader(`{"url":"https://hooks.example.com/x","events":["trailer.alarm"],"secret":"s"}`)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %d: %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &sub)
	if sub.ID == "" {
		t.Fatal("created subscription has no id")
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions",
		strings.NewReader(`{"url":"ftp://nope","events":["trailer.alarm"]}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad url should 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/subscriptions", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SubscriptionByIDHandler(rr, httptest.NewRequest(http.MethodDelete, "/v1/subscriptions/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete should 404, got %d", rr.Code)
	}
}

func TestPositionTracksLatestLocatedEvent(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	rr := httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/trailers/tr-1/events",
		bytes.NewReader(ingestBody(rawEvent("e1", "alarm", now.Add(-time.Hour))))))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/position", nil))
	if rr.Code != 200 {
		t.Fatalf("position: got %d", rr.Code)
	}
	var p LatestPosition
	_ = json.Unmarshal(rr.Body.Bytes(), &p)
	if p.Lat != 52.1 || p.Lng != 21.0 {
		t.Fatalf("wrong position: %+v", p)
	}

	rr = httptest.NewRecorder()
	s.TrailerByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-unknown/position", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown trailer position should 404, got %d", rr.Code)
	}
}

func TestStreamSendsInitialHeartbeat(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // loop exits right after the initial heartbeat
	req := httptest.NewRequest(http.MethodGet, "/v1/trailers/tr-1/stream", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	s.TrailerByIDHandler(rr, req)
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("wrong content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "event: heartbeat") {
		t.Fatalf("no heartbeat in stream: %q", rr.Body.String())
	}
}
