package events

import (
	"testing"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

func f64(v float64) *float64 { return &v }

func TestNormalizeFullRecord(t *testing.T) {
	raw := model.RawEvent{
		ID:          "ev_1",
		Trailer:     model.RawTrailerRef{ID: "tr_9"},
		Kind:        "alarm",
		TriggeredAt: "2020-11-10T14:02:57.000Z",
		RouteLog: &model.RawRouteLog{
			Latitude:     f64(52.1),
			Longitude:    f64(21.2),
			LocationName: "Warszawa",
			Speed:        42,
			Signal:       3,
		},
	}
	got, err := Normalize(raw, "")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.State != state.Alarm || got.TrailerID != "tr_9" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.Location == nil || got.Location.Lat != 52.1 || got.Location.Name != "Warszawa" {
		t.Fatalf("unexpected location %+v", got.Location)
	}
}

func TestNormalizeNullCoordinatesDefaultToZero(t *testing.T) {
	raw := model.RawEvent{
		ID:          "ev_1",
		Trailer:     model.RawTrailerRef{ID: "tr_1"},
		Kind:        "warning",
		TriggeredAt: "2020-11-10T14:02:57Z",
		RouteLog:    &model.RawRouteLog{Latitude: nil, Longitude: f64(21)},
	}
	got, err := Normalize(raw, "")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Location == nil || got.Location.Lat != 0 || got.Location.Lng != 21 {
		t.Fatalf("unexpected location %+v", got.Location)
	}
}

func TestNormalizeMissingRouteLogMeansNoLocation(t *testing.T) {
	raw := model.RawEvent{
		ID:          "ev_1",
		Trailer:     model.RawTrailerRef{ID: "tr_1"},
		Kind:        17, // legacy numeric engine_off
		TriggeredAt: "2020-11-10T14:02:57Z",
	}
	got, err := Normalize(raw, "")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Location != nil {
		t.Fatalf("expected no location, got %+v", got.Location)
	}
	if got.State != state.TruckEngineOff {
		t.Fatalf("legacy code: got %v", got.State)
	}
}

func TestNormalizeInteractionsDedupKeepsEarliest(t *testing.T) {
	raws := []model.RawInteraction{
		{Kind: "alarm_resolved", TriggeredAt: "2020-11-10T14:00:10Z"},
		{Kind: "alarm_resolved", TriggeredAt: "2020-11-10T14:00:05Z"},
		{Kind: "alarm_off", TriggeredAt: "2020-11-10T14:00:07Z"},
	}
	got := NormalizeInteractions(raws)
	if len(got) != 2 {
		t.Fatalf("expected 2 interactions, got %d", len(got))
	}
	if got[0].State != state.Resolved || got[0].Time.Second() != 5 {
		t.Fatalf("expected earliest resolved first, got %+v", got[0])
	}
	if got[1].State != state.AlarmOff {
		t.Fatalf("expected alarm_off second, got %+v", got[1])
	}
}

func TestNormalizeBatchSkipsBadRecordsAndSorts(t *testing.T) {
	raws := []model.RawEvent{
		{ID: "b", Trailer: model.RawTrailerRef{ID: "tr"}, Kind: "armed", TriggeredAt: "2020-11-10T15:00:00Z"},
		{ID: "", Kind: "alarm", TriggeredAt: "2020-11-10T14:00:00Z"},
		{ID: "bad_ts", Trailer: model.RawTrailerRef{ID: "tr"}, Kind: "alarm", TriggeredAt: "yesterday"},
		{ID: "a", Trailer: model.RawTrailerRef{ID: "tr"}, Kind: "disarmed", TriggeredAt: "2020-11-10T14:30:00Z"},
	}
	got := NormalizeBatch(raws, "tr")
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("expected ascending order, got %v then %v", got[0].ID, got[1].ID)
	}
}

func TestNormalizeUnknownKindIsNotAnError(t *testing.T) {
	raw := model.RawEvent{
		ID:          "ev_1",
		Trailer:     model.RawTrailerRef{ID: "tr_1"},
		Kind:        "totally_bogus_code",
		TriggeredAt: "2020-11-10T14:02:57Z",
	}
	got, err := Normalize(raw, "")
	if err != nil {
		t.Fatalf("unknown kind must not fail the record: %v", err)
	}
	if got.State != state.Unknown {
		t.Fatalf("got %v", got.State)
	}
}
