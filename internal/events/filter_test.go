package events

import (
	"reflect"
	"testing"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

func TestVisibleAppliesFlagsAndWindow(t *testing.T) {
	min := at(t, "2020-11-09T10:00:00Z")
	max := at(t, "2020-11-10T10:00:00Z")
	f := DefaultFilters()
	f[state.Armed] = false

	evs := []model.Event{
		ev("hidden-by-flag", state.Armed, at(t, "2020-11-09T12:00:00Z")),
		ev("kept", state.Alarm, at(t, "2020-11-09T12:00:00Z")),
		ev("start-of-day", state.Alarm, at(t, "2020-11-09T00:00:00Z")),
		ev("end-of-day", state.Alarm, at(t, "2020-11-10T23:59:59Z")),
		ev("too-early", state.Alarm, at(t, "2020-11-08T23:59:59Z")),
		ev("too-late", state.Alarm, at(t, "2020-11-11T00:00:00Z")),
		ev("unknown-hidden", state.Unknown, at(t, "2020-11-09T12:00:00Z")),
	}
	got := Visible(evs, f, min, max)
	want := []string{"kept", "start-of-day", "end-of-day"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %+v", len(want), len(got), got)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("at %d: got %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestVisibleIsIdempotent(t *testing.T) {
	min := at(t, "2020-11-09T00:00:00Z")
	max := at(t, "2020-11-10T00:00:00Z")
	f := DefaultFilters()
	evs := []model.Event{
		ev("1", state.Alarm, at(t, "2020-11-09T12:00:00Z")),
		ev("2", state.Ok, at(t, "2020-11-09T12:00:00Z")),
		ev("3", state.DoorOpened, at(t, "2020-11-09T13:00:00Z")),
	}
	once := Visible(evs, f, min, max)
	twice := Visible(once, f, min, max)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("filter not idempotent: %+v vs %+v", once, twice)
	}
}

func TestDefaultFiltersHideNoise(t *testing.T) {
	f := DefaultFilters()
	if f[state.Ok] || f[state.Unknown] || f[state.GpsSignalLost] {
		t.Fatalf("ok/unknown/gps_lost must default to hidden")
	}
	if !f[state.Alarm] || !f[state.SystemTurnedOn] {
		t.Fatalf("informative states must default to visible")
	}
}

func TestLocated(t *testing.T) {
	evs := []model.Event{
		{ID: "1", State: state.Alarm},
		{ID: "2", State: state.Alarm, Location: &model.Location{GeoPoint: model.GeoPoint{Lat: 52, Lng: 21}}},
	}
	got := Located(evs)
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestSortNewestFirst(t *testing.T) {
	evs := []model.Event{
		ev("old", state.Alarm, at(t, "2020-11-09T10:00:00Z")),
		ev("new", state.Alarm, at(t, "2020-11-10T10:00:00Z")),
		ev("mid", state.Alarm, at(t, "2020-11-09T20:00:00Z")),
	}
	SortNewestFirst(evs)
	if evs[0].ID != "new" || evs[1].ID != "mid" || evs[2].ID != "old" {
		t.Fatalf("unexpected order %v %v %v", evs[0].ID, evs[1].ID, evs[2].ID)
	}
}

func TestQueryParams(t *testing.T) {
	f := Filters{state.Alarm: true, state.Armed: true, state.Ok: false}
	min := at(t, "2020-11-09T15:04:05Z")
	max := at(t, "2020-11-10T15:04:05Z")
	v := QueryParams(f, min, max, 20)
	if got := v.Get("filter[kinds]"); got != "alarm,armed" {
		t.Fatalf("kinds: %q", got)
	}
	if got := v.Get("filter[date_from]"); got != "2020-11-09T00:00:00Z" {
		t.Fatalf("date_from: %q", got)
	}
	if got := v.Get("page[size]"); got != "20" {
		t.Fatalf("page size: %q", got)
	}
}
