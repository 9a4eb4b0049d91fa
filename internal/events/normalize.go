// Package events implements the classification, deduplication, and
// temporal-filtering pipeline that turns raw device status transitions
// into the curated list and map clusters shown to an operator.
package events

import (
	"fmt"
	"log"
	"sort"
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

// Normalize converts one raw wire record into a canonical Event.
// Required fields are id, a trailer reference, a status kind, and a
// parseable timestamp; anything else degrades to a default. trailerID
// is the owning trailer and is used when the record carries no ref.
func Normalize(raw model.RawEvent, trailerID string) (model.Event, error) {
	if raw.ID == "" {
		return model.Event{}, fmt.Errorf("event without id")
	}
	tid := raw.Trailer.ID
	if tid == "" {
		tid = trailerID
	}
	if tid == "" {
		return model.Event{}, fmt.Errorf("event %s without trailer reference", raw.ID)
	}
	if raw.Kind == nil {
		return model.Event{}, fmt.Errorf("event %s without kind", raw.ID)
	}
	ts, err := parseInstant(raw.TriggeredAt)
	if err != nil {
		return model.Event{}, fmt.Errorf("event %s: %w", raw.ID, err)
	}

	ev := model.Event{
		ID:           raw.ID,
		TrailerID:    tid,
		State:        state.FromWire(raw.Kind),
		Time:         ts,
		Logistician:  raw.Logistician,
		Interactions: NormalizeInteractions(raw.Interactions),
	}
	if raw.RouteLog != nil {
		loc := model.Location{
			Name:   raw.RouteLog.LocationName,
			Speed:  raw.RouteLog.Speed,
			Signal: raw.RouteLog.Signal,
		}
		if raw.RouteLog.Latitude != nil {
			loc.Lat = *raw.RouteLog.Latitude
		}
		if raw.RouteLog.Longitude != nil {
			loc.Lng = *raw.RouteLog.Longitude
		}
		ev.Location = &loc
	}
	return ev, nil
}

// NormalizeInteractions maps raw interaction records, sorts them
// ascending by time, and keeps only the first occurrence of each
// state: the earliest acknowledgement of a kind is the one that
// counts, later repeats are dropped. Unparseable records are skipped.
func NormalizeInteractions(raw []model.RawInteraction) []model.Interaction {
	out := make([]model.Interaction, 0, len(raw))
	for _, ri := range raw {
		ts, err := parseInstant(ri.TriggeredAt)
		if err != nil {
			continue
		}
		out = append(out, model.Interaction{
			State:       state.FromWire(ri.Kind),
			Logistician: ri.Logistician,
			Time:        ts,
		})
	}
	return dedupEarliest(out)
}

// MergeInteractions combines two interaction sets under the same rule:
// ascending by time, earliest record per state wins.
func MergeInteractions(a, b []model.Interaction) []model.Interaction {
	all := make([]model.Interaction, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return dedupEarliest(all)
}

func dedupEarliest(in []model.Interaction) []model.Interaction {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Time.Before(in[j].Time) })
	seen := map[state.TrailerState]bool{}
	out := in[:0]
	for _, it := range in {
		if seen[it.State] {
			continue
		}
		seen[it.State] = true
		out = append(out, it)
	}
	return out
}

// NormalizeBatch folds Normalize over a fetch response. A malformed
// record is logged and skipped; one bad record must not blank the whole
// event list. The result is sorted ascending by timestamp, since the
// backend does not guarantee order.
func NormalizeBatch(raws []model.RawEvent, trailerID string) []model.Event {
	out := make([]model.Event, 0, len(raws))
	for _, raw := range raws {
		ev, err := Normalize(raw, trailerID)
		if err != nil {
			log.Printf("events: dropping record: %v", err)
			continue
		}
		out = append(out, ev)
	}
	SortOldestFirst(out)
	return out
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing timestamp")
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return ts, nil
}
