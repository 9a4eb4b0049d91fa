package events

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

// Filters holds per-state visibility flags. Keyed by TrailerState
// rather than category because that is what the backend filter API
// accepts. Absent keys mean hidden.
type Filters map[state.TrailerState]bool

// DefaultFilters is the visibility set a fresh events view starts
// with: everything on except the uninformative ok/unknown transitions
// and gps_lost.
func DefaultFilters() Filters {
	f := Filters{}
	for _, s := range state.All() {
		f[s] = true
	}
	f[state.Ok] = false
	f[state.Unknown] = false
	f[state.GpsSignalLost] = false
	return f
}

// DefaultWindow is the date range a fresh events view starts with:
// the last three days, inclusive.
func DefaultWindow(now time.Time) (minDate, maxDate time.Time) {
	return now.AddDate(0, 0, -3), now
}

// Visible applies the per-state flags and the day-granularity date
// window. minDate is widened to start of day and maxDate to end of
// day, both inclusive. Pure and order-preserving: running it on its
// own output is a no-op.
func Visible(evs []model.Event, f Filters, minDate, maxDate time.Time) []model.Event {
	lo := startOfDay(minDate)
	hi := endOfDay(maxDate)
	out := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if !f[ev.State] {
			continue
		}
		if ev.Time.Before(lo) || ev.Time.After(hi) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Located narrows to events carrying a position, the subset the map
// consumer can use.
func Located(evs []model.Event) []model.Event {
	out := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.Location != nil {
			out = append(out, ev)
		}
	}
	return out
}

// ByCategory narrows to events of one category, used for per-layer
// map markers.
func ByCategory(evs []model.Event, c state.Category) []model.Event {
	out := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.State.Category() == c {
			out = append(out, ev)
		}
	}
	return out
}

// SortNewestFirst orders for list display, most recent on top.
func SortNewestFirst(evs []model.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[j].Time.Before(evs[i].Time) })
}

// SortOldestFirst orders chronologically, the order the cancellation
// filter and the clusterer require.
func SortOldestFirst(evs []model.Event) {
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time.Before(evs[j].Time) })
}

// QueryParams builds the upstream fetch query for a filter set: only
// true-valued kinds are sent, as comma-joined wire tokens in stable
// order.
func QueryParams(f Filters, minDate, maxDate time.Time, pageSize int) url.Values {
	kinds := make([]string, 0, len(f))
	for s, on := range f {
		if on {
			kinds = append(kinds, s.WireToken())
		}
	}
	sort.Strings(kinds)
	v := url.Values{}
	v.Set("filter[date_from]", startOfDay(minDate).UTC().Format(time.RFC3339))
	v.Set("filter[date_to]", endOfDay(maxDate).UTC().Format(time.RFC3339))
	v.Set("filter[kinds]", strings.Join(kinds, ","))
	if pageSize > 0 {
		v.Set("page[size]", strconv.Itoa(pageSize))
	}
	return v
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
