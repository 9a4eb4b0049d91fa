package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleetwatch/internal/events"
	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

// parseFilters reads filter[kinds] as comma-joined wire tokens. Absent
// means the default visibility set.
func parseFilters(q url.Values) (events.Filters, error) {
	raw := q.Get("filter[kinds]")
	if raw == "" {
		return events.DefaultFilters(), nil
	}
	f := events.Filters{}
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		st := state.FromWire(tok)
		if st == state.Unknown && tok != "ok" {
			return nil, fmt.Errorf("unknown kind %q", tok)
		}
		f[st] = true
	}
	if len(f) == 0 {
		return nil, fmt.Errorf("filter[kinds] selects nothing")
	}
	return f, nil
}

// parseWindow reads filter[date_from]/filter[date_to], accepting
// RFC3339 or bare dates. Absent means the default last-three-days
// window.
func parseWindow(q url.Values, now time.Time) (minDate, maxDate time.Time, err error) {
	minDate, maxDate = events.DefaultWindow(now)
	if v := q.Get("filter[date_from]"); v != "" {
		minDate, err = parseDate(v)
		if err != nil {
			return
		}
	}
	if v := q.Get("filter[date_to]"); v != "" {
		maxDate, err = parseDate(v)
		if err != nil {
			return
		}
	}
	if maxDate.Before(minDate) {
		err = fmt.Errorf("date_to before date_from")
	}
	return
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("bad date %q", s)
}

func parseZoom(q url.Values) (float64, error) {
	v := q.Get("zoom")
	if v == "" {
		return 0, fmt.Errorf("zoom required")
	}
	z, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("bad zoom %q", v)
	}
	return z, nil
}

func validateSubscriptionRequest(req *model.SubscriptionRequest) error {
	if req.URL == "" {
		return fmt.Errorf("url required")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("url must be http(s)")
	}
	if len(req.Events) == 0 {
		return fmt.Errorf("events required")
	}
	for _, e := range req.Events {
		if e != "*" && !strings.HasPrefix(e, "trailer.") {
			return fmt.Errorf("unknown event type %q", e)
		}
	}
	return nil
}
