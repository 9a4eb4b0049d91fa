package events

import (
	"time"

	"fleetwatch/internal/model"
	"fleetwatch/internal/state"
)

// CancelWindow is the half-width of the window inside which a pair of
// opposing transitions (engine off / engine on, network off / on, ...)
// is treated as noise and removed.
const CancelWindow = 3 * time.Minute

// cancelSpan is the window a cancellation-capable event opens around
// its own timestamp.
type cancelSpan struct {
	cancels state.TrailerState
	start   time.Time
	end     time.Time
}

// RemoveShortLived filters out short-lived opposing transitions from a
// trailer's events. Input must be ordered ascending by time; output
// preserves input order.
//
// Every event whose state has a cancelling partner opens a ±CancelWindow
// span around its own time, including events that are themselves later
// cancelled. An event is removed when it falls strictly inside any span
// that names its state; events exactly on a span boundary survive.
// Events without a resolvable time never cancel and are never cancelled,
// so a data problem can only ever show more events, not hide an alarm.
func RemoveShortLived(evs []model.Event) []model.Event {
	spans := make([]cancelSpan, 0, len(evs))
	for _, ev := range evs {
		if ev.Time.IsZero() {
			continue
		}
		if partner, ok := ev.State.CancelPartner(); ok {
			spans = append(spans, cancelSpan{
				cancels: partner,
				start:   ev.Time.Add(-CancelWindow),
				end:     ev.Time.Add(CancelWindow),
			})
		}
	}

	kept := make([]model.Event, 0, len(evs))
	for _, ev := range evs {
		if ev.Time.IsZero() || !cancelled(ev, spans) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func cancelled(ev model.Event, spans []cancelSpan) bool {
	for _, sp := range spans {
		if sp.cancels != ev.State {
			continue
		}
		if ev.Time.After(sp.start) && ev.Time.Before(sp.end) {
			return true
		}
	}
	return false
}
