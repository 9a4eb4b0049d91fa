// Package feed keeps the latest normalized event set per trailer and
// recomputes the display pipeline from it. Each trailer has a single
// snapshot slot, replaced atomically so consumers always see a fully
// formed event set, never a partially applied one.
package feed

import (
	"sync"
	"time"

	"fleetwatch/internal/events"
	"fleetwatch/internal/model"
)

type slot struct {
	evs []model.Event
	seq uint64
}

// Table holds per-trailer snapshots. Fetches are guarded by a
// per-trailer sequence number: a refetch that was superseded while in
// flight commits with a stale sequence and is dropped, so a slow
// response can no longer overwrite newer data.
type Table struct {
	mu    sync.Mutex
	slots map[string]*slot
	next  map[string]uint64
}

func NewTable() *Table {
	return &Table{slots: map[string]*slot{}, next: map[string]uint64{}}
}

// Begin reserves a fetch sequence for the trailer. Pass the returned
// value to Commit when the fetch resolves.
func (t *Table) Begin(trailerID string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next[trailerID]++
	return t.next[trailerID]
}

// Commit replaces the trailer's snapshot if seq is still current.
// Returns false when a later fetch already began, in which case the
// snapshot is discarded.
func (t *Table) Commit(trailerID string, seq uint64, evs []model.Event) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq < t.next[trailerID] {
		return false
	}
	s := t.slots[trailerID]
	if s == nil {
		s = &slot{}
		t.slots[trailerID] = s
	}
	if seq < s.seq {
		return false
	}
	s.evs = evs
	s.seq = seq
	return true
}

// Replace swaps the snapshot unconditionally, for writes that do not
// race with fetches (e.g. direct ingest).
func (t *Table) Replace(trailerID string, evs []model.Event) {
	seq := t.Begin(trailerID)
	t.Commit(trailerID, seq, evs)
}

// Snapshot returns the trailer's current event set in chronological
// order. The returned slice is shared and must not be mutated.
func (t *Table) Snapshot(trailerID string) []model.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.slots[trailerID]; s != nil {
		return s.evs
	}
	return nil
}

// View is one recomputed pass of the pipeline over a snapshot.
type View struct {
	// List is cancellation- and filter/date-filtered, newest first.
	List []model.Event
	// Located is the same set restricted to events with a position,
	// in chronological order, the clusterer's input.
	Located []model.Event
}

// Recompute runs the full pipeline over the trailer's snapshot. Every
// pass starts from the complete event set; the cancellation windows
// are not incrementally decomposable.
func (t *Table) Recompute(trailerID string, f events.Filters, minDate, maxDate time.Time) View {
	evs := t.Snapshot(trailerID)
	visible := events.Visible(events.RemoveShortLived(evs), f, minDate, maxDate)

	located := events.Located(visible)
	list := make([]model.Event, len(visible))
	copy(list, visible)
	events.SortNewestFirst(list)
	return View{List: list, Located: located}
}
