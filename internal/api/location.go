package api

import (
	"sync"
	"time"

	"fleetwatch/internal/model"
)

// LatestPosition is the most recent located event seen for a trailer.
type LatestPosition struct {
	TrailerID string    `json:"trailerId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Name      string    `json:"name,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	TS        time.Time `json:"ts"`
}

// PositionCache keeps the latest known position per trailer. Fed from
// ingest and refetch; an older event never displaces a newer position.
type PositionCache struct {
	mu sync.Mutex
	m  map[string]LatestPosition
}

func NewPositionCache() *PositionCache { return &PositionCache{m: map[string]LatestPosition{}} }

// Observe records the event's position if it is newer than what we have.
func (c *PositionCache) Observe(ev model.Event) {
	if ev.TrailerID == "" || ev.Location == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.m[ev.TrailerID]; ok && ev.Time.Before(cur.TS) {
		return
	}
	c.m[ev.TrailerID] = LatestPosition{
		TrailerID: ev.TrailerID,
		Lat:       ev.Location.Lat,
		Lng:       ev.Location.Lng,
		Name:      ev.Location.Name,
		Speed:     ev.Location.Speed,
		TS:        ev.Time,
	}
}

// Get returns the trailer's latest position, if any.
func (c *PositionCache) Get(trailerID string) (LatestPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.m[trailerID]
	return p, ok
}

// List returns all known positions.
func (c *PositionCache) List() []LatestPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LatestPosition, 0, len(c.m))
	for _, p := range c.m {
		out = append(out, p)
	}
	return out
}
