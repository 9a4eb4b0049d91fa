package model

import (
	"time"

	"fleetwatch/internal/state"
)

// Core domain types for the event pipeline.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is an event's resolved position from the device route log.
type Location struct {
	GeoPoint
	Name   string  `json:"name,omitempty"`
	Speed  float64 `json:"speed,omitempty"`
	Signal float64 `json:"signal,omitempty"`
}

// Logistician identifies the person acting on an alarm.
type Logistician struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Interaction records one acknowledgement/escalation of an event.
// Per event there is at most one interaction per state; the earliest
// acknowledgement of a kind is the one that counts.
type Interaction struct {
	State       state.TrailerState `json:"state"`
	Logistician *Logistician       `json:"logistician,omitempty"`
	Time        time.Time          `json:"time"`
}

// Event is one reported state transition for one trailer. Immutable
// once normalized, except Interactions which is replaced wholesale when
// an alarm is acknowledged.
type Event struct {
	ID           string             `json:"id"`
	TrailerID    string             `json:"trailerId"`
	State        state.TrailerState `json:"state"`
	Time         time.Time          `json:"time"`
	Location     *Location          `json:"location,omitempty"`
	Logistician  *Logistician       `json:"logistician,omitempty"`
	Interactions []Interaction      `json:"interactions"`
}

// EventCluster groups events that visually overlap at the current map
// zoom. Display-only, recomputed on every zoom or data change.
type EventCluster struct {
	Header Event   `json:"header"`
	Tail   []Event `json:"tail"`
}

// Raw wire shapes, as delivered by the backend REST feed and push
// messages.

type RawRouteLog struct {
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName string   `json:"location_name"`
	Speed        float64  `json:"speed"`
	Signal       float64  `json:"signal"`
}

type RawInteraction struct {
	Kind        any          `json:"kind"`
	Logistician *Logistician `json:"logistician"`
	TriggeredAt string       `json:"triggered_at"`
}

type RawTrailerRef struct {
	ID string `json:"id"`
}

// RawEvent is one inbound event record. Kind is a string token from
// current producers or a small integer from legacy ones.
type RawEvent struct {
	ID           string           `json:"id"`
	Trailer      RawTrailerRef    `json:"trailer"`
	Kind         any              `json:"kind"`
	TriggeredAt  string           `json:"triggered_at"`
	Interactions []RawInteraction `json:"interactions,omitempty"`
	RouteLog     *RawRouteLog     `json:"route_log,omitempty"`
	Logistician  *Logistician     `json:"logistician,omitempty"`
}

// Webhook subscription surface for alarm notifications.

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}
