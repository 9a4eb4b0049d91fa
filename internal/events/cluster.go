package events

import (
	"fmt"
	"math"

	"fleetwatch/internal/model"
)

const (
	earthRadiusKm = 6371.071
	// Ground resolution at the equator for zoom 0, meters per pixel.
	zoomBaseResolution = 156543.03392
	// Events closer than this many pixels at the current zoom merge
	// into one marker.
	clusterPixelRadius = 20
)

// Clusterize groups location-bearing events into map clusters for the
// given zoom level. Input must be in chronological order. Each located
// event lands in exactly one cluster's tail: an event joins the first
// existing cluster whose header is within the pixel radius, otherwise
// it opens a new cluster with itself as header and sole tail member.
// Singleton clusters are part of the result so the consumer can still
// render individual markers; only tails longer than one are rendered
// as grouped.
//
// A negative zoom is a programmer error, the only condition this
// function reports.
func Clusterize(evs []model.Event, zoom float64) ([]model.EventCluster, error) {
	if zoom < 0 {
		return nil, fmt.Errorf("negative zoom %v", zoom)
	}
	located := Located(evs)
	if len(located) == 0 {
		return nil, nil
	}

	clusters := []model.EventCluster{{Header: located[0]}}
	for _, ev := range located {
		joined := false
		for i := range clusters {
			head := clusters[i].Header.Location
			dist := haversineKm(head.GeoPoint, ev.Location.GeoPoint) * 1000
			if dist < clusterPixelRadius*metersPerPixel(head.Lat, zoom) {
				clusters[i].Tail = append(clusters[i].Tail, ev)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, model.EventCluster{Header: ev, Tail: []model.Event{ev}})
		}
	}
	return clusters, nil
}

// haversineKm is the great-circle distance between two points.
func haversineKm(a, b model.GeoPoint) float64 {
	rlat1 := a.Lat * math.Pi / 180
	rlat2 := b.Lat * math.Pi / 180
	dlat := rlat2 - rlat1
	dlng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// metersPerPixel is the ground distance one pixel covers at the given
// latitude and zoom.
func metersPerPixel(lat, zoom float64) float64 {
	return zoomBaseResolution * math.Cos(lat*math.Pi/180) / math.Pow(2, zoom)
}
