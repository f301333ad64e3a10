package geofence

import (
	"math"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
)

const earthRadiusMeters = 6371008.8

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b entities.Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// InPolygon reports whether p lies inside ring using ray casting on the
// lat/lon plane. Adequate for geofences that do not cross the antimeridian.
func InPolygon(p entities.Point, ring []entities.Point) bool {
	inside := false
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			crossLon := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < crossLon {
				inside = !inside
			}
		}
	}
	return inside
}

// shape is a geofence compiled for repeated containment checks.
type shape struct {
	center entities.Point
	radius float64
	ring   []entities.Point
}

func compile(g *entities.Geofence) (*shape, error) {
	switch g.Shape {
	case entities.ShapeCircle:
		if g.CenterLat == nil || g.CenterLon == nil || g.RadiusMeters == nil || *g.RadiusMeters <= 0 {
			return nil, errInvalidShape(g)
		}
		return &shape{center: entities.Point{Lat: *g.CenterLat, Lon: *g.CenterLon}, radius: *g.RadiusMeters}, nil
	case entities.ShapePolygon:
		ring, err := g.Ring()
		if err != nil {
			return nil, err
		}
		return &shape{ring: ring}, nil
	default:
		return nil, errInvalidShape(g)
	}
}

func (s *shape) contains(p entities.Point) bool {
	if s.ring != nil {
		return InPolygon(p, s.ring)
	}
	return HaversineMeters(s.center, p) <= s.radius
}
