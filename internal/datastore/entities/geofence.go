package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// GeofenceShape is the geometry kind of a geofence.
type GeofenceShape string

const (
	ShapeCircle  GeofenceShape = "circle"
	ShapePolygon GeofenceShape = "polygon"
)

// Geofence is a named area. Circles use the center and radius columns,
// polygons store their ring as a JSON array of [lat, lon] pairs.
type Geofence struct {
	ID           string        `gorm:"primaryKey;size:64" json:"id"`
	Name         string        `gorm:"size:255;not null" json:"name"`
	Shape        GeofenceShape `gorm:"size:16;not null" json:"shape"`
	CenterLat    *float64      `json:"center_lat,omitempty"`
	CenterLon    *float64      `json:"center_lon,omitempty"`
	RadiusMeters *float64      `json:"radius_meters,omitempty"`
	Vertices     string        `gorm:"type:text;default:''" json:"vertices,omitempty"`
	OwnerID      string        `gorm:"size:64;not null;default:''" json:"owner_id"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Geofence) TableName() string {
	return "geofences"
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Ring decodes the polygon vertices. At least three points are required.
func (g *Geofence) Ring() ([]Point, error) {
	if g.Shape != ShapePolygon {
		return nil, fmt.Errorf("geofence %s is a %s, not a polygon", g.ID, g.Shape)
	}
	var raw [][2]float64
	if err := json.Unmarshal([]byte(g.Vertices), &raw); err != nil {
		return nil, fmt.Errorf("geofence %s: decode vertices: %w", g.ID, err)
	}
	if len(raw) < 3 {
		return nil, fmt.Errorf("geofence %s: polygon needs at least 3 vertices, got %d", g.ID, len(raw))
	}
	ring := make([]Point, len(raw))
	for i, v := range raw {
		ring[i] = Point{Lat: v[0], Lon: v[1]}
	}
	return ring, nil
}

// SetRing encodes ring into Vertices and marks the geofence as a polygon.
func (g *Geofence) SetRing(ring []Point) {
	raw := make([][2]float64, len(ring))
	for i, p := range ring {
		raw[i] = [2]float64{p.Lat, p.Lon}
	}
	b, _ := json.Marshal(raw)
	g.Shape = ShapePolygon
	g.Vertices = string(b)
}
