// Package telemetry defines the inbound position sample and its wire format.
package telemetry

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// ErrInvalidSample is returned by Validate for samples that cannot be evaluated at all.
var ErrInvalidSample = errors.New("invalid position sample")

// PositionSample is one telemetry record for a truck. Latitude, Longitude and
// Speed are optional: devices omit them when they have no GPS fix or the CAN
// bus reports nothing.
type PositionSample struct {
	SampleID  string    `json:"sample_id"`
	TruckID   string    `json:"truck_id"`
	Latitude  *float64  `json:"lat,omitempty"`
	Longitude *float64  `json:"lon,omitempty"`
	Speed     *float64  `json:"speed,omitempty"` // km/h
	Timestamp time.Time `json:"timestamp"`
}

// Validate rejects samples without a truck or timestamp. Missing or bogus
// coordinates and speed are not errors; they only disable rule categories.
func (p *PositionSample) Validate() error {
	if p.TruckID == "" {
		return errors.Newf("%w: truck_id required", ErrInvalidSample).Category(errors.CategoryValidation).Build()
	}
	if p.Timestamp.IsZero() {
		return errors.Newf("%w: timestamp required", ErrInvalidSample).Category(errors.CategoryValidation).Build()
	}
	return nil
}

// Coordinates returns the sample position when both components are present,
// finite and within WGS84 range.
func (p *PositionSample) Coordinates() (lat, lon float64, ok bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return 0, 0, false
	}
	lat, lon = *p.Latitude, *p.Longitude
	if !finite(lat) || !finite(lon) {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

// SpeedKmh returns the reported speed when it is present and plausible.
func (p *PositionSample) SpeedKmh() (float64, bool) {
	if p.Speed == nil || !finite(*p.Speed) || *p.Speed < 0 {
		return 0, false
	}
	return *p.Speed, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Decode parses a JSON sample and fills in a sample id when the producer did
// not provide one.
func Decode(data []byte) (*PositionSample, error) {
	var p PositionSample
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Newf("%w: %w", ErrInvalidSample, err).Category(errors.CategoryValidation).Build()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.SampleID == "" {
		p.SampleID = uuid.NewString()
	}
	return &p, nil
}

// Float is a convenience for building optional fields.
func Float(f float64) *float64 {
	return &f
}
