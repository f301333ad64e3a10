// Package geofence answers "is this point inside that geofence" questions.
// The engine only depends on the Oracle interface; implementations compute
// containment locally, ask PostGIS or call a remote spatial service.
package geofence

import (
	"context"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// ErrGeofenceNotFound is returned when the oracle does not know the geofence.
var ErrGeofenceNotFound = errors.New("geofence not found")

// Oracle decides whether a coordinate lies inside a geofence.
type Oracle interface {
	IsInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, geofenceID string, lat, lon float64) (bool, error)

// IsInside calls f.
func (f OracleFunc) IsInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error) {
	return f(ctx, geofenceID, lat, lon)
}

func oracleError(err error, kind, geofenceID string) error {
	return errors.Wrap(err).
		Component("geofence").
		Category(errors.CategoryGeofence).
		Context("oracle", kind).
		Context("geofence_id", geofenceID).
		Build()
}
