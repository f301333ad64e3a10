package geofence

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/truckwatch/fleet-alerts/internal/datastore/entities"
	"github.com/truckwatch/fleet-alerts/internal/datastore/repository"
	"github.com/truckwatch/fleet-alerts/internal/errors"
	"github.com/truckwatch/fleet-alerts/internal/logger"
)

func errInvalidShape(g *entities.Geofence) error {
	return errors.Newf("geofence %s has an invalid %q shape", g.ID, g.Shape).
		Component("geofence").
		Category(errors.CategoryValidation).
		Build()
}

// LocalOracle evaluates containment in-process from shapes read through a
// GeofenceStore. Compiled shapes are cached for shapeTTL so edits made in the
// admin UI are picked up without a restart.
type LocalOracle struct {
	store  repository.GeofenceStore
	shapes *cache.Cache
	log    logger.Logger
}

// NewLocalOracle creates a LocalOracle.
func NewLocalOracle(store repository.GeofenceStore, shapeTTL time.Duration, log logger.Logger) *LocalOracle {
	return &LocalOracle{
		store:  store,
		shapes: cache.New(shapeTTL, 2*shapeTTL),
		log:    log.With(logger.String("oracle", "local")),
	}
}

// IsInside implements Oracle.
func (o *LocalOracle) IsInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error) {
	s, err := o.shape(ctx, geofenceID)
	if err != nil {
		return false, err
	}
	return s.contains(entities.Point{Lat: lat, Lon: lon}), nil
}

func (o *LocalOracle) shape(ctx context.Context, geofenceID string) (*shape, error) {
	if cached, ok := o.shapes.Get(geofenceID); ok {
		return cached.(*shape), nil
	}

	g, err := o.store.GetGeofence(ctx, geofenceID)
	if err != nil {
		if errors.Is(err, repository.ErrGeofenceNotFound) {
			return nil, oracleError(errors.Errorf("%w: %s", ErrGeofenceNotFound, geofenceID), "local", geofenceID)
		}
		return nil, oracleError(err, "local", geofenceID)
	}
	s, err := compile(g)
	if err != nil {
		return nil, err
	}

	o.shapes.SetDefault(geofenceID, s)
	o.log.Debug("geofence shape loaded",
		logger.String("geofence_id", geofenceID),
		logger.String("shape", string(g.Shape)))
	return s, nil
}

// Invalidate drops a cached shape.
func (o *LocalOracle) Invalidate(geofenceID string) {
	o.shapes.Delete(geofenceID)
}

// CachedShapes returns the number of compiled shapes held in memory.
func (o *LocalOracle) CachedShapes() int {
	return o.shapes.ItemCount()
}
