package geofence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// containsQuery expects geofences.area to be a geography column.
// ST_MakePoint takes (lon, lat), not (lat, lon).
const containsQuery = `
	SELECT ST_Covers(area, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography)
	FROM geofences
	WHERE id = $1`

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostGISOracle asks PostGIS for containment.
type PostGISOracle struct {
	db rowQuerier
}

// NewPostGISOracle connects a pool to dsn and verifies it with a ping.
func NewPostGISOracle(ctx context.Context, dsn string) (*PostGISOracle, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, errors.Newf("create postgis pool: %w", err).
			Component("geofence").
			Category(errors.CategoryDatabase).
			Build()
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Newf("ping postgis: %w", err).
			Component("geofence").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &PostGISOracle{db: pool}, pool, nil
}

// IsInside implements Oracle.
func (o *PostGISOracle) IsInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error) {
	var inside bool
	if err := o.db.QueryRow(ctx, containsQuery, geofenceID, lon, lat).Scan(&inside); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, oracleError(errors.Errorf("%w: %s", ErrGeofenceNotFound, geofenceID), "postgis", geofenceID)
		}
		return false, oracleError(errors.Errorf("postgis containment query: %w", err), "postgis", geofenceID)
	}
	return inside, nil
}
