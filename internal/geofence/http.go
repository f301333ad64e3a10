package geofence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/truckwatch/fleet-alerts/internal/errors"
)

// HTTPOracleConfig configures the remote spatial service client.
type HTTPOracleConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables limiting
	Burst     int
	Client    *http.Client // optional
}

// HTTPOracle calls a spatial service exposing
// GET {base}/v1/geofences/{id}/contains?lat=..&lon=.. -> {"inside": bool}.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type containsResponse struct {
	Inside *bool `json:"inside"`
}

// NewHTTPOracle creates an HTTPOracle.
func NewHTTPOracle(cfg HTTPOracleConfig) *HTTPOracle {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &HTTPOracle{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
		limiter: limiter,
	}
}

// IsInside implements Oracle. Waiting for the rate limiter honours ctx.
func (o *HTTPOracle) IsInside(ctx context.Context, geofenceID string, lat, lon float64) (bool, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return false, oracleError(errors.Errorf("rate limiter: %w", err), "http", geofenceID)
	}

	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint := fmt.Sprintf("%s/v1/geofences/%s/contains?%s", o.baseURL, url.PathEscape(geofenceID), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return false, oracleError(err, "http", geofenceID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return false, errors.Wrap(err).
			Component("geofence").
			Category(errors.CategoryNetwork).
			Context("geofence_id", geofenceID).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, oracleError(errors.Errorf("%w: %s", ErrGeofenceNotFound, geofenceID), "http", geofenceID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, oracleError(errors.Errorf("spatial service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "http", geofenceID)
	}

	var out containsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, oracleError(errors.Errorf("decode spatial service response: %w", err), "http", geofenceID)
	}
	if out.Inside == nil {
		return false, oracleError(errors.New("spatial service response has no inside field"), "http", geofenceID)
	}
	return *out.Inside, nil
}
