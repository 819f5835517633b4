// Package geocode resolves street addresses to coordinates through the Mapbox geocoding API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	defaultBaseURL        = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

var (
	// ErrNoToken is returned when no Mapbox access token is configured.
	ErrNoToken = errors.New("geocode: missing mapbox token")
	// ErrNoMatch is returned when Mapbox found no feature for the address.
	ErrNoMatch = errors.New("geocode: no match")
)

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves an address to a point.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// MapboxClient calls the Mapbox forward geocoding endpoint.
type MapboxClient struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewMapboxClient constructs a MapboxClient. An empty token yields a client that always returns ErrNoToken.
func NewMapboxClient(token string) *MapboxClient {
	return &MapboxClient{
		token:   strings.TrimSpace(token),
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// WithBaseURL overrides the API base URL.
func (m *MapboxClient) WithBaseURL(baseURL string) *MapboxClient {
	m.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return m
}

// Enabled reports whether a token is configured.
func (m *MapboxClient) Enabled() bool {
	return m != nil && m.token != ""
}

// mapboxResponse maps the subset of the geocoding response we read.
type mapboxResponse struct {
	Features []struct {
		Center []float64 `json:"center"`
	} `json:"features"`
}

// Geocode returns the best match for address. Mapbox reports center as [lng, lat].
func (m *MapboxClient) Geocode(ctx context.Context, address string) (Point, error) {
	if !m.Enabled() {
		return Point{}, ErrNoToken
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Point{}, ErrNoMatch
	}

	query := url.Values{}
	query.Set("access_token", m.token)
	query.Set("limit", "1")
	endpoint := m.baseURL + "/" + url.PathEscape(address) + ".json?" + query.Encode()

	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return Point{}, fmt.Errorf("geocode: build request: %w", errReq)
	}
	resp, errDo := m.client.Do(req)
	if errDo != nil {
		return Point{}, fmt.Errorf("geocode: request failed: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("geocode: close response body failed")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Point{}, fmt.Errorf("geocode: unexpected status %d", resp.StatusCode)
	}

	var payload mapboxResponse
	if errDecode := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); errDecode != nil {
		return Point{}, fmt.Errorf("geocode: decode response: %w", errDecode)
	}
	if len(payload.Features) == 0 || len(payload.Features[0].Center) < 2 {
		return Point{}, ErrNoMatch
	}
	center := payload.Features[0].Center
	return Point{Longitude: center[0], Latitude: center[1]}, nil
}

// Lookup geocodes address and returns nil coordinates on any failure.
func Lookup(ctx context.Context, g Geocoder, address string) (*float64, *float64) {
	if g == nil {
		return nil, nil
	}
	point, errGeocode := g.Geocode(ctx, address)
	if errGeocode != nil {
		if !errors.Is(errGeocode, ErrNoToken) {
			log.WithError(errGeocode).Warn("geocode: lookup failed")
		}
		return nil, nil
	}
	lat, lng := point.Latitude, point.Longitude
	return &lat, &lng
}
