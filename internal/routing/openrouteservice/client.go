// Package openrouteservice provides a route candidate source backed by the
// OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/spatial"
	"github.com/saferoute/saferoute/pkg/polyline"
)

const (
	ProviderName   = "openrouteservice"
	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultTimeout = 10 * time.Second
)

// ClientConfig configures an OpenRouteService client. APIKey is required.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// HTTPClient overrides the resilient client built from Timeout and
	// Registry.
	HTTPClient routing.HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	Logger zerolog.Logger
}

// Client queries the ORS directions endpoint for the foot-walking profile.
type Client struct {
	apiKey  string
	baseURL string
	http    routing.HTTPDoer
	logger  zerolog.Logger
}

// NewClient creates an OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		logger:  cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = DefaultTimeout
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		}
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		c.http = resilience.NewClient(rc)
	}
	return c
}

func (c *Client) Name() string {
	return ProviderName
}

// GetDirections retrieves walking routes between two points. ORS counts the
// primary route in target_count, so it is asked for one more than the
// requested alternatives.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := routing.ValidateEndpoints(ProviderName, req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(newRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/v2/directions/" + walkingProfile
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, application/geo+json")
	httpReq.Header.Set("Authorization", c.apiKey)

	c.logger.Debug().Int("alternatives", req.Alternatives()).Msg("requesting directions")

	status, body, err := routing.Exchange(c.http, ProviderName, httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classify(status, body)
	}

	var parsed orsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, routing.Unavailable(ProviderName, routing.CodeDecodeFailed, "unreadable routing response", err)
	}

	routes := c.toRoutes(parsed.Routes)
	if len(routes) == 0 {
		return nil, routing.NoRoute(ProviderName, "no usable routes returned")
	}
	c.logger.Debug().Int("route_count", len(routes)).Msg("received directions")
	return routing.NewResponse(ProviderName, routes), nil
}

func newRequest(req routing.DirectionsRequest) orsRequest {
	return orsRequest{
		Coordinates: [][]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		AlternativeRoutes: &alternativeOpts{
			TargetCount:  req.Alternatives() + 1,
			ShareFactor:  alternativeShare,
			WeightFactor: alternativeWeight,
		},
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Preference:   "shortest",
	}
}

// classify maps a non-200 answer onto the routing sentinels.
func classify(status int, body []byte) error {
	if se := routing.StatusError(ProviderName, status); se != nil {
		return se
	}

	var oe orsError
	_ = json.Unmarshal(body, &oe)
	msg := oe.Error.Message

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return routing.Unavailable(ProviderName, routing.CodeForbidden,
			"API access denied, check the API key", nil)
	case status == http.StatusNotFound || oe.Error.Code == errRouteNotFound:
		return routing.NoRoute(ProviderName, msg)
	case status == http.StatusBadRequest:
		return routing.Rejected(ProviderName, msg)
	}
	if msg == "" {
		msg = fmt.Sprintf("routing provider returned status %d", status)
	}
	return routing.Unavailable(ProviderName, fmt.Sprintf("HTTP_%d", status), msg, nil)
}

// toRoutes decodes each route's polyline. Routes that fail to decode or
// have fewer than two points are dropped.
func (c *Client) toRoutes(in []orsRoute) []routing.Route {
	out := make([]routing.Route, 0, len(in))
	for i := range in {
		points, err := polyline.Decode(in[i].Geometry, polyline.Precision5)
		if err != nil || len(points) < 2 {
			c.logger.Warn().Err(err).Int("route_index", i).Int("points", len(points)).
				Msg("dropping route with unusable geometry")
			continue
		}
		geometry := make(spatial.Geometry, len(points))
		for j, p := range points {
			geometry[j] = spatial.Coordinate{Lat: p.Lat, Lon: p.Lon}
		}
		out = append(out, routing.Route{
			Geometry:        geometry,
			DistanceMeters:  in[i].Summary.Distance,
			DurationSeconds: in[i].Summary.Duration,
			Summary:         longestStreet(in[i].Segments),
		})
	}
	return out
}

// longestStreet picks the named street carrying the most walking distance.
// ORS uses "-" for unnamed ways.
func longestStreet(segments []segment) string {
	totals := make(map[string]float64)
	var best string
	for _, seg := range segments {
		for _, s := range seg.Steps {
			if s.Name == "" || s.Name == "-" {
				continue
			}
			totals[s.Name] += s.Distance
			if best == "" || totals[s.Name] > totals[best] {
				best = s.Name
			}
		}
	}
	return best
}
