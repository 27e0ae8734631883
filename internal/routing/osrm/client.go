// Package osrm provides a route candidate source backed by an OSRM server's
// foot profile.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/spatial"
)

const (
	ProviderName   = "osrm"
	DefaultBaseURL = "https://router.project-osrm.org"
	DefaultTimeout = 10 * time.Second
	DefaultProfile = "foot"
)

// ClientConfig configures an OSRM client. Every field is optional.
type ClientConfig struct {
	BaseURL string
	Profile string

	// HTTPClient overrides the resilient client built from Timeout and
	// Registry.
	HTTPClient routing.HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	Logger zerolog.Logger
}

// Client queries the OSRM route service.
type Client struct {
	baseURL string
	profile string
	http    routing.HTTPDoer
	logger  zerolog.Logger
}

// NewClient creates an OSRM client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: cfg.Profile,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.profile == "" {
		c.profile = DefaultProfile
	}
	if c.http == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		if cfg.Timeout > 0 {
			rc.Timeout = cfg.Timeout
		} else {
			rc.Timeout = DefaultTimeout
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

// OSRM answers with a code of "Ok" on success. Routing failures come back
// as a non-Ok code, usually with HTTP 400.
type routeResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []route `json:"routes"`
}

type route struct {
	Geometry struct {
		Coordinates [][2]float64 `json:"coordinates"` // lon, lat
	} `json:"geometry"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Legs     []struct {
		Summary string `json:"summary"`
	} `json:"legs"`
}

// GetDirections requests the fastest foot route plus alternatives.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := routing.ValidateEndpoints(ProviderName, req); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.routeURL(req), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", c.profile).
		Int("alternatives", req.Alternatives()).
		Msg("requesting routes")

	status, body, err := routing.Exchange(c.http, ProviderName, httpReq)
	if err != nil {
		return nil, err
	}

	var parsed routeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if se := routing.StatusError(ProviderName, status); se != nil {
			return nil, se
		}
		return nil, routing.Unavailable(ProviderName, routing.CodeDecodeFailed,
			fmt.Sprintf("unreadable routing response (status %d)", status), err)
	}
	if status != http.StatusOK || parsed.Code != "Ok" {
		return nil, classify(status, parsed)
	}

	routes := toRoutes(parsed.Routes)
	if len(routes) == 0 {
		return nil, routing.NoRoute(ProviderName, "no usable routes returned")
	}
	c.logger.Debug().Int("route_count", len(routes)).Msg("received routes")
	return routing.NewResponse(ProviderName, routes), nil
}

// routeURL builds /route/v1/{profile}/{lon,lat;lon,lat}.
func (c *Client) routeURL(req routing.DirectionsRequest) string {
	q := url.Values{
		"alternatives": {strconv.Itoa(req.Alternatives())},
		"steps":        {"false"},
		"overview":     {"full"},
		"geometries":   {"geojson"},
	}
	return fmt.Sprintf("%s/route/v1/%s/%s;%s?%s",
		c.baseURL, c.profile, lonLat(req.Origin), lonLat(req.Destination), q.Encode())
}

func lonLat(p spatial.Coordinate) string {
	return strconv.FormatFloat(p.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}

func classify(status int, resp routeResponse) error {
	if se := routing.StatusError(ProviderName, status); se != nil {
		return se
	}
	switch resp.Code {
	case "NoRoute", "NoSegment":
		return routing.NoRoute(ProviderName, resp.Message)
	case "InvalidQuery", "InvalidValue":
		return routing.Rejected(ProviderName, resp.Message)
	}
	code := resp.Code
	if code == "" {
		code = fmt.Sprintf("HTTP_%d", status)
	}
	msg := resp.Message
	if msg == "" {
		msg = "OSRM failed"
	}
	return routing.Unavailable(ProviderName, code, msg, nil)
}

// toRoutes drops routes with fewer than two coordinates.
func toRoutes(in []route) []routing.Route {
	out := make([]routing.Route, 0, len(in))
	for i := range in {
		r := &in[i]
		if len(r.Geometry.Coordinates) < 2 {
			continue
		}
		geometry := make(spatial.Geometry, len(r.Geometry.Coordinates))
		for j, p := range r.Geometry.Coordinates {
			geometry[j] = spatial.Coordinate{Lat: p[1], Lon: p[0]}
		}
		var summary string
		if len(r.Legs) > 0 {
			summary = r.Legs[0].Summary
		}
		out = append(out, routing.Route{
			Geometry:        geometry,
			DistanceMeters:  r.Distance,
			DurationSeconds: r.Duration,
			Summary:         summary,
		})
	}
	return out
}
