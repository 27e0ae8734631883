package openrouteservice

// Wire types for POST /v2/directions/{profile}. Coordinates are [lon, lat].

const (
	walkingProfile = "foot-walking"

	// errRouteNotFound comes back with HTTP 400 or 404 when the points cannot
	// be connected.
	errRouteNotFound = 2009
)

// Alternative route tuning: accept alternatives sharing at most 60% of the
// primary route and up to 1.6 times its length.
const (
	alternativeShare  = 0.6
	alternativeWeight = 1.6
)

type orsRequest struct {
	Coordinates       [][]float64      `json:"coordinates"`
	AlternativeRoutes *alternativeOpts `json:"alternative_routes,omitempty"`
	Instructions      bool             `json:"instructions"`
	Geometry          bool             `json:"geometry"`
	Units             string           `json:"units"`
	Preference        string           `json:"preference,omitempty"`
}

type alternativeOpts struct {
	TargetCount  int     `json:"target_count"`
	ShareFactor  float64 `json:"share_factor,omitempty"`
	WeightFactor float64 `json:"weight_factor,omitempty"`
}

type orsResponse struct {
	Routes []orsRoute `json:"routes"`
}

type orsRoute struct {
	Summary struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"summary"`
	Segments []segment `json:"segments,omitempty"`
	// Geometry is an encoded polyline at precision 5.
	Geometry string `json:"geometry"`
}

type segment struct {
	Steps []step `json:"steps,omitempty"`
}

type step struct {
	Distance float64 `json:"distance"`
	Name     string  `json:"name"`
}

// orsError is the body ORS sends with 4xx responses. Quota and auth errors
// carry a bare string instead, which leaves this zero.
type orsError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
