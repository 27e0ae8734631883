package models

import (
	"github.com/saferoute/saferoute/internal/recommend"
	"github.com/saferoute/saferoute/internal/routing"
)

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status       HealthStatus          `json:"status"`
	Time         Timestamp             `json:"time"`
	Graph        recommend.GraphStatus `json:"graph"`
	Cache        *routing.CacheStats   `json:"cache,omitempty"`
	Dependencies []DependencyStatus    `json:"dependencies"`
}

// DependencyStatus reports one upstream dependency: a routing provider or
// the fact database.
type DependencyStatus struct {
	Name           string       `json:"name"`
	Status         HealthStatus `json:"status"`
	CircuitState   string       `json:"circuitState"`
	Requests       uint32       `json:"requests"`
	Failures       uint32       `json:"failures"`
	LastSuccessAt  *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt  *Timestamp   `json:"lastFailureAt,omitempty"`
	StateChangedAt *Timestamp   `json:"stateChangedAt,omitempty"`
	Message        *string      `json:"message,omitempty"`
}

// CacheInvalidated is returned by POST /v1/admin/cache:invalidate.
type CacheInvalidated struct {
	EntriesRemoved int `json:"entriesRemoved"`
}
