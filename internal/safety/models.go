// Package safety scores walking routes by personal-safety risk from the
// incidents, emergency phones, lighting and patrol activity found near them.
package safety

import (
	"strings"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// UserMode selects which actionable tips apply to the traveller.
type UserMode string

const (
	UserModeStudent   UserMode = "student"
	UserModeCommunity UserMode = "community"
)

// Valid reports whether m is a known user mode.
func (m UserMode) Valid() bool {
	return m == UserModeStudent || m == UserModeCommunity
}

// Severity is the optional severity of an incident.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Lighting describes lighting quality along a route.
type Lighting string

const (
	LightingGood     Lighting = "good"
	LightingModerate Lighting = "moderate"
	LightingPoor     Lighting = "poor"
)

// Patrol describes how often an area is patrolled.
type Patrol string

const (
	PatrolHigh     Patrol = "high"
	PatrolModerate Patrol = "moderate"
	PatrolLow      Patrol = "low"
)

// PatrolFrequencyLabel maps a patrol-stop count to a Patrol level.
func PatrolFrequencyLabel(stops int) Patrol {
	switch {
	case stops >= 20:
		return PatrolHigh
	case stops >= 5:
		return PatrolModerate
	default:
		return PatrolLow
	}
}

// Incident is a historical safety incident near a route.
type Incident struct {
	ID          string             `json:"id"`
	Type        string             `json:"type"`
	Location    spatial.Coordinate `json:"location"`
	OccurredAt  time.Time          `json:"date"`
	Description string             `json:"description,omitempty"`
	Severity    Severity           `json:"severity,omitempty"`
}

// NormalizeIncidentType trims and title-cases a raw incident type.
// Empty values become "Unknown".
func NormalizeIncidentType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "Unknown"
	}
	var b strings.Builder
	b.Grow(len(raw))
	upper := true
	for _, r := range strings.ToLower(raw) {
		isLetter := ('a' <= r && r <= 'z') || r > 127
		if upper && isLetter {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteRune(r)
		}
		upper = !isLetter
	}
	return b.String()
}

// FactBundle holds the facts gathered for one route. It is built fresh per
// request and never cached.
type FactBundle struct {
	Incidents       []Incident
	EmergencyPhones int
	PhoneLocations  []spatial.Coordinate
	Lighting        Lighting
	Patrol          Patrol

	// Degraded is set when a fact lookup failed and empty facts were
	// substituted.
	Degraded bool
}

// TipType classifies an actionable tip.
type TipType string

const (
	TipWarning  TipType = "warning"
	TipAdvisory TipType = "advisory"
)

// Tip is an actionable safety advisory triggered by incident mix.
type Tip struct {
	Type         TipType `json:"type"`
	Message      string  `json:"message"`
	TriggerCrime string  `json:"triggerCrime"`
}

// RiskLevel is the qualitative label derived from a risk score.
type RiskLevel string

const (
	RiskVerySafe RiskLevel = "Very Safe"
	RiskSafe     RiskLevel = "Safe"
	RiskModerate RiskLevel = "Moderate"
	RiskCaution  RiskLevel = "Caution"
	RiskHigh     RiskLevel = "High Risk"
)

// LevelForScore returns the risk level for a 0-100 score.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score <= 20:
		return RiskVerySafe
	case score <= 40:
		return RiskSafe
	case score <= 60:
		return RiskModerate
	case score <= 80:
		return RiskCaution
	default:
		return RiskHigh
	}
}

// Analysis is the safety assessment of a single route. Immutable once built.
type Analysis struct {
	RiskScore           float64    `json:"riskScore"`
	RiskLevel           RiskLevel  `json:"riskLevel"`
	IncidentCount       int        `json:"incidentCount"`
	RecentIncidents     []Incident `json:"recentIncidents"`
	EmergencyPhones     int        `json:"emergencyPhones"`
	Lighting            Lighting   `json:"lightingQuality"`
	Patrol              Patrol     `json:"patrolFrequency"`
	ActionableTips      []Tip      `json:"actionableTips"`
	Concerns            []string   `json:"concerns"`
	Positives           []string   `json:"positives"`
	ContributingFactors []string   `json:"contributingFactors"`
	ScoringModel        Model      `json:"scoringModel"`
	Degraded            bool       `json:"degraded,omitempty"`
}
