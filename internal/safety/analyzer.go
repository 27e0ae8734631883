package safety

import (
	"fmt"
	"math"
	"time"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Model selects the risk scoring policy.
type Model string

const (
	// ModelDensity normalizes weighted incidents by route length and applies
	// infrastructure signals as percentage modifiers.
	ModelDensity Model = "density"
	// ModelAdditive sums weighted incidents and applies infrastructure
	// signals as fixed point adjustments.
	ModelAdditive Model = "additive"
)

// Valid reports whether m is a known scoring model.
func (m Model) Valid() bool {
	return m == ModelDensity || m == ModelAdditive
}

// ScoringConfig holds the tunable constants of the risk model.
type ScoringConfig struct {
	Model Model `yaml:"scoring_model"`

	// MaxDensity is the weighted-incidents-per-meter density that maps to a
	// score of 100 under the density model.
	MaxDensity float64 `yaml:"max_density"`

	RecentDays         int     `yaml:"recent_days"`
	RecentWeight       float64 `yaml:"recent_weight"`
	MidDays            int     `yaml:"mid_days"`
	MidWeight          float64 `yaml:"mid_weight"`
	OldWeight          float64 `yaml:"old_weight"`
	IncidentPoints     float64 `yaml:"incident_points"`
	NightMultiplier    float64 `yaml:"night_multiplier"`
	NightStartHour     int     `yaml:"night_start_hour"`
	NightEndHour       int     `yaml:"night_end_hour"`
	PatrolHighFactor   float64 `yaml:"patrol_high_factor"`
	PhonesFactor       float64 `yaml:"phones_factor"`
	PoorLightingFactor float64 `yaml:"poor_lighting_factor"`
}

// DefaultScoringConfig returns the calibrated density model.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Model:              ModelDensity,
		MaxDensity:         0.08,
		RecentDays:         30,
		RecentWeight:       5,
		MidDays:            90,
		MidWeight:          2,
		OldWeight:          1,
		IncidentPoints:     10,
		NightMultiplier:    2,
		NightStartHour:     22,
		NightEndHour:       6,
		PatrolHighFactor:   0.8,
		PhonesFactor:       0.9,
		PoorLightingFactor: 1.15,
	}
}

func (c ScoringConfig) withDefaults() ScoringConfig {
	d := DefaultScoringConfig()
	if !c.Model.Valid() {
		c.Model = d.Model
	}
	if c.MaxDensity <= 0 {
		c.MaxDensity = d.MaxDensity
	}
	if c.RecentDays <= 0 {
		c.RecentDays = d.RecentDays
	}
	if c.RecentWeight <= 0 {
		c.RecentWeight = d.RecentWeight
	}
	if c.MidDays <= 0 {
		c.MidDays = d.MidDays
	}
	if c.MidWeight <= 0 {
		c.MidWeight = d.MidWeight
	}
	if c.OldWeight <= 0 {
		c.OldWeight = d.OldWeight
	}
	if c.IncidentPoints <= 0 {
		c.IncidentPoints = d.IncidentPoints
	}
	if c.NightMultiplier <= 0 {
		c.NightMultiplier = d.NightMultiplier
	}
	if c.NightStartHour <= 0 && c.NightEndHour <= 0 {
		c.NightStartHour, c.NightEndHour = d.NightStartHour, d.NightEndHour
	}
	if c.PatrolHighFactor <= 0 {
		c.PatrolHighFactor = d.PatrolHighFactor
	}
	if c.PhonesFactor <= 0 {
		c.PhonesFactor = d.PhonesFactor
	}
	if c.PoorLightingFactor <= 0 {
		c.PoorLightingFactor = d.PoorLightingFactor
	}
	return c
}

func isNight(hour, start, end int) bool {
	return hour >= start || hour < end
}

// Analyzer computes route safety analyses. It is stateless apart from its
// configuration and safe for concurrent use.
type Analyzer struct {
	cfg ScoringConfig
}

// NewAnalyzer creates an analyzer. Zero-valued fields of cfg take defaults.
func NewAnalyzer(cfg ScoringConfig) *Analyzer {
	return &Analyzer{cfg: cfg.withDefaults()}
}

// Config returns the effective scoring configuration.
func (a *Analyzer) Config() ScoringConfig {
	return a.cfg
}

// WithModel returns a copy of the analyzer using model m.
func (a *Analyzer) WithModel(m Model) *Analyzer {
	if !m.Valid() || m == a.cfg.Model {
		return a
	}
	cfg := a.cfg
	cfg.Model = m
	return &Analyzer{cfg: cfg}
}

// AnalyzeGeometry scores a route using its geodesic length.
func (a *Analyzer) AnalyzeGeometry(g spatial.Geometry, facts FactBundle, mode UserMode, now time.Time) Analysis {
	return a.Analyze(facts, mode, now, g.Length())
}

// Analyze scores a route of lengthM meters against facts at time now. The
// hour of now is read in now's own location. A non-positive length is
// treated as one meter.
func (a *Analyzer) Analyze(facts FactBundle, mode UserMode, now time.Time, lengthM float64) Analysis {
	lighting := facts.Lighting
	if lighting == "" {
		lighting = LightingModerate
	}
	patrol := facts.Patrol
	if patrol == "" {
		patrol = PatrolLow
	}

	var risk float64
	switch a.cfg.Model {
	case ModelAdditive:
		risk = a.additiveScore(facts.Incidents, facts.EmergencyPhones, lighting, patrol, now)
	default:
		risk = a.densityScore(facts.Incidents, facts.EmergencyPhones, lighting, patrol, now, lengthM)
	}
	risk = math.Round(math.Max(0, math.Min(risk, 100)))

	contributing := contributingFactors(facts.Incidents, facts.EmergencyPhones, lighting)
	if lengthM <= 0 {
		contributing = append(contributing, "Route length unavailable; scored as a one-meter route")
	}
	if facts.Degraded {
		contributing = append(contributing, degradedFactor)
	}

	incidents := facts.Incidents
	if incidents == nil {
		incidents = []Incident{}
	}

	return Analysis{
		RiskScore:           risk,
		RiskLevel:           LevelForScore(risk),
		IncidentCount:       len(facts.Incidents),
		RecentIncidents:     incidents,
		EmergencyPhones:     facts.EmergencyPhones,
		Lighting:            lighting,
		Patrol:              patrol,
		ActionableTips:      tipsFor(facts.Incidents, mode),
		Concerns:            concerns(facts.Incidents, lighting, patrol),
		Positives:           positives(facts.EmergencyPhones, facts.Incidents, patrol),
		ContributingFactors: contributing,
		ScoringModel:        a.cfg.Model,
		Degraded:            facts.Degraded,
	}
}

// temporalWeight returns the recency weight of an incident. Elapsed time is
// counted in whole days; boundaries belong to the more recent bucket.
func (a *Analyzer) temporalWeight(occurredAt, now time.Time) float64 {
	days := int(math.Floor(now.Sub(occurredAt).Hours() / 24))
	switch {
	case days <= a.cfg.RecentDays:
		return a.cfg.RecentWeight
	case days <= a.cfg.MidDays:
		return a.cfg.MidWeight
	default:
		return a.cfg.OldWeight
	}
}

func (a *Analyzer) timeMultiplier(now time.Time) float64 {
	if isNight(now.Hour(), a.cfg.NightStartHour, a.cfg.NightEndHour) {
		return a.cfg.NightMultiplier
	}
	return 1
}

func (a *Analyzer) weightedIncidents(incidents []Incident, now time.Time) float64 {
	mult := a.timeMultiplier(now)
	var total float64
	for _, inc := range incidents {
		total += a.cfg.IncidentPoints * a.temporalWeight(inc.OccurredAt, now) * mult
	}
	return total
}

func (a *Analyzer) densityScore(incidents []Incident, phones int, lighting Lighting, patrol Patrol, now time.Time, lengthM float64) float64 {
	density := a.weightedIncidents(incidents, now) / math.Max(lengthM, 1)
	risk := math.Min(density/a.cfg.MaxDensity, 1) * 100

	if patrol == PatrolHigh {
		risk *= a.cfg.PatrolHighFactor
	}
	if phones > 0 {
		risk *= a.cfg.PhonesFactor
	}
	if lighting == LightingPoor {
		risk *= a.cfg.PoorLightingFactor
	}
	return risk
}

func (a *Analyzer) additiveScore(incidents []Incident, phones int, lighting Lighting, patrol Patrol, now time.Time) float64 {
	return a.weightedIncidents(incidents, now) + InfrastructureAdjustment(phones, lighting, patrol).Total
}

// Adjustment is the additive model's infrastructure breakdown in points.
type Adjustment struct {
	Phones   float64 `json:"phones"`
	Lighting float64 `json:"lighting"`
	Patrol   float64 `json:"patrol"`
	Total    float64 `json:"total"`
}

// InfrastructureAdjustment returns the additive model's point adjustments.
// The phone term is always at least a 15 point credit.
func InfrastructureAdjustment(phones int, lighting Lighting, patrol Patrol) Adjustment {
	adj := Adjustment{Phones: math.Min(float64(phones)*-5, -15)}
	switch lighting {
	case LightingModerate:
		adj.Lighting = 5
	case LightingPoor:
		adj.Lighting = 10
	}
	switch patrol {
	case PatrolHigh:
		adj.Patrol = -10
	case PatrolLow:
		adj.Patrol = 5
	}
	adj.Total = adj.Phones + adj.Lighting + adj.Patrol
	return adj
}

// ParseModel parses a scoring model name.
func ParseModel(s string) (Model, error) {
	m := Model(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown scoring model %q", s)
	}
	return m, nil
}
