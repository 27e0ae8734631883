// Package ranking orders candidate routes by the user's priority and derives
// the comparison metrics and explanation text shown with each route.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

var (
	// ErrMismatchedInputs indicates routes and analyses differ in length.
	ErrMismatchedInputs = errors.New("routes and analyses differ in length")
	// ErrNoCandidates indicates there is nothing to rank.
	ErrNoCandidates = errors.New("no candidate routes to rank")
	// ErrInvalidPriority indicates an unknown priority name.
	ErrInvalidPriority = errors.New("invalid priority")
)

// Priority is the user's ranking preference.
type Priority string

const (
	PrioritySafety   Priority = "safety"
	PrioritySpeed    Priority = "speed"
	PriorityBalanced Priority = "balanced"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PrioritySafety, PrioritySpeed, PriorityBalanced:
		return true
	}
	return false
}

// ParsePriority parses a priority name. The empty string means safety.
func ParsePriority(s string) (Priority, error) {
	if s == "" {
		return PrioritySafety, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// Weights tunes balanced ranking and the night window.
type Weights struct {
	Risk     float64 `yaml:"risk"`
	Duration float64 `yaml:"duration"`

	// The night window is not configured here. Callers copy it from the
	// scoring config so the night multiplier and the night override agree.
	NightStartHour int `yaml:"-"`
	NightEndHour   int `yaml:"-"`
}

// DefaultWeights returns a 60/40 risk/duration blend with night from 22:00
// to 06:00.
func DefaultWeights() Weights {
	return Weights{Risk: 0.6, Duration: 0.4, NightStartHour: 22, NightEndHour: 6}
}

func (w Weights) withDefaults() Weights {
	d := DefaultWeights()
	if w.Risk == 0 && w.Duration == 0 {
		w.Risk, w.Duration = d.Risk, d.Duration
	}
	if w.NightStartHour == 0 && w.NightEndHour == 0 {
		w.NightStartHour, w.NightEndHour = d.NightStartHour, d.NightEndHour
	}
	return w
}

// RankedRoute is a candidate route with its analysis and metrics relative
// to the fastest candidate.
type RankedRoute struct {
	Rank                     int             `json:"rank"`
	Route                    routing.Route   `json:"route"`
	SafetyAnalysis           safety.Analysis `json:"safetyAnalysis"`
	DurationMinutes          int             `json:"durationMinutes"`
	DistanceMeters           int             `json:"distanceMeters"`
	SafetyImprovementPercent int             `json:"safetyImprovementPercent"`
	TimeTradeoffMinutes      int             `json:"timeTradeoffMinutes"`
	Explanation              string          `json:"explanation"`
}

// Ranker orders routes. It is stateless and safe for concurrent use.
type Ranker struct {
	w Weights
}

// NewRanker creates a ranker. Zero-valued weights take defaults.
func NewRanker(w Weights) *Ranker {
	return &Ranker{w: w.withDefaults()}
}

// EffectivePriority applies the night override: outside daylight hours any
// priority other than speed becomes safety.
func (r *Ranker) EffectivePriority(p Priority, hour int) Priority {
	night := hour >= r.w.NightStartHour || hour < r.w.NightEndHour
	if night && p != PrioritySpeed {
		return PrioritySafety
	}
	return p
}

// Rank returns candidate indices in recommended order. Ties keep input order.
func (r *Ranker) Rank(routes []routing.Route, analyses []safety.Analysis, p Priority, hour int) ([]int, error) {
	if len(routes) != len(analyses) {
		return nil, fmt.Errorf("%w: %d routes, %d analyses", ErrMismatchedInputs, len(routes), len(analyses))
	}
	if len(routes) == 0 {
		return nil, ErrNoCandidates
	}

	var key func(i int) float64
	switch r.EffectivePriority(p, hour) {
	case PrioritySpeed:
		key = func(i int) float64 { return routes[i].DurationSeconds }
	case PriorityBalanced:
		maxRisk, maxDuration := 0.0, 0.0
		for i := range routes {
			maxRisk = math.Max(maxRisk, analyses[i].RiskScore)
			maxDuration = math.Max(maxDuration, routes[i].DurationSeconds)
		}
		if maxRisk == 0 {
			maxRisk = 1
		}
		if maxDuration == 0 {
			maxDuration = 1
		}
		key = func(i int) float64 {
			return r.w.Risk*analyses[i].RiskScore/maxRisk + r.w.Duration*routes[i].DurationSeconds/maxDuration
		}
	default:
		key = func(i int) float64 { return analyses[i].RiskScore }
	}

	order := make([]int, len(routes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return key(order[a]) < key(order[b])
	})
	return order, nil
}

// Build materializes ranked routes in the given order. Metrics compare each
// route with the fastest candidate by raw duration.
func (r *Ranker) Build(routes []routing.Route, analyses []safety.Analysis, order []int) ([]RankedRoute, error) {
	if len(routes) != len(analyses) {
		return nil, fmt.Errorf("%w: %d routes, %d analyses", ErrMismatchedInputs, len(routes), len(analyses))
	}
	if len(routes) == 0 {
		return nil, ErrNoCandidates
	}

	fastest := 0
	for i := range routes {
		if routes[i].DurationSeconds < routes[fastest].DurationSeconds {
			fastest = i
		}
	}
	fastDuration := routes[fastest].DurationSeconds
	fastRisk := analyses[fastest].RiskScore

	ranked := make([]RankedRoute, 0, len(order))
	for pos, idx := range order {
		if idx < 0 || idx >= len(routes) {
			return nil, fmt.Errorf("%w: order index %d out of range", ErrMismatchedInputs, idx)
		}
		route, analysis := routes[idx], analyses[idx]

		tradeoff := roundInt((route.DurationSeconds - fastDuration) / 60)
		improvement := 0
		if fastRisk > 0 {
			improvement = roundInt((fastRisk - analysis.RiskScore) / fastRisk * 100)
		}

		ranked = append(ranked, RankedRoute{
			Rank:                     pos + 1,
			Route:                    route,
			SafetyAnalysis:           analysis,
			DurationMinutes:          roundInt(route.DurationSeconds / 60),
			DistanceMeters:           roundInt(route.DistanceMeters),
			SafetyImprovementPercent: improvement,
			TimeTradeoffMinutes:      tradeoff,
			Explanation:              Explanation(analysis, tradeoff),
		})
	}
	return ranked, nil
}

// RankCandidates ranks and builds in one step.
func (r *Ranker) RankCandidates(routes []routing.Route, analyses []safety.Analysis, p Priority, hour int) ([]RankedRoute, error) {
	order, err := r.Rank(routes, analyses, p, hour)
	if err != nil {
		return nil, err
	}
	return r.Build(routes, analyses, order)
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
