package ranking

import (
	"fmt"
	"math"

	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
)

// Explanation summarizes a route's rating for display.
func Explanation(a safety.Analysis, tradeoffMinutes int) string {
	incidents := "no recent incidents"
	if a.IncidentCount > 0 {
		incidents = fmt.Sprintf("%d incidents", a.IncidentCount)
	}
	phones := "no emergency phones"
	if a.EmergencyPhones > 0 {
		phones = fmt.Sprintf("%d emergency phones", a.EmergencyPhones)
	}

	text := fmt.Sprintf("This route is rated %s. It passes %s and has %s.", a.RiskLevel, incidents, phones)
	if tradeoffMinutes > 0 {
		text += fmt.Sprintf(" It adds about %d minutes compared to the fastest option.", tradeoffMinutes)
	}
	return text
}

// Comparison describes the primary recommendation against the fastest path.
func Comparison(ranked []RankedRoute) string {
	if len(ranked) < 2 {
		return "This is the only available route."
	}
	primary := ranked[0]
	return fmt.Sprintf("The recommended route is about %d minutes slower but %d%% safer than the fastest path.",
		primary.TimeTradeoffMinutes, primary.SafetyImprovementPercent)
}

// DedupeIncidents drops incidents whose ID was already seen, keeping the
// first occurrence.
func DedupeIncidents(incidents []safety.Incident) []safety.Incident {
	seen := make(map[string]struct{}, len(incidents))
	out := make([]safety.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if _, ok := seen[inc.ID]; ok {
			continue
		}
		seen[inc.ID] = struct{}{}
		out = append(out, inc)
	}
	return out
}

// DedupePhones drops phone locations equal to an earlier one at six decimal
// places.
func DedupePhones(phones []spatial.Coordinate) []spatial.Coordinate {
	type key struct{ lat, lon int64 }
	seen := make(map[key]struct{}, len(phones))
	out := make([]spatial.Coordinate, 0, len(phones))
	for _, p := range phones {
		k := key{int64(math.Round(p.Lat * 1e6)), int64(math.Round(p.Lon * 1e6))}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
