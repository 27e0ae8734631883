package safety

import (
	"fmt"
	"strings"
	"unicode"
)

const degradedFactor = "Safety data unavailable; score may be understated"

// countByWord counts incidents whose type contains each word, case-folded, so
// "Theft From Motor Vehicle" counts toward "theft". An incident counts once per
// word however often the word repeats in its type.
func countByWord(incidents []Incident) map[string]int {
	counts := make(map[string]int, len(incidents))
	for _, inc := range incidents {
		words := strings.FieldsFunc(strings.ToLower(inc.Type), func(r rune) bool {
			return !unicode.IsLetter(r)
		})
		seen := make(map[string]bool, len(words))
		for _, w := range words {
			if !seen[w] {
				seen[w] = true
				counts[w]++
			}
		}
	}
	return counts
}

// tipsFor returns the tips triggered by the incident mix for mode. Tips are
// additive; several may apply at once.
func tipsFor(incidents []Incident, mode UserMode) []Tip {
	tips := []Tip{}
	counts := countByWord(incidents)

	switch mode {
	case UserModeStudent:
		if counts["theft"] > 2 {
			tips = append(tips, Tip{
				Type:         TipAdvisory,
				Message:      "High theft reports in this area. Keep jewelry and phones hidden.",
				TriggerCrime: "Theft",
			})
		}
		if counts["assault"] > 0 || counts["kidnapping"] > 0 {
			tips = append(tips, Tip{
				Type:         TipWarning,
				Message:      "Recent assaults or kidnappings reported. Walk in groups and stay in well-lit areas.",
				TriggerCrime: "Assault or Kidnapping",
			})
		}
	case UserModeCommunity:
		if counts["burglary"] > 2 {
			tips = append(tips, Tip{
				Type:         TipAdvisory,
				Message:      "Residential burglary alerts in this zone. Ensure windows are locked.",
				TriggerCrime: "Burglary",
			})
		}
	}
	return tips
}

func concerns(incidents []Incident, lighting Lighting, patrol Patrol) []string {
	out := []string{}
	if len(incidents) > 0 {
		out = append(out, fmt.Sprintf("%d incidents reported nearby", len(incidents)))
	}
	if lighting == LightingPoor {
		out = append(out, "Poor lighting along the route")
	}
	if patrol == PatrolLow {
		out = append(out, "Low patrol frequency")
	}
	return out
}

func positives(phones int, incidents []Incident, patrol Patrol) []string {
	out := []string{}
	if phones > 0 {
		out = append(out, fmt.Sprintf("%d emergency call boxes along the route", phones))
	}
	if len(incidents) == 0 {
		out = append(out, "No recent incidents in the area")
	}
	if patrol == PatrolHigh {
		out = append(out, "High patrol frequency")
	}
	return out
}

func contributingFactors(incidents []Incident, phones int, lighting Lighting) []string {
	out := []string{}
	if len(incidents) > 0 {
		out = append(out, fmt.Sprintf("%d incidents within radius", len(incidents)))
	}
	if phones > 0 {
		out = append(out, fmt.Sprintf("%d emergency phones nearby", phones))
	}
	if lighting == LightingModerate {
		out = append(out, "Lighting data not available; assuming moderate")
	}
	return out
}
