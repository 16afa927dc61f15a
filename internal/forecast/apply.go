package forecast

import (
	"fmt"
	"strings"

	"github.com/costlens/backend/internal/model"
)

// Apply evaluates a scenario's adjustments against a baseline forecast. It is
// pure: the same inputs always produce the same output and base is never
// mutated. serviceBaselines supplies the projected per-month cost of each
// service named by a removal adjustment; a missing entry makes that removal
// a no-op.
func Apply(base []model.MonthlyForecast, scenario *model.ForecastScenario, serviceBaselines map[string][]float64) ([]model.MonthlyForecast, string) {
	out := make([]model.MonthlyForecast, len(base))
	copy(out, base)

	if scenario == nil || len(scenario.Adjustments) == 0 {
		return out, noAdjustmentsNarrative
	}

	var applied []string
	for _, adj := range scenario.Adjustments {
		first, last := monthSpan(adj, len(out))
		if first > last {
			continue
		}
		switch adj.Kind {
		case model.AdjustPercent:
			for i := first; i <= last; i++ {
				out[i].Cost *= 1 + adj.Value/100
				if out[i].Cost < 0 {
					out[i].Cost = 0
				}
			}
			applied = append(applied, fmt.Sprintf("%+.1f%% %s", adj.Value, spanLabel(first, last, len(out))))
		case model.AdjustFixed:
			for i := first; i <= last; i++ {
				out[i].Cost += adj.Value
				if out[i].Cost < 0 {
					out[i].Cost = 0
				}
			}
			applied = append(applied, fmt.Sprintf("%+.2f/month %s", adj.Value, spanLabel(first, last, len(out))))
		case model.AdjustRemove:
			costs, ok := serviceBaselines[adj.Service]
			if !ok {
				continue
			}
			for i := first; i <= last && i < len(costs); i++ {
				out[i].Cost -= costs[i]
				if out[i].Cost < 0 {
					out[i].Cost = 0
				}
			}
			applied = append(applied, fmt.Sprintf("removed %s %s", adj.Service, spanLabel(first, last, len(out))))
		}
	}

	// Every adjustment may have been skipped (unknown service, out-of-range
	// month span); that leaves the baseline untouched.
	if len(applied) == 0 {
		return out, noAdjustmentsNarrative
	}
	return out, narrative(base, out, applied)
}

const noAdjustmentsNarrative = "No adjustments applied; scenario matches the baseline forecast."

// monthSpan converts an adjustment's 1-based month scope into slice bounds.
// Zero values mean the whole horizon.
func monthSpan(adj model.ScenarioAdjustment, months int) (int, int) {
	first, last := 0, months-1
	if adj.StartMonth > 0 {
		first = adj.StartMonth - 1
	}
	if adj.EndMonth > 0 && adj.EndMonth-1 < last {
		last = adj.EndMonth - 1
	}
	if first >= months {
		return 1, 0
	}
	return first, last
}

func spanLabel(first, last, months int) string {
	if first == 0 && last == months-1 {
		return "across all months"
	}
	if first == last {
		return fmt.Sprintf("in month %d", first+1)
	}
	return fmt.Sprintf("months %d-%d", first+1, last+1)
}

func narrative(base, adjusted []model.MonthlyForecast, applied []string) string {
	var baseTotal, adjTotal float64
	for i := range base {
		baseTotal += base[i].Cost
		adjTotal += adjusted[i].Cost
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Applied %d adjustment(s): %s.", len(applied), strings.Join(applied, "; "))
	delta := adjTotal - baseTotal
	if baseTotal > 0 {
		fmt.Fprintf(&b, " Net effect over %d month(s): %+.2f (%+.1f%%), from %.2f to %.2f.",
			len(base), delta, delta/baseTotal*100, baseTotal, adjTotal)
	} else {
		fmt.Fprintf(&b, " Net effect over %d month(s): %+.2f.", len(base), delta)
	}
	return b.String()
}
