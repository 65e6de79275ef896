package impact

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// CategoryStats aggregates impact across every analyzed event in a category.
// Only results with a resolved baseline tier contribute to the mean.
type CategoryStats struct {
	Category          string  `json:"category"`
	Events            int     `json:"events"`
	MeanImpactMinutes float64 `json:"mean_impact_minutes"`
}

// Summary is the analyze-everything view over all events with samples.
type Summary struct {
	Results        []model.ImpactResult   `json:"results"`
	Categories     []CategoryStats        `json:"categories"`
	SeverityCounts map[model.Severity]int `json:"severity_counts"`
	ComputedAt     time.Time              `json:"computed_at"`
}

// ComputeAll runs Compute for every occurrence with at least one linked
// sample and rolls the results into per-category and severity aggregates.
func (e *Engine) ComputeAll(ctx context.Context) (*Summary, error) {
	ids, err := e.store.ListEventsWithSamples(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "impact: list events with samples")
	}

	summary := &Summary{
		SeverityCounts: map[model.Severity]int{},
		ComputedAt:     time.Now().UTC(),
	}

	type catAgg struct {
		sum float64
		n   int
	}
	byCategory := map[string]*catAgg{}

	for _, id := range ids {
		result, err := e.Compute(ctx, id)
		if err != nil {
			return nil, err
		}
		summary.Results = append(summary.Results, *result)
		summary.SeverityCounts[result.Severity]++

		if result.Tier == model.TierNone {
			continue
		}
		cat := result.Category
		if cat == "" {
			cat = "uncategorized"
		}
		agg := byCategory[cat]
		if agg == nil {
			agg = &catAgg{}
			byCategory[cat] = agg
		}
		agg.sum += result.ImpactMinutes
		agg.n++
	}

	for cat, agg := range byCategory {
		summary.Categories = append(summary.Categories, CategoryStats{
			Category:          cat,
			Events:            agg.n,
			MeanImpactMinutes: round2(agg.sum / float64(agg.n)),
		})
	}
	sort.Slice(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Category < summary.Categories[j].Category
	})

	return summary, nil
}
