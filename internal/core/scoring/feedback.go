package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

const (
	maxStrengths    = 5
	maxImprovements = 5

	strongDimensionScore = 7
)

// dimensionFeedback selects the templated sentence by score band:
// >=8 excellent, >=6 good with one focus area, <6 needs work citing up
// to two unmet criteria.
func dimensionFeedback(dim Dimension, score int, criteria []domain.CriterionResult) string {
	switch {
	case score >= 8:
		return dim.Excellent
	case score >= 6:
		return dim.Good
	default:
		missed := make([]string, 0, 2)
		for _, criterion := range criteria {
			if criterion.Passed {
				continue
			}
			missed = append(missed, humanize(criterion.Name))
			if len(missed) == 2 {
				break
			}
		}
		if len(missed) == 0 {
			return dim.Good
		}
		return fmt.Sprintf(dim.NeedsWork, strings.Join(missed, " and "))
	}
}

// collectStrengths gathers notes from passed criteria in dimensions
// scoring at least 7, in rubric order, capped at 5.
func collectStrengths(dimensions []domain.DimensionScore) []string {
	out := []string{}
	for _, dim := range dimensions {
		if dim.Score < strongDimensionScore {
			continue
		}
		for _, criterion := range dim.Criteria {
			if !criterion.Passed || len(out) == maxStrengths {
				continue
			}
			out = append(out, criterion.Note)
		}
	}
	return out
}

// collectImprovements gathers notes from failed criteria in dimensions
// scoring below 7, in rubric order, capped at 5.
func collectImprovements(dimensions []domain.DimensionScore) []string {
	out := []string{}
	for _, dim := range dimensions {
		if dim.Score >= strongDimensionScore {
			continue
		}
		for _, criterion := range dim.Criteria {
			if criterion.Passed || len(out) == maxImprovements {
				continue
			}
			out = append(out, criterion.Note)
		}
	}
	return out
}

// buildSummary names the best and worst dimension. The sort is stable
// so equal scores keep rubric order, keeping the output deterministic.
func buildSummary(dimensions []domain.DimensionScore) string {
	if len(dimensions) == 0 {
		return ""
	}

	ranked := make([]domain.DimensionScore, len(dimensions))
	copy(ranked, dimensions)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	best := ranked[0]
	worst := ranked[len(ranked)-1]
	return fmt.Sprintf("Strongest area: %s (%d/10). Biggest opportunity: %s (%d/10).",
		humanize(best.Dimension), best.Score, humanize(worst.Dimension), worst.Score)
}

func humanize(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}
