package scoring

import (
	"math"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

// Engine evaluates transcripts against a rubric. Analyze is pure: no
// I/O, no randomness, identical inputs always yield identical results.
type Engine struct {
	config *Config
}

func NewEngine(config *Config) *Engine {
	return &Engine{config: config}
}

// Analyze scores a transcript. The caller is responsible for rejecting
// conversations that are too short to score; Analyze itself never
// fails on thin input, it just scores what is there.
func (e *Engine) Analyze(transcript []domain.TranscriptEntry, durationSeconds float64, scenarioType string) (*domain.ScoringResult, error) {
	rubric := e.config.For(scenarioType)
	convo := newConversation(transcript, durationSeconds)

	result := &domain.ScoringResult{
		Dimensions:   make([]domain.DimensionScore, 0, len(rubric.Dimensions)),
		Strengths:    []string{},
		Improvements: []string{},
	}

	overall := 0.0
	for _, dim := range rubric.Dimensions {
		score := scoreDimension(dim, convo)
		overall += float64(score.Score) * dim.Weight * 10
		result.Dimensions = append(result.Dimensions, score)
	}
	result.OverallScore = int(math.Round(overall))

	result.Strengths = collectStrengths(result.Dimensions)
	result.Improvements = collectImprovements(result.Dimensions)
	result.Summary = buildSummary(result.Dimensions)
	return result, nil
}

// scoreDimension evaluates every criterion in order and derives the
// unweighted 0-10 dimension score. No partial credit per criterion.
func scoreDimension(dim Dimension, convo conversation) domain.DimensionScore {
	criteria := make([]domain.CriterionResult, 0, len(dim.Criteria))
	passed := 0
	for _, criterion := range dim.Criteria {
		ok := evaluateCriterion(criterion, convo)
		if ok {
			passed++
		}
		criteria = append(criteria, domain.CriterionResult{
			Name:   criterion.Name,
			Passed: ok,
			Note:   criterion.Note,
		})
	}

	score := int(math.Round(10 * ratio(float64(passed), float64(len(dim.Criteria)))))
	return domain.DimensionScore{
		Dimension: dim.ID,
		Score:     score,
		Feedback:  dimensionFeedback(dim, score, criteria),
		Criteria:  criteria,
	}
}

func evaluateCriterion(criterion Criterion, convo conversation) bool {
	if criterion.Always {
		return true
	}

	if criterion.Metric != "" {
		value := convo.metric(criterion.Metric)
		if criterion.Min != nil && value < *criterion.Min {
			return false
		}
		if criterion.Max != nil && value > *criterion.Max {
			return false
		}
		if criterion.Below != nil && value >= *criterion.Below {
			return false
		}
		return true
	}

	text := convo.text(criterion.scope())
	for _, phrase := range criterion.Bad {
		if containsPhrase(text, phrase) {
			return false
		}
	}
	if len(criterion.Good) == 0 {
		return true
	}
	for _, phrase := range criterion.Good {
		if containsPhrase(text, phrase) {
			return true
		}
	}
	return false
}
