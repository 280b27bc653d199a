package domain

// CriterionResult is one pass/fail check inside a dimension.
type CriterionResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Note   string `json:"note"`
}

// DimensionScore is one scored skill area on a 0-10 scale.
type DimensionScore struct {
	Dimension string            `json:"dimension"`
	Score     int               `json:"score"`
	Feedback  string            `json:"feedback"`
	Criteria  []CriterionResult `json:"criteria"`
}

// ScoringResult is the full explainable analysis of one call.
type ScoringResult struct {
	OverallScore int              `json:"overall_score"`
	Dimensions   []DimensionScore `json:"dimensions"`
	Strengths    []string         `json:"strengths"`
	Improvements []string         `json:"improvements"`
	Summary      string           `json:"summary"`
}
