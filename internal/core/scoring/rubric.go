package scoring

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rubric.yaml
var defaultRubricYAML []byte

// CriterionScope selects which speaker turns a criterion reads.
type CriterionScope string

const (
	ScopeRep CriterionScope = "rep"
	ScopeAll CriterionScope = "all"
)

// Metric names the numeric signals a threshold criterion can test.
type Metric string

const (
	MetricTalkRatio      Metric = "talk_ratio"
	MetricPace           Metric = "pace"
	MetricFillerRatio    Metric = "filler_ratio"
	MetricSentenceLength Metric = "sentence_length"
)

// Criterion is a single pass/fail test. Exactly one evaluation path
// applies: Always, a Metric threshold, or phrase matching. With phrase
// matching, any bad phrase fails the criterion regardless of good
// phrases; otherwise any good phrase passes it.
type Criterion struct {
	Name   string         `yaml:"name"`
	Note   string         `yaml:"note"`
	Scope  CriterionScope `yaml:"scope,omitempty"`
	Good   []string       `yaml:"good,omitempty"`
	Bad    []string       `yaml:"bad,omitempty"`
	Metric Metric         `yaml:"metric,omitempty"`
	Min    *float64       `yaml:"min,omitempty"`
	Max    *float64       `yaml:"max,omitempty"`
	// Below is the exclusive upper bound: the metric must stay
	// strictly under it. Max by contrast admits the bound itself.
	Below *float64 `yaml:"below,omitempty"`
	// Always marks a placeholder criterion that passes by construction
	// (pause timing cannot be derived from text alone).
	Always bool `yaml:"always,omitempty"`
}

// Dimension is one weighted skill area with an ordered criteria list.
type Dimension struct {
	ID       string      `yaml:"id"`
	Weight   float64     `yaml:"weight"`
	Label    string      `yaml:"label"`
	Criteria []Criterion `yaml:"criteria"`

	// Score-band feedback templates. NeedsWork receives the joined
	// labels of up to two unmet criteria via %s.
	Excellent string `yaml:"excellent"`
	Good      string `yaml:"good"`
	NeedsWork string `yaml:"needs_work"`
}

// Rubric is the full static scoring configuration. Immutable at
// runtime; loaded once at startup.
type Rubric struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

// Config is the on-disk rubric document: one default rubric plus
// optional per-scenario overrides.
type Config struct {
	Default   Rubric            `yaml:"default"`
	Scenarios map[string]Rubric `yaml:"scenarios,omitempty"`
}

// LoadConfig reads a rubric document from path, or the embedded default
// when path is empty.
func LoadConfig(path string) (*Config, error) {
	raw := defaultRubricYAML
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rubric file: %w", err)
		}
		raw = data
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse rubric yaml: %w", err)
	}
	if err := validateRubric(cfg.Default); err != nil {
		return nil, fmt.Errorf("default rubric: %w", err)
	}
	for name, rubric := range cfg.Scenarios {
		if err := validateRubric(rubric); err != nil {
			return nil, fmt.Errorf("scenario %q rubric: %w", name, err)
		}
	}
	return &cfg, nil
}

// For returns the rubric for a scenario type, falling back to the
// default when the scenario is unknown or empty.
func (c *Config) For(scenarioType string) Rubric {
	if rubric, ok := c.Scenarios[scenarioType]; ok {
		return rubric
	}
	return c.Default
}

func validateRubric(r Rubric) error {
	if len(r.Dimensions) == 0 {
		return fmt.Errorf("no dimensions defined")
	}

	sum := 0.0
	for _, dim := range r.Dimensions {
		if dim.ID == "" {
			return fmt.Errorf("dimension without id")
		}
		if dim.Weight <= 0 {
			return fmt.Errorf("dimension %s: weight must be positive", dim.ID)
		}
		if len(dim.Criteria) == 0 {
			return fmt.Errorf("dimension %s: no criteria", dim.ID)
		}
		for _, criterion := range dim.Criteria {
			if criterion.Name == "" {
				return fmt.Errorf("dimension %s: criterion without name", dim.ID)
			}
			if criterion.Metric != "" && criterion.Min == nil && criterion.Max == nil && criterion.Below == nil {
				return fmt.Errorf("dimension %s: criterion %s: metric without bounds", dim.ID, criterion.Name)
			}
		}
		sum += dim.Weight
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("dimension weights sum to %.4f, want 1.0", sum)
	}
	return nil
}

func (c Criterion) scope() CriterionScope {
	if c.Scope == ScopeAll {
		return ScopeAll
	}
	return ScopeRep
}
