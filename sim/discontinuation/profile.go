// Package discontinuation decides when patients stop active treatment and
// when stopped patients resume it.
package discontinuation

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category is one of the six mutually exclusive discontinuation types.
type Category string

const (
	StableMaxInterval      Category = "stable_max_interval"
	PoorResponse           Category = "poor_response"
	Premature              Category = "premature"
	SystemDiscontinuation  Category = "system_discontinuation"
	ReauthorizationFailure Category = "reauthorization_failure"
	Mortality              Category = "mortality"
)

// AllCategories lists every category a profile must configure.
var AllCategories = []Category{
	StableMaxInterval, PoorResponse, Premature, SystemDiscontinuation, ReauthorizationFailure, Mortality,
}

// DefaultPriority is the evaluation order; the first criterion to fire wins.
var DefaultPriority = []Category{
	Mortality, PoorResponse, SystemDiscontinuation, ReauthorizationFailure, Premature, StableMaxInterval,
}

// Terminal categories never allow retreatment.
func (c Category) Terminal() bool {
	return c == Mortality || c == PoorResponse
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range AllCategories {
		if k == c {
			return true
		}
	}
	return false
}

// requiredParams lists, per category, the parameters an enabled category
// must carry.
var requiredParams = map[Category][]string{
	StableMaxInterval:      {"consecutive_visits", "probability"},
	PoorResponse:           {"vision_threshold", "consecutive_visits"},
	Premature:              {"min_interval_weeks", "min_vision", "target_rate"},
	SystemDiscontinuation:  {"annual_probability"},
	ReauthorizationFailure: {"threshold_weeks", "probability"},
	Mortality:              {"annual_rate"},
}

// probabilityParams must lie in [0, 1].
var probabilityParams = map[string]bool{
	"probability": true, "target_rate": true, "annual_probability": true, "annual_rate": true,
}

// CategoryConfig is one category's enable flag and numeric parameters.
type CategoryConfig struct {
	Enabled bool               `yaml:"enabled"`
	Params  map[string]float64 `yaml:"params,omitempty"`
}

// RetreatmentConfig gates resumption of treatment.
type RetreatmentConfig struct {
	RequireFluid         bool    `yaml:"require_fluid_detection"`
	MinVisionLoss        float64 `yaml:"min_vision_loss_letters"`
	DetectionProbability float64 `yaml:"detection_probability"`
	Probability          float64 `yaml:"probability"`
}

// Profile is a named, versioned discontinuation configuration.
type Profile struct {
	Name                string                           `yaml:"name"`
	Version             string                           `yaml:"version"`
	Description         string                           `yaml:"description,omitempty"`
	Categories          map[Category]CategoryConfig      `yaml:"categories"`
	MonitoringSchedules map[Category][]int               `yaml:"monitoring_schedules"` // weeks after discontinuation
	Retreatment         RetreatmentConfig                `yaml:"retreatment"`
	RecurrenceRates     map[Category]map[float64]float64 `yaml:"recurrence_rates"` // year -> cumulative probability
	Priority            []Category                       `yaml:"priority,omitempty"` // empty, or every category once
}

// LoadProfile reads and parses a YAML profile.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading discontinuation profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile document.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing discontinuation profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that all six categories are present, that enabled
// categories carry their required parameters, and that schedules,
// retreatment settings and recurrence curves are well formed.
func (p *Profile) Validate() error {
	prefix := fmt.Sprintf("profile %q", p.Name)
	for _, c := range AllCategories {
		cfg, ok := p.Categories[c]
		if !ok {
			return fmt.Errorf("%s: missing category %q", prefix, c)
		}
		for name, v := range cfg.Params {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s: %s.%s must be finite, got %f", prefix, c, name, v)
			}
			if v < 0 {
				return fmt.Errorf("%s: %s.%s must be non-negative, got %f", prefix, c, name, v)
			}
			if probabilityParams[name] && v > 1 {
				return fmt.Errorf("%s: %s.%s must be a probability in [0, 1], got %f", prefix, c, name, v)
			}
		}
		if !cfg.Enabled {
			continue
		}
		for _, key := range requiredParams[c] {
			if _, ok := cfg.Params[key]; !ok {
				return fmt.Errorf("%s: enabled category %q requires parameter %q", prefix, c, key)
			}
		}
	}
	for c := range p.Categories {
		if !c.Valid() {
			return fmt.Errorf("%s: unknown category %q", prefix, c)
		}
	}
	for c, weeks := range p.MonitoringSchedules {
		if !c.Valid() {
			return fmt.Errorf("%s: monitoring schedule for unknown category %q", prefix, c)
		}
		for _, w := range weeks {
			if w <= 0 {
				return fmt.Errorf("%s: monitoring schedule %q has non-positive week offset %d", prefix, c, w)
			}
		}
	}
	r := p.Retreatment
	if r.MinVisionLoss < 0 {
		return fmt.Errorf("%s: retreatment min_vision_loss_letters must be non-negative", prefix)
	}
	if r.DetectionProbability < 0 || r.DetectionProbability > 1 || r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("%s: retreatment probabilities must be in [0, 1]", prefix)
	}
	for c, points := range p.RecurrenceRates {
		if !c.Valid() {
			return fmt.Errorf("%s: recurrence rates for unknown category %q", prefix, c)
		}
		if _, err := NewRecurrenceCurve(points); err != nil {
			return fmt.Errorf("%s: recurrence %q: %w", prefix, c, err)
		}
	}
	if len(p.Priority) > 0 {
		seen := make(map[Category]bool, len(p.Priority))
		for _, c := range p.Priority {
			if !c.Valid() || seen[c] {
				return fmt.Errorf("%s: priority must list each category exactly once, got %q", prefix, c)
			}
			seen[c] = true
		}
		for _, c := range AllCategories {
			if !seen[c] {
				return fmt.Errorf("%s: priority omits category %q", prefix, c)
			}
		}
	}
	return nil
}

// monitoringWeeks returns the sorted schedule for c.
func (p *Profile) monitoringWeeks(c Category) []int {
	weeks := append([]int(nil), p.MonitoringSchedules[c]...)
	sort.Ints(weeks)
	return weeks
}

// DefaultProfile is the "standard" clinical profile.
func DefaultProfile() Profile {
	return Profile{
		Name:        "standard",
		Version:     "1.0",
		Description: "Literature-calibrated discontinuation rates for treat-and-extend anti-VEGF therapy",
		Categories: map[Category]CategoryConfig{
			StableMaxInterval: {Enabled: true, Params: map[string]float64{
				"consecutive_visits": 3, "probability": 0.2,
			}},
			PoorResponse: {Enabled: true, Params: map[string]float64{
				"vision_threshold": 15, "consecutive_visits": 2,
			}},
			Premature: {Enabled: true, Params: map[string]float64{
				"min_interval_weeks": 8, "min_vision": 20, "target_rate": 0.145,
				"vision_loss_mean": 9.4, "vision_loss_std": 5.0,
			}},
			SystemDiscontinuation: {Enabled: true, Params: map[string]float64{
				"annual_probability": 0.05,
			}},
			ReauthorizationFailure: {Enabled: true, Params: map[string]float64{
				"threshold_weeks": 52, "probability": 0.1,
			}},
			Mortality: {Enabled: true, Params: map[string]float64{
				"annual_rate": 0.02,
			}},
		},
		MonitoringSchedules: map[Category][]int{
			StableMaxInterval:      {12, 24, 36},
			Premature:              {8, 16, 24},
			SystemDiscontinuation:  {12, 24},
			ReauthorizationFailure: {12, 24},
		},
		Retreatment: RetreatmentConfig{
			RequireFluid:         true,
			MinVisionLoss:        5,
			DetectionProbability: 0.87,
			Probability:          0.95,
		},
		RecurrenceRates: map[Category]map[float64]float64{
			StableMaxInterval:      {1: 0.13, 3: 0.40, 5: 0.65},
			Premature:              {1: 0.53, 3: 0.85, 5: 0.95},
			SystemDiscontinuation:  {1: 0.21, 3: 0.74, 5: 0.88},
			ReauthorizationFailure: {1: 0.21, 3: 0.74, 5: 0.88},
		},
	}
}

// DisabledProfile has every category present but switched off.
func DisabledProfile() Profile {
	p := Profile{Name: "disabled", Version: "1.0", Categories: map[Category]CategoryConfig{}}
	for _, c := range AllCategories {
		p.Categories[c] = CategoryConfig{}
	}
	return p
}
