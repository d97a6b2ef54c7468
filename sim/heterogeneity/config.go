// Package heterogeneity layers patient-level variation in treatment response
// onto either engine. Patients are assigned to trajectory classes and carry
// individually sampled multipliers in patient.Characteristics.
package heterogeneity

import (
	"fmt"
	"math"
)

// DefaultPoolSize is the number of pre-sampled values per class parameter.
const DefaultPoolSize = 1000

// ParamDist is a normal distribution truncated to [Min, Max].
type ParamDist struct {
	Mean float64 `yaml:"mean"`
	Std  float64 `yaml:"std"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

func (d ParamDist) validate(name string) error {
	if d.Std < 0 {
		return fmt.Errorf("%s: std must be non-negative, got %f", name, d.Std)
	}
	if d.Min > d.Max {
		return fmt.Errorf("%s: min %f exceeds max %f", name, d.Min, d.Max)
	}
	if d.Mean < d.Min || d.Mean > d.Max {
		return fmt.Errorf("%s: mean %f outside [%f, %f]", name, d.Mean, d.Min, d.Max)
	}
	return nil
}

// Class is one trajectory class.
type Class struct {
	Name                  string    `yaml:"name"`
	Proportion            float64   `yaml:"proportion"`
	ResponseMultiplier    ParamDist `yaml:"response_multiplier"`
	ProgressionMultiplier ParamDist `yaml:"progression_multiplier"`
	CatastrophicRisk      float64   `yaml:"catastrophic_annual_risk"`
}

// Catastrophic configures sudden large vision losses.
type Catastrophic struct {
	LossMean float64 `yaml:"loss_mean_letters"`
	LossStd  float64 `yaml:"loss_std_letters"`
}

// Config describes the heterogeneity overlay.
type Config struct {
	Classes      []Class      `yaml:"classes"`
	Catastrophic Catastrophic `yaml:"catastrophic"`
	PoolSize     int          `yaml:"pool_size,omitempty"`
}

// Validate checks class proportions sum to 1 and that every distribution
// is well formed.
func (c Config) Validate() error {
	if len(c.Classes) == 0 {
		return fmt.Errorf("heterogeneity requires at least one trajectory class")
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("pool_size must be non-negative, got %d", c.PoolSize)
	}
	total := 0.0
	seen := make(map[string]bool, len(c.Classes))
	for _, cl := range c.Classes {
		if cl.Name == "" {
			return fmt.Errorf("trajectory class with empty name")
		}
		if seen[cl.Name] {
			return fmt.Errorf("duplicate trajectory class %q", cl.Name)
		}
		seen[cl.Name] = true
		if cl.Proportion < 0 {
			return fmt.Errorf("class %q: proportion must be non-negative", cl.Name)
		}
		if cl.CatastrophicRisk < 0 || cl.CatastrophicRisk > 1 {
			return fmt.Errorf("class %q: catastrophic_annual_risk must be in [0, 1]", cl.Name)
		}
		if err := cl.ResponseMultiplier.validate(cl.Name + ".response_multiplier"); err != nil {
			return err
		}
		if err := cl.ProgressionMultiplier.validate(cl.Name + ".progression_multiplier"); err != nil {
			return err
		}
		total += cl.Proportion
	}
	if math.Abs(total-1) > 1e-6 {
		return fmt.Errorf("trajectory class proportions sum to %f, want 1", total)
	}
	if c.Catastrophic.LossMean < 0 || c.Catastrophic.LossStd < 0 {
		return fmt.Errorf("catastrophic loss parameters must be non-negative")
	}
	return nil
}

// DefaultConfig is a three-class overlay: good, average and poor responders.
func DefaultConfig() Config {
	return Config{
		Classes: []Class{
			{
				Name: "good_responder", Proportion: 0.3,
				ResponseMultiplier:    ParamDist{Mean: 1.3, Std: 0.2, Min: 0.8, Max: 2.0},
				ProgressionMultiplier: ParamDist{Mean: 0.7, Std: 0.15, Min: 0.3, Max: 1.0},
				CatastrophicRisk:      0.005,
			},
			{
				Name: "average_responder", Proportion: 0.5,
				ResponseMultiplier:    ParamDist{Mean: 1.0, Std: 0.15, Min: 0.5, Max: 1.5},
				ProgressionMultiplier: ParamDist{Mean: 1.0, Std: 0.15, Min: 0.5, Max: 1.5},
				CatastrophicRisk:      0.01,
			},
			{
				Name: "poor_responder", Proportion: 0.2,
				ResponseMultiplier:    ParamDist{Mean: 0.6, Std: 0.2, Min: 0.1, Max: 1.0},
				ProgressionMultiplier: ParamDist{Mean: 1.5, Std: 0.3, Min: 1.0, Max: 2.5},
				CatastrophicRisk:      0.03,
			},
		},
		Catastrophic: Catastrophic{LossMean: 20, LossStd: 10},
		PoolSize:     DefaultPoolSize,
	}
}
