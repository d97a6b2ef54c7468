package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	sim "github.com/amd-sim/amd-sim/sim"
	"github.com/amd-sim/amd-sim/sim/baseline"
	"github.com/amd-sim/amd-sim/sim/discontinuation"
	"github.com/amd-sim/amd-sim/sim/disease"
	"github.com/amd-sim/amd-sim/sim/heterogeneity"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/protocol"
	"github.com/amd-sim/amd-sim/sim/trace"
	"github.com/amd-sim/amd-sim/sim/vision"
)

// Scenario is the on-disk description of one run.
// All sections must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	Name          string  `yaml:"name"`
	Seed          int64   `yaml:"seed"`
	DurationYears float64 `yaml:"duration_years"`
	StartDate     string  `yaml:"start_date,omitempty"` // YYYY-MM-DD

	Population  PopulationSpec  `yaml:"population"`
	Progression ProgressionSpec `yaml:"progression,omitempty"`
	Protocol    ProtocolSpec    `yaml:"protocol"`
	Disease     *DiseaseSpec    `yaml:"disease,omitempty"`
	Baseline    *baseline.Spec  `yaml:"baseline,omitempty"`

	VisionReferenceDays int     `yaml:"vision_reference_days,omitempty"`
	MeasurementNoiseSD  float64 `yaml:"measurement_noise_sd,omitempty"`

	// DiscontinuationProfile is a profile YAML path, relative to the scenario file.
	DiscontinuationProfile string                `yaml:"discontinuation_profile,omitempty"`
	Heterogeneity          *heterogeneity.Config `yaml:"heterogeneity,omitempty"`

	TraceLevel    string `yaml:"trace_level,omitempty"`
	VisitMetadata bool   `yaml:"visit_metadata,omitempty"`

	scenarioDir string
}

// PopulationSpec sets exactly one of NPatients and PatientArrivalRate.
type PopulationSpec struct {
	NPatients          *int     `yaml:"n_patients,omitempty"`
	PatientArrivalRate *float64 `yaml:"patient_arrival_rate,omitempty"` // per week
	RecruitmentDays    int      `yaml:"recruitment_days,omitempty"`
}

type ProgressionSpec struct {
	Mode                string `yaml:"mode,omitempty"`
	TickDays            int    `yaml:"tick_days,omitempty"`
	TreatmentEffectDays int    `yaml:"treatment_effect_days,omitempty"`
}

// ProtocolSpec selects and parameterizes the treatment protocol.
type ProtocolSpec struct {
	Type                string `yaml:"type"` // "treat_and_extend" (default) or "fixed"
	Name                string `yaml:"name,omitempty"`
	Drug                string `yaml:"drug,omitempty"`
	MinIntervalDays     int    `yaml:"min_interval_days,omitempty"`
	MaxIntervalDays     int    `yaml:"max_interval_days,omitempty"`
	ExtensionDays       int    `yaml:"extension_days,omitempty"`
	ShorteningDays      int    `yaml:"shortening_days,omitempty"`
	LoadingDoses        *int   `yaml:"loading_doses,omitempty"`
	LoadingIntervalDays int    `yaml:"loading_interval_days,omitempty"`
	IntervalDays        int    `yaml:"interval_days,omitempty"` // fixed only
}

// DiseaseSpec holds transition tables keyed by state name.
type DiseaseSpec struct {
	Transitions          map[string]map[string]float64 `yaml:"transitions"`
	TreatedOverrides     map[string]map[string]float64 `yaml:"treated_overrides,omitempty"`
	TreatmentMultipliers map[string]map[string]float64 `yaml:"treatment_multipliers,omitempty"`
	EffectMode           string                        `yaml:"effect_mode,omitempty"`
	CalibrationDays      int                           `yaml:"calibration_days,omitempty"` // default 28
}

// LoadScenario reads a scenario YAML with strict field checking.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	s.scenarioDir = filepath.Dir(path)
	return s, nil
}

// ParseScenario decodes scenario YAML. Unknown keys are errors.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	return &s, nil
}

// RunConfig converts the scenario into engine configuration. Validation of
// the result is left to the engine constructors.
func (s *Scenario) RunConfig() (sim.RunConfig, error) {
	cfg := sim.RunConfig{
		Name:          s.Name,
		Seed:          s.Seed,
		DurationYears: s.DurationYears,
		Population: sim.PopulationConfig{
			NPatients:          s.Population.NPatients,
			PatientArrivalRate: s.Population.PatientArrivalRate,
			RecruitmentDays:    s.Population.RecruitmentDays,
		},
		Progression: sim.ProgressionConfig{
			Mode:                sim.ProgressionMode(s.Progression.Mode),
			TickDays:            s.Progression.TickDays,
			TreatmentEffectDays: s.Progression.TreatmentEffectDays,
		},
		MeasurementNoiseSD: s.MeasurementNoiseSD,
		Heterogeneity:      s.Heterogeneity,
		TraceLevel:         trace.TraceLevel(s.TraceLevel),
	}
	if s.StartDate != "" {
		start, err := parseDate(s.StartDate)
		if err != nil {
			return cfg, err
		}
		cfg.StartDate = start
	}

	proto, err := s.Protocol.build()
	if err != nil {
		return cfg, err
	}
	cfg.Protocol = proto

	if s.Disease != nil {
		cfg.Disease, err = s.Disease.build()
		if err != nil {
			return cfg, err
		}
	}
	if s.Baseline != nil {
		cfg.Baseline = *s.Baseline
	}
	if s.VisionReferenceDays > 0 {
		cfg.Vision = vision.NewModel(s.VisionReferenceDays)
	}
	if s.DiscontinuationProfile != "" {
		path := s.DiscontinuationProfile
		if !filepath.IsAbs(path) && s.scenarioDir != "" {
			path = filepath.Join(s.scenarioDir, path)
		}
		profile, err := discontinuation.LoadProfile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Discontinuation = profile
	}
	if s.VisitMetadata {
		cfg.Enhancers = []patient.Enhancer{patient.PhaseEnhancer}
	}
	return cfg, nil
}

func (p ProtocolSpec) build() (protocol.Protocol, error) {
	switch p.Type {
	case "", "treat_and_extend":
		cfg := protocol.DefaultConfig()
		if p.Name != "" {
			cfg.Name = p.Name
		}
		if p.Drug != "" {
			cfg.Drug = p.Drug
		}
		if p.MinIntervalDays > 0 {
			cfg.MinIntervalDays = p.MinIntervalDays
		}
		if p.MaxIntervalDays > 0 {
			cfg.MaxIntervalDays = p.MaxIntervalDays
		}
		if p.ExtensionDays > 0 {
			cfg.ExtensionDays = p.ExtensionDays
		}
		if p.ShorteningDays > 0 {
			cfg.ShorteningDays = p.ShorteningDays
		}
		if p.LoadingDoses != nil {
			cfg.LoadingDoses = *p.LoadingDoses
		}
		if p.LoadingIntervalDays > 0 {
			cfg.LoadingIntervalDays = p.LoadingIntervalDays
		}
		return protocol.NewTreatAndExtend(cfg)
	case "fixed":
		drug := p.Drug
		if drug == "" {
			drug = protocol.DefaultConfig().Drug
		}
		return protocol.NewFixedInterval(p.IntervalDays, drug)
	default:
		return nil, fmt.Errorf("unknown protocol type %q; valid: treat_and_extend, fixed", p.Type)
	}
}

func (d DiseaseSpec) build() (disease.Config, error) {
	cfg := disease.Config{
		EffectMode:      disease.EffectMode(d.EffectMode),
		CalibrationDays: d.CalibrationDays,
	}
	if cfg.CalibrationDays == 0 {
		cfg.CalibrationDays = disease.DefaultCalibrationDays
	}
	var err error
	if cfg.Transitions, err = parseTable(d.Transitions); err != nil {
		return cfg, fmt.Errorf("transitions: %w", err)
	}
	if cfg.Transitions == nil {
		cfg.Transitions = disease.DefaultTransitions()
	}
	if cfg.TreatedOverrides, err = parseTable(d.TreatedOverrides); err != nil {
		return cfg, fmt.Errorf("treated_overrides: %w", err)
	}
	if cfg.TreatmentMultipliers, err = parseTable(d.TreatmentMultipliers); err != nil {
		return cfg, fmt.Errorf("treatment_multipliers: %w", err)
	}
	return cfg, nil
}

// parseTable converts a name-keyed table. A nil input yields nil.
func parseTable(raw map[string]map[string]float64) (disease.TransitionTable, error) {
	if raw == nil {
		return nil, nil
	}
	table := make(disease.TransitionTable, len(raw))
	for from, row := range raw {
		src, err := disease.ParseState(from)
		if err != nil {
			return nil, err
		}
		dist := make(disease.Distribution, len(row))
		for to, p := range row {
			dst, err := disease.ParseState(to)
			if err != nil {
				return nil, err
			}
			dist[dst] = p
		}
		table[src] = dist
	}
	return table, nil
}
