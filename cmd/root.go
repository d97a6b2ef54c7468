package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/amd-sim/amd-sim/sim"
	"github.com/amd-sim/amd-sim/sim/discontinuation"
	"github.com/amd-sim/amd-sim/sim/heterogeneity"
	"github.com/amd-sim/amd-sim/sim/patient"
	"github.com/amd-sim/amd-sim/sim/protocol"
	"github.com/amd-sim/amd-sim/sim/trace"
)

var (
	// CLI flags shared by run and compare
	logLevel        string  // Log verbosity level
	engineName      string  // abs or des
	scenarioPath    string  // Scenario YAML; flags set explicitly override it
	profilePath     string  // Discontinuation profile YAML
	discontinue     bool    // Enable the built-in standard discontinuation profile
	seed            int64   // Master seed
	years           float64 // Simulated duration in years
	startDate       string  // Simulation epoch (YYYY-MM-DD)
	nPatients       int     // Fixed cohort size
	arrivalRate     float64 // Patients per week (Poisson)
	recruitmentDays int     // Fixed-cohort recruitment window in days
	progressionMode string  // time_based or per_visit
	tickDays        int     // Progression cadence in days
	noiseSD         float64 // Measurement noise SD in letters
	heterogeneous   bool    // Enable the default trajectory-class overlay
	traceLevel      string  // none or decisions
	visitMetadata   bool    // Stamp phase/interval/drug metadata on visits
	chartPath       string  // Write the mean-vision timeline PNG here

	// Protocol flags
	minInterval int // Minimum treat-and-extend interval in days
	maxInterval int // Maximum treat-and-extend interval in days
	extension   int // Interval extension step in days
	shortening  int // Interval shortening step in days
	fixedDays   int // Use a fixed-interval protocol with this interval instead
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "amd-sim",
	Short: "Patient-level simulator for neovascular AMD treatment protocols",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		if err := applyEnvOverrides(cmd.Flags()); err != nil {
			logrus.Fatalf("Invalid environment override: %v", err)
		}
	},
}

// runCmd executes one simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single simulation",
	Run: func(cmd *cobra.Command, args []string) {
		if !sim.IsValidEngine(engineName) {
			logrus.Fatalf("Unknown engine %q; valid: abs, des", engineName)
		}
		cfg, err := buildRunConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		logrus.Infof("Starting %s simulation: seed=%d, years=%g", engineName, cfg.Seed, cfg.DurationYears)
		startTime := time.Now()

		engine, err := sim.NewEngine(engineName, cfg)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		results, err := engine.Run()
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		results.Print()
		if chartPath != "" {
			if err := writeVisionChart(chartPath, results); err != nil {
				logrus.Fatalf("Chart failed: %v", err)
			}
		}

		logrus.Infof("Simulation complete in %s.", time.Since(startTime))
	},
}

// buildRunConfig starts from the scenario file (or built-in defaults) and
// applies every flag the user set explicitly.
func buildRunConfig(cmd *cobra.Command) (sim.RunConfig, error) {
	var cfg sim.RunConfig
	flags := cmd.Flags()
	if scenarioPath != "" {
		s, err := LoadScenario(scenarioPath)
		if err != nil {
			return cfg, err
		}
		if cfg, err = s.RunConfig(); err != nil {
			return cfg, err
		}
	} else {
		cfg = sim.RunConfig{
			Name:          "cli",
			Seed:          seed,
			DurationYears: years,
			Population:    sim.PopulationConfig{NPatients: sim.IntPtr(nPatients)},
		}
		proto, err := protocol.NewStandard(minInterval, maxInterval, extension, shortening)
		if err != nil {
			return cfg, err
		}
		cfg.Protocol = proto
	}

	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("years") {
		cfg.DurationYears = years
	}
	if flags.Changed("start-date") {
		start, err := parseDate(startDate)
		if err != nil {
			return cfg, err
		}
		cfg.StartDate = start
	}
	if flags.Changed("n-patients") {
		cfg.Population.NPatients = sim.IntPtr(nPatients)
		cfg.Population.PatientArrivalRate = nil
	}
	if flags.Changed("arrival-rate") {
		cfg.Population.PatientArrivalRate = sim.Float64Ptr(arrivalRate)
		if !flags.Changed("n-patients") {
			cfg.Population.NPatients = nil
		}
	}
	if flags.Changed("recruitment-days") {
		cfg.Population.RecruitmentDays = recruitmentDays
	}
	if flags.Changed("progression") {
		if !sim.IsValidProgressionMode(progressionMode) {
			return cfg, fmt.Errorf("unknown progression mode %q; valid: time_based, per_visit", progressionMode)
		}
		cfg.Progression.Mode = sim.ProgressionMode(progressionMode)
	}
	if flags.Changed("tick-days") {
		cfg.Progression.TickDays = tickDays
	}
	if flags.Changed("noise") {
		cfg.MeasurementNoiseSD = noiseSD
	}
	if flags.Changed("trace") {
		cfg.TraceLevel = trace.TraceLevel(traceLevel)
	}
	if fixedDays > 0 {
		proto, err := protocol.NewFixedInterval(fixedDays, protocol.DefaultConfig().Drug)
		if err != nil {
			return cfg, err
		}
		cfg.Protocol = proto
	} else if scenarioPath != "" && (flags.Changed("min-interval") || flags.Changed("max-interval") ||
		flags.Changed("extension") || flags.Changed("shortening")) {
		proto, err := protocol.NewStandard(minInterval, maxInterval, extension, shortening)
		if err != nil {
			return cfg, err
		}
		cfg.Protocol = proto
	}
	switch {
	case profilePath != "":
		profile, err := discontinuation.LoadProfile(profilePath)
		if err != nil {
			return cfg, err
		}
		cfg.Discontinuation = profile
	case discontinue:
		profile := discontinuation.DefaultProfile()
		cfg.Discontinuation = &profile
	}
	if heterogeneous && cfg.Heterogeneity == nil {
		het := heterogeneity.DefaultConfig()
		cfg.Heterogeneity = &het
	}
	if visitMetadata {
		cfg.Enhancers = append(cfg.Enhancers, patient.PhaseEnhancer)
	}
	return cfg, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// registerSimulationFlags adds the run parameters to a command.
func registerSimulationFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&scenarioPath, "scenario", "", "Scenario YAML file; explicitly set flags override it")
	flags.StringVar(&profilePath, "profile", "", "Discontinuation profile YAML file")
	flags.BoolVar(&discontinue, "discontinuation", false, "Enable the built-in standard discontinuation profile")
	flags.Int64Var(&seed, "seed", 42, "Master random seed")
	flags.Float64Var(&years, "years", 5, "Simulated duration in years")
	flags.StringVar(&startDate, "start-date", "", "Simulation start date (YYYY-MM-DD, default 2024-01-01)")
	flags.IntVar(&nPatients, "n-patients", 100, "Fixed cohort size")
	flags.Float64Var(&arrivalRate, "arrival-rate", 0, "Poisson enrollment rate in patients per week (replaces --n-patients)")
	flags.IntVar(&recruitmentDays, "recruitment-days", 0, "Recruitment window for a fixed cohort in days (0 = whole run)")
	flags.StringVar(&progressionMode, "progression", string(sim.ProgressionTimeBased), "Disease progression mode (time_based, per_visit)")
	flags.IntVar(&tickDays, "tick-days", sim.DefaultTickDays, "Progression cadence in days")
	flags.Float64Var(&noiseSD, "noise", 0, "Measurement noise SD in letters")
	flags.BoolVar(&heterogeneous, "heterogeneity", false, "Enable the default trajectory-class heterogeneity overlay")
	flags.StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions)")
	flags.BoolVar(&visitMetadata, "visit-metadata", false, "Stamp phase, interval and drug metadata on every visit")
	flags.StringVar(&chartPath, "chart", "", "Write a PNG of mean vision over time to this path")

	flags.IntVar(&minInterval, "min-interval", 28, "Minimum treat-and-extend interval in days")
	flags.IntVar(&maxInterval, "max-interval", 112, "Maximum treat-and-extend interval in days")
	flags.IntVar(&extension, "extension", 14, "Interval extension step in days")
	flags.IntVar(&shortening, "shortening", 14, "Interval shortening step in days")
	flags.IntVar(&fixedDays, "fixed-interval", 0, "Use a fixed-interval protocol with this interval in days")
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	registerSimulationFlags(runCmd)
	runCmd.Flags().StringVar(&engineName, "engine", sim.EngineABS, "Simulation engine (abs, des)")
	registerSimulationFlags(compareCmd)
	registerCompareFlags(compareCmd)
	registerConvertFlags(convertRateCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(convertRateCmd)
}
