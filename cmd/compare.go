package cmd

import (
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/amd-sim/amd-sim/sim"
)

var (
	injectionTolerance float64 // Max relative difference in total injections
	visionTolerance    float64 // Max absolute difference in mean final vision (letters)
	discRateTolerance  float64 // Max absolute difference in discontinuation rate (fraction)
)

// Tolerances bound the ABS/DES disagreement a comparison accepts.
type Tolerances struct {
	Injection float64 // relative
	Vision    float64 // letters
	DiscRate  float64 // absolute fraction of patients
}

// DefaultTolerances are 10% injections, 2 letters and 5 percentage points.
func DefaultTolerances() Tolerances {
	return Tolerances{Injection: 0.10, Vision: 2.0, DiscRate: 0.05}
}

// Comparison cross-validates an ABS run against a DES run of the same configuration.
type Comparison struct {
	ABS, DES *sim.SimulationResults

	InjectionRelDiff float64 // |abs - des| / max(abs, des)
	VisionDiff       float64 // |abs - des| in letters
	DiscRateDiff     float64 // |abs - des| as a fraction of patients

	Tolerances Tolerances
}

// Within reports whether every headline metric agrees within tolerance.
func (c Comparison) Within() bool {
	return c.InjectionRelDiff <= c.Tolerances.Injection &&
		c.VisionDiff <= c.Tolerances.Vision &&
		c.DiscRateDiff <= c.Tolerances.DiscRate
}

// compareResults computes the agreement between two runs.
func compareResults(abs, des *sim.SimulationResults, tol Tolerances) Comparison {
	c := Comparison{ABS: abs, DES: des, Tolerances: tol}
	a, d := float64(abs.TotalInjections), float64(des.TotalInjections)
	if m := math.Max(a, d); m > 0 {
		c.InjectionRelDiff = math.Abs(a-d) / m
	}
	c.VisionDiff = math.Abs(abs.FinalVisionMean - des.FinalVisionMean)
	c.DiscRateDiff = math.Abs(abs.DiscontinuationRate - des.DiscontinuationRate)
	return c
}

// Print writes the comparison report.
func (c Comparison) Print(w io.Writer) {
	fmt.Fprintln(w, "=== ABS vs DES ===")
	fmt.Fprintf(w, "%-22s %12s %12s %10s\n", "metric", "abs", "des", "diff")
	fmt.Fprintf(w, "%-22s %12d %12d %9.1f%%\n", "total injections",
		c.ABS.TotalInjections, c.DES.TotalInjections, c.InjectionRelDiff*100)
	fmt.Fprintf(w, "%-22s %12.2f %12.2f %10.2f\n", "final vision (mean)",
		c.ABS.FinalVisionMean, c.DES.FinalVisionMean, c.VisionDiff)
	fmt.Fprintf(w, "%-22s %11.1f%% %11.1f%% %9.1f%%\n", "discontinuation rate",
		c.ABS.DiscontinuationRate*100, c.DES.DiscontinuationRate*100, c.DiscRateDiff*100)
	fmt.Fprintf(w, "%-22s %12d %12d\n", "retreatments", c.ABS.RetreatmentCount, c.DES.RetreatmentCount)
	verdict := "PASS"
	if !c.Within() {
		verdict = "FAIL"
	}
	fmt.Fprintf(w, "Agreement (injections <= %.0f%%, vision <= %.1f letters, discontinuation <= %.0f pp): %s\n",
		c.Tolerances.Injection*100, c.Tolerances.Vision, c.Tolerances.DiscRate*100, verdict)
}

// compareCmd runs both engines on one configuration
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run the ABS and DES engines on the same configuration and compare results",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := buildRunConfig(cmd)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		results := make(map[string]*sim.SimulationResults, 2)
		for _, name := range []string{sim.EngineABS, sim.EngineDES} {
			engine, err := sim.NewEngine(name, cfg)
			if err != nil {
				logrus.Fatalf("Invalid configuration: %v", err)
			}
			if results[name], err = engine.Run(); err != nil {
				logrus.Fatalf("%s simulation failed: %v", name, err)
			}
		}
		c := compareResults(results[sim.EngineABS], results[sim.EngineDES], Tolerances{
			Injection: injectionTolerance,
			Vision:    visionTolerance,
			DiscRate:  discRateTolerance,
		})
		c.Print(cmd.OutOrStdout())
		if chartPath != "" {
			if err := writeVisionChart(chartPath, c.ABS, c.DES); err != nil {
				logrus.Fatalf("Chart failed: %v", err)
			}
		}
		if !c.Within() {
			logrus.Fatalf("Engines disagree beyond tolerance")
		}
	},
}

func registerCompareFlags(cmd *cobra.Command) {
	tol := DefaultTolerances()
	cmd.Flags().Float64Var(&injectionTolerance, "injection-tolerance", tol.Injection, "Max relative difference in total injections")
	cmd.Flags().Float64Var(&visionTolerance, "vision-tolerance", tol.Vision, "Max difference in mean final vision (letters)")
	cmd.Flags().Float64Var(&discRateTolerance, "disc-rate-tolerance", tol.DiscRate, "Max difference in discontinuation rate (fraction of patients)")
}
