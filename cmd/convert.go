package cmd

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/amd-sim/amd-sim/sim/rates"
)

var (
	probability  float64 // Source probability
	fromDays     float64 // Interval the source probability is calibrated over
	toDays       float64 // Target interval
	annual       bool    // Treat the source probability as annual
	intervalDays float64 // Visit interval used to report visits per year
)

// convertRateCmd rescales a probability between time bases
var convertRateCmd = &cobra.Command{
	Use:   "convert-rate",
	Short: "Convert an event probability between time bases",
	Long: "Rescales a probability calibrated over one interval to another assuming a " +
		"constant hazard: p_to = 1 - (1 - p_from)^(to/from).",
	Run: func(cmd *cobra.Command, args []string) {
		if err := convertRate(cmd.OutOrStdout()); err != nil {
			logrus.Fatalf("%v", err)
		}
	},
}

func convertRate(w io.Writer) error {
	if probability < 0 || probability > 1 {
		return fmt.Errorf("probability must be in [0, 1], got %f", probability)
	}
	from := fromDays
	if annual {
		from = rates.DaysPerYear
	}
	if from <= 0 || toDays <= 0 {
		return fmt.Errorf("intervals must be positive, got from=%g to=%g", from, toDays)
	}
	converted := rates.Rescale(probability, from, toDays)
	fmt.Fprintf(w, "%.6f over %g days = %.6f over %g days\n", probability, from, converted, toDays)
	if intervalDays > 0 {
		vpy := rates.VisitsPerYear(intervalDays)
		fmt.Fprintf(w, "visits per year at %g-day interval: %.3f\n", intervalDays, vpy)
		if annual {
			fmt.Fprintf(w, "per-visit probability: %.6f\n", rates.AnnualToPerVisit(probability, vpy))
		}
	}
	return nil
}

func registerConvertFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64Var(&probability, "probability", 0, "Probability to convert")
	flags.Float64Var(&fromDays, "from-days", 28, "Interval the probability is calibrated over, in days")
	flags.Float64Var(&toDays, "to-days", 14, "Target interval in days")
	flags.BoolVar(&annual, "annual", false, "Source probability is annual (overrides --from-days)")
	flags.Float64Var(&intervalDays, "interval-days", 0, "Also report visits per year at this visit interval")
}
