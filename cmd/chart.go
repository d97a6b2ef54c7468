package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	sim "github.com/amd-sim/amd-sim/sim"
)

// chartStepDays is the sampling cadence of the vision timeline.
const chartStepDays = 28

var seriesColors = []drawing.Color{
	chart.ColorBlue,
	{R: 255, G: 165, B: 0, A: 255}, // orange
	chart.ColorGreen,
	chart.ColorRed,
}

// renderVisionChart draws the mean-vision timeline of each run as a PNG.
func renderVisionChart(w io.Writer, runs ...*sim.SimulationResults) error {
	var series []chart.Series
	xMax := 0.0
	for i, r := range runs {
		days, mean := r.VisionTimeline(chartStepDays)
		if len(days) < 2 {
			continue
		}
		if last := days[len(days)-1]; last > xMax {
			xMax = last
		}
		series = append(series, chart.ContinuousSeries{
			Name:    r.Engine,
			XValues: days,
			YValues: mean,
			Style: chart.Style{
				StrokeColor: seriesColors[i%len(seriesColors)],
				StrokeWidth: 2.0,
			},
		})
	}
	if len(series) == 0 {
		return fmt.Errorf("not enough visits to chart: need at least two timeline points")
	}

	graph := chart.Chart{
		Width:  900,
		Height: 400,
		XAxis: chart.XAxis{
			Name:  "Days",
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "Mean vision (ETDRS letters)",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph.Render(chart.PNG, w)
}

// writeVisionChart renders runs to path.
func writeVisionChart(path string, runs ...*sim.SimulationResults) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart: %w", err)
	}
	if err := renderVisionChart(f, runs...); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
