// Package report renders recorded episodes.
package report

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/cartridge/rrc-policy/internal/recorder"
)

// ErrEmpty is returned when there is nothing to plot.
var ErrEmpty = errors.New("episode has no steps")

// JointStats summarises one action dimension over an episode.
type JointStats struct {
	Min, Max, Mean float64
}

// Summarize returns per-joint statistics of the episode's actions.
func Summarize(steps []*recorder.Step) ([]JointStats, error) {
	if len(steps) == 0 {
		return nil, ErrEmpty
	}
	dim := len(steps[0].Action)
	stats := make([]JointStats, dim)
	for j := range stats {
		stats[j] = JointStats{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for _, step := range steps {
		if len(step.Action) != dim {
			return nil, fmt.Errorf("step %d has %d action values, want %d", step.StepNumber, len(step.Action), dim)
		}
		for j, a := range step.Action {
			stats[j].Min = math.Min(stats[j].Min, a)
			stats[j].Max = math.Max(stats[j].Max, a)
			stats[j].Mean += a
		}
	}
	for j := range stats {
		stats[j].Mean /= float64(len(steps))
	}
	return stats, nil
}

// PlotActions draws one line per action dimension against the step number
// and saves the figure to path. The image format follows the extension.
func PlotActions(title string, steps []*recorder.Step, path string) error {
	if len(steps) == 0 {
		return ErrEmpty
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Action"

	dim := len(steps[0].Action)
	for j := 0; j < dim; j++ {
		points := make(plotter.XYs, 0, len(steps))
		for _, step := range steps {
			if j >= len(step.Action) {
				continue
			}
			points = append(points, plotter.XY{X: float64(step.StepNumber), Y: step.Action[j]})
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return fmt.Errorf("joint %d: %w", j, err)
		}
		line.Color = plotutil.Color(j)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("joint %d", j), line)
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
