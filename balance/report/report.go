// Package report turns the score history of a training run into plots and summary rows.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/baldhumanity/polebalance-go/balance"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var thresholdColor = color.RGBA{R: 255, G: 165, A: 255}

// GenerationStats summarizes the final scores of one generation.
type GenerationStats struct {
	Generation int
	Agents     int
	Best       float64
	Mean       float64
	Median     float64
	Worst      float64
}

// Summarize returns one row per non-empty generation of history.
func Summarize(history [][]float64) []GenerationStats {
	rows := make([]GenerationStats, 0, len(history))
	for i, scores := range history {
		if len(scores) == 0 {
			continue
		}
		rows = append(rows, GenerationStats{
			Generation: i,
			Agents:     len(scores),
			Best:       floats.Max(scores),
			Mean:       stat.Mean(scores, nil),
			Median:     balance.Median(scores),
			Worst:      floats.Min(scores),
		})
	}
	return rows
}

// mixinThreshold is the x position separating offspring from the fresh random agents
// appended at the end of a generation of n agents.
func mixinThreshold(n int, mixin float64) float64 {
	return float64(n) - math.Ceil(float64(n)*mixin) - 1
}

// PlotGenerations writes one scatter plot of score against population index per
// generation to outDir as epoch_<i>.png, and returns the written paths.
func PlotGenerations(history [][]float64, outDir string, mixin float64) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory '%s': %w", outDir, err)
	}

	var paths []string
	for i, scores := range history {
		if len(scores) == 0 {
			continue
		}
		outPath := filepath.Join(outDir, fmt.Sprintf("epoch_%d.png", i))
		if err := plotGeneration(i, scores, mixin, outPath); err != nil {
			return paths, fmt.Errorf("failed to plot generation %d: %w", i, err)
		}
		paths = append(paths, outPath)
	}
	return paths, nil
}

func plotGeneration(generation int, scores []float64, mixin float64, outPath string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Epoch %d", generation+1)
	p.X.Label.Text = "Agent"
	p.Y.Label.Text = "Agent score"
	p.X.Min = 0
	p.X.Max = float64(len(scores))
	p.Y.Min = math.Min(0, floats.Min(scores))
	p.Y.Max = floats.Max(scores) + 100

	pts := make(plotter.XYs, len(scores))
	for i, s := range scores {
		pts[i].X = float64(i)
		pts[i].Y = s
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)

	x := mixinThreshold(len(scores), mixin)
	threshold, err := plotter.NewLine(plotter.XYs{{X: x, Y: p.Y.Min}, {X: x, Y: p.Y.Max}})
	if err != nil {
		return err
	}
	threshold.Color = thresholdColor

	p.Add(scatter, threshold)
	p.Legend.Add("Random Mixin Threshold", threshold)
	p.Legend.Top = false
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// PlotSummary writes a line chart of the best and mean score per generation to outPath.
func PlotSummary(history [][]float64, outPath string) error {
	rows := Summarize(history)
	if len(rows) == 0 {
		return fmt.Errorf("no scores to plot")
	}

	p := plot.New()
	p.Title.Text = "Score per generation"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Score"

	bestPts := make(plotter.XYs, len(rows))
	meanPts := make(plotter.XYs, len(rows))
	for i, row := range rows {
		bestPts[i].X = float64(row.Generation)
		bestPts[i].Y = row.Best
		meanPts[i].X = float64(row.Generation)
		meanPts[i].Y = row.Mean
	}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return err
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create plot directory '%s': %w", dir, err)
		}
	}
	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}
