// Package telemetry records per-generation statistics and run output.
package telemetry

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/towergen/evolve"
)

// GenerationStats holds aggregated statistics for one generation.
type GenerationStats struct {
	Generation int     `csv:"generation"`
	Steps      int     `csv:"steps"`
	ElapsedSec float64 `csv:"elapsed_sec"`

	// Fitness distribution over the population
	Best  float64 `csv:"best"`
	Worst float64 `csv:"worst"`
	Mean  float64 `csv:"mean"`
	Std   float64 `csv:"std"`
	P10   float64 `csv:"p10"`
	P50   float64 `csv:"p50"`
	P90   float64 `csv:"p90"`

	// Best individual breakdown
	BestVisibility float64 `csv:"best_visibility"`
	BestCapture    float64 `csv:"best_capture"`
	BestFloors     int     `csv:"best_floors"`
	BestVoxels     int     `csv:"best_voxels"`
	BestX          float64 `csv:"best_x"`
	BestY          float64 `csv:"best_y"`

	GoodOrientations int `csv:"good_orientations"`
	Degenerate       int `csv:"degenerate"`
}

// Percentile calculates the p-th percentile of a sorted slice with linear
// interpolation. p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeFitnessStats calculates mean, population standard deviation and
// percentiles of values.
func ComputeFitnessStats(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, std, Percentile(sorted, 0.10), Percentile(sorted, 0.50), Percentile(sorted, 0.90)
}

// NewGenerationStats summarises a generation snapshot.
func NewGenerationStats(g evolve.Generation, steps int, elapsed time.Duration) GenerationStats {
	s := GenerationStats{
		Generation:       g.Number,
		Steps:            steps,
		ElapsedSec:       elapsed.Seconds(),
		Best:             g.Best.Fitness,
		BestVisibility:   g.Best.Evaluation.Visibility,
		BestCapture:      g.Best.Evaluation.Capture,
		GoodOrientations: g.Good,
		Degenerate:       g.Degenerate,
	}
	if g.Best.Shape != nil {
		s.BestFloors = g.Best.Shape.Floors
		s.BestVoxels = g.Best.Shape.Len()
	}
	if len(g.Positions) > 0 {
		// Positions follow population order; the best is last.
		p := g.Positions[len(g.Positions)-1]
		s.BestX, s.BestY = p.X, p.Y
	}
	if len(g.Fitnesses) > 0 {
		s.Worst = g.Fitnesses[0]
	}
	s.Mean, s.Std, s.P10, s.P50, s.P90 = ComputeFitnessStats(g.Fitnesses)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s GenerationStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("generation", s.Generation),
		slog.Int("steps", s.Steps),
		slog.Float64("elapsed_sec", s.ElapsedSec),
		slog.Float64("best", s.Best),
		slog.Float64("worst", s.Worst),
		slog.Float64("mean", s.Mean),
		slog.Float64("std", s.Std),
		slog.Float64("p10", s.P10),
		slog.Float64("p50", s.P50),
		slog.Float64("p90", s.P90),
		slog.Float64("best_visibility", s.BestVisibility),
		slog.Float64("best_capture", s.BestCapture),
		slog.Int("best_floors", s.BestFloors),
		slog.Int("best_voxels", s.BestVoxels),
		slog.Int("good_orientations", s.GoodOrientations),
		slog.Int("degenerate", s.Degenerate),
	)
}
