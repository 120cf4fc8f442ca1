// Package main provides a CMA-ES baseline over the tower gene space, for
// comparing against the genetic algorithm.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/config"
	"github.com/pthm-cable/towergen/evolve"
	"github.com/pthm-cable/towergen/site"
	"github.com/pthm-cable/towergen/telemetry"
	"github.com/pthm-cable/towergen/tower"
	"github.com/pthm-cable/towergen/visibility"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	seeds := flag.Int("seeds", 3, "Number of build seeds per evaluation")
	maxEvals := flag.Int("max-evals", 500, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	objective := flag.String("objective", "", "Fitness objective (empty = use config)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *objective != "" {
		cfg.Evolution.Objective = *objective
		cfg.Recompute()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if cfg.Capture.Renderer == config.RendererRaylib {
		log.Fatal("the optimizer evaluates seeds concurrently; use the soft renderer")
	}

	obj, err := evolve.ParseObjective(cfg.Derived.Objective)
	if err != nil {
		log.Fatal(err)
	}
	st := site.FromConfig(cfg)

	vis := visibility.NewEvaluator()
	vis.SearchRadius = cfg.Visibility.SearchRadius
	vis.SurfaceOffset = cfg.Visibility.SurfaceOffset
	vis.GoodRatio = cfg.Visibility.GoodRatio

	soft := capture.NewSoftRenderer(st.Scene()...)
	soft.FOV = cfg.Capture.FOV
	capt := capture.NewEvaluator(soft)
	capt.Width = cfg.Capture.Width
	capt.Height = cfg.Capture.Height
	capt.LookDistance = cfg.Capture.LookDistance

	scorer := &evolve.Scorer{
		Objective:   obj,
		Environment: st.Environment(),
		Visibility:  vis,
		Capture:     capt,
	}

	params := NewParamVector()

	// Generate seeds for evaluation
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	builder := tower.Builder{FloorHeight: cfg.Tower.FloorHeight, Reduce: cfg.Tower.Reduce}
	evaluator := NewFitnessEvaluator(params, st.Params(cfg), builder, scorer, evalSeeds, true)

	dim := params.Dim()
	initX := params.Normalize(params.DefaultVector())

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return evaluator.Evaluate(params.Denormalize(x))
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: *maxEvals,
		Concurrent:      0, // Sequential evaluation; seeds run in parallel
	}

	popSize := *population
	if popSize == 0 {
		// Auto-size: 4 + floor(3*ln(n))
		popSize = 4 + int(3*math.Log(float64(dim)))
	}

	method := &optimize.CmaEsChol{
		InitStepSize: 0.3,
		Population:   popSize,
	}

	logFile, err := os.Create(filepath.Join(*outputDir, "optimize_log.csv"))
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logWriter := csv.NewWriter(logFile)
	defer logWriter.Flush()

	header := []string{"eval", "cost", "mean_fitness", "failures"}
	for _, spec := range params.Specs {
		header = append(header, spec.Name)
	}
	logWriter.Write(header)

	evalCount := 0
	startTime := time.Now()

	// Wrap the function to log evaluations
	originalFunc := problem.Func
	problem.Func = func(x []float64) float64 {
		cost := originalFunc(x)
		evalCount++

		clamped := params.Clamp(params.Denormalize(x))
		mean, failures := evaluator.Last()
		row := []string{
			strconv.Itoa(evalCount),
			fmt.Sprintf("%.6f", cost),
			fmt.Sprintf("%.6f", mean),
			strconv.Itoa(failures),
		}
		for _, v := range clamped {
			row = append(row, fmt.Sprintf("%.6f", v))
		}
		logWriter.Write(row)
		logWriter.Flush()

		elapsed := time.Since(startTime)
		avgPerEval := elapsed / time.Duration(evalCount)
		remaining := time.Duration(*maxEvals-evalCount) * avgPerEval

		_, bestCost := evaluator.Best()
		fmt.Printf("Eval %d/%d: fitness=%.2f failures=%d (best=%.2f) | elapsed: %s, ETA: %s\n",
			evalCount, *maxEvals, mean, failures, -bestCost,
			formatDuration(elapsed), formatDuration(remaining))

		return cost
	}

	fmt.Printf("Starting CMA-ES optimization with %d genes, population=%d, max_evals=%d\n",
		dim, popSize, *maxEvals)
	fmt.Printf("Seeds per evaluation: %d, objective: %s\n", *seeds, obj)

	if _, err := optimize.Minimize(problem, initX, settings, method); err != nil {
		log.Printf("optimization ended: %v", err)
	}

	best, bestCost := evaluator.Best()
	fmt.Printf("\nOptimization complete after %d evaluations in %s\n", evalCount, formatDuration(time.Since(startTime)))
	if best.Shape == nil {
		log.Fatal("no evaluation produced a tower")
	}
	fmt.Printf("Best mean fitness: %.2f\n", -bestCost)
	fmt.Printf("Best tower: %s (fitness %.2f)\n", tower.Info(best.Shape, builder.FloorHeight), best.Fitness)

	fmt.Println("\nBest genes:")
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Name, best.Genotype.Genes[i])
	}

	// The best genotype can seed a GA run with -hall-of-fame.
	hof := telemetry.NewHallOfFame(1)
	hof.Consider(0, best)
	data, err := hof.MarshalJSON()
	if err != nil {
		log.Fatalf("failed to marshal best genotype: %v", err)
	}
	hofPath := filepath.Join(*outputDir, "hall_of_fame.json")
	if err := os.WriteFile(hofPath, data, 0644); err != nil {
		log.Fatalf("failed to write best genotype: %v", err)
	}
	fmt.Printf("Best genotype saved to: %s\n", hofPath)
}
