// Command towergen evolves tower massings that keep views open and capture
// landmarks.
package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/config"
	"github.com/pthm-cable/towergen/evolve"
	"github.com/pthm-cable/towergen/renderer"
	"github.com/pthm-cable/towergen/site"
	"github.com/pthm-cable/towergen/telemetry"
	"github.com/pthm-cable/towergen/tower"
	"github.com/pthm-cable/towergen/visibility"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot (overrides config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config value, then time-based)")
	generations := flag.Int("generations", -1, "Stop after N generations (0 = until interrupted, -1 = use config)")
	objective := flag.String("objective", "", "Fitness objective: obstruction, view or both (empty = use config)")
	hallOfFame := flag.String("hall-of-fame", "", "Seed the initial population from a hall_of_fame.json")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Telemetry.OutputDir = *outputDir
	}
	if *seed != 0 {
		cfg.Evolution.Seed = *seed
	}
	if *generations >= 0 {
		cfg.Evolution.Generations = *generations
	}
	if *objective != "" {
		cfg.Evolution.Objective = *objective
	}
	if cfg.Evolution.Seed == 0 {
		cfg.Evolution.Seed = time.Now().UnixNano()
	}
	cfg.Recompute()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *hallOfFame); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, hallOfFamePath string) error {
	st := site.FromConfig(cfg)
	obj, err := evolve.ParseObjective(cfg.Derived.Objective)
	if err != nil {
		return err
	}

	opts := evolve.Options{
		Population:     cfg.Evolution.Population,
		CrossoverPoint: cfg.Evolution.CrossoverPoint,
		MutationRate:   cfg.Evolution.MutationRate,
		Workers:        cfg.Evolution.Workers,
	}

	vis := visibility.NewEvaluator()
	vis.SearchRadius = cfg.Visibility.SearchRadius
	vis.SurfaceOffset = cfg.Visibility.SurfaceOffset
	vis.GoodRatio = cfg.Visibility.GoodRatio
	vis.Workers = cfg.Visibility.Workers

	var r capture.Renderer
	if obj.NeedsCapture() {
		switch cfg.Capture.Renderer {
		case config.RendererRaylib:
			vp := renderer.NewViewport(cfg.Capture.FOV, st.Scene()...)
			defer vp.Unload()
			r = vp
			// raylib is bound to the main thread.
			opts.Workers = 1
		default:
			soft := capture.NewSoftRenderer(st.Scene()...)
			soft.FOV = cfg.Capture.FOV
			r = soft
		}
	}
	capt := capture.NewEvaluator(r)
	capt.Width = cfg.Capture.Width
	capt.Height = cfg.Capture.Height
	capt.LookDistance = cfg.Capture.LookDistance
	capt.SaveDir = cfg.Capture.SaveDir

	scorer := &evolve.Scorer{
		Objective:   obj,
		Environment: st.Environment(),
		Visibility:  vis,
		Capture:     capt,
	}

	if hallOfFamePath != "" {
		hof, err := telemetry.LoadHallOfFameFromFile(hallOfFamePath)
		if err != nil {
			return err
		}
		opts.Seeds = hof.Genotypes()
		slog.Info("seeding from hall of fame", "path", hallOfFamePath, "genotypes", hof.Len())
	}

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	rc := evolve.RunContext{
		Params:  st.Params(cfg),
		Builder: tower.Builder{FloorHeight: cfg.Tower.FloorHeight, Reduce: cfg.Tower.Reduce},
		Rand:    rand.New(rand.NewSource(cfg.Evolution.Seed)),
		Logger:  slog.Default(),
	}

	slog.Info("starting run",
		"seed", cfg.Evolution.Seed,
		"objective", obj.String(),
		"population", opts.Population,
		"generations", cfg.Evolution.Generations,
		"renderer", cfg.Capture.Renderer,
		"obstacles", len(cfg.Environment.Obstacles),
		"landmarks", len(cfg.Environment.Landmarks),
	)

	start := time.Now()
	engine, err := evolve.New(ctx, rc, scorer, opts)
	if err != nil {
		return err
	}

	hof := telemetry.NewHallOfFame(cfg.Telemetry.HallOfFameSize)
	perf := telemetry.NewPerfCollector(10)
	for cfg.Evolution.Generations == 0 || engine.Generation() < cfg.Evolution.Generations {
		perf.Start()
		perf.StartPhase(telemetry.PhaseEvolve)
		gen, err := engine.Evolve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("interrupted", "generation", engine.Generation(), "steps", engine.Steps())
				break
			}
			return err
		}

		perf.StartPhase(telemetry.PhaseTelemetry)
		stats := telemetry.NewGenerationStats(gen, engine.Steps(), time.Since(start))
		for _, ind := range engine.Individuals() {
			hof.Consider(gen.Number, ind)
		}
		if gen.Number%cfg.Telemetry.LogEvery == 0 {
			slog.Info("generation", "stats", stats)
		}
		if err := writeGeneration(om, engine, gen, stats); err != nil {
			return err
		}
		perf.End(opts.Population)

		if err := om.WritePerf(perf.Stats(), gen.Number); err != nil {
			return err
		}
	}

	best := engine.Best()
	slog.Info("run finished",
		"generations", engine.Generation(),
		"steps", engine.Steps(),
		"best_fitness", best.Fitness,
		"best", tower.Info(best.Shape, rc.Builder.FloorHeight),
		"elapsed", time.Since(start).String(),
		"perf", perf.Stats(),
	)
	return om.WriteHallOfFame(hof)
}

func writeGeneration(om *telemetry.OutputManager, engine *evolve.Engine, gen evolve.Generation, stats telemetry.GenerationStats) error {
	if err := om.WriteGeneration(stats); err != nil {
		return err
	}
	if err := om.WriteGoodOrientations(gen.Number, engine.GoodOrientations()); err != nil {
		return err
	}
	return om.WriteBestTower(gen.Best.Shape)
}
