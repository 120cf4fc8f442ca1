// Command analyze builds one unguided random tower and runs the full
// analysis on it: dense facade sampling, visibility rays and landmark
// captures.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/config"
	"github.com/pthm-cable/towergen/renderer"
	"github.com/pthm-cable/towergen/site"
	"github.com/pthm-cable/towergen/telemetry"
	"github.com/pthm-cable/towergen/tower"
	"github.com/pthm-cable/towergen/visibility"
)

// rayRecord is one row of rays.csv.
type rayRecord struct {
	Voxel  int     `csv:"voxel"`
	StartX float64 `csv:"start_x"`
	StartY float64 `csv:"start_y"`
	StartZ float64 `csv:"start_z"`
	EndX   float64 `csv:"end_x"`
	EndY   float64 `csv:"end_y"`
	EndZ   float64 `csv:"end_z"`
	Length float64 `csv:"length"`
	Reach  float64 `csv:"reach"`
	Band   string  `csv:"band"`
}

// shotRecord is one row of captures.csv.
type shotRecord struct {
	Point    int     `csv:"point"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Z        float64 `csv:"z"`
	Landmark int     `csv:"landmark_px"`
	Total    int     `csv:"total_px"`
	Fraction float64 `csv:"fraction"`
	Band     string  `csv:"band"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = time-based)")
	steps := flag.Int("steps", 2, "Extra division passes; the tower has 2^(steps+1) voxels")
	reduce := flag.Bool("reduce", false, "Delete voxels before rotating")
	reductionMax := flag.Int("reduction-max", 1, "Voxels to delete")
	rotationMax := flag.Int("rotation-max", 1, "Voxels to rotate")
	uCount := flag.Int("u", 2, "Face segments along the facade width")
	vCount := flag.Int("v", 2, "Face segments along the facade height")
	offset := flag.Float64("offset", 0.1, "Distance of sample points from voxel edges, as a face fraction")
	parallel := flag.Bool("parallel", false, "Cast rays on all CPUs")
	doCapture := flag.Bool("capture", false, "Render a landmark capture from every kept sample")
	captureSize := flag.Int("capture-size", 20, "Capture width and height in pixels")
	saveDir := flag.String("save-dir", "", "Directory for point<i>.jpg captures (empty = don't save)")
	outputDir := flag.String("output-dir", "", "Directory for tower, ray and capture CSVs")

	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(rngSeed))

	st := site.FromConfig(cfg)
	builder := tower.Builder{FloorHeight: cfg.Tower.FloorHeight}
	shape, err := builder.BuildRandom(st.Params(cfg), tower.RandomOptions{
		Steps:        *steps,
		Reduce:       *reduce,
		ReductionMax: *reductionMax,
		RotationMax:  *rotationMax,
	}, rng)
	if err != nil {
		slog.Error("failed to build tower", "error", err)
		os.Exit(1)
	}
	slog.Info("tower", "seed", rngSeed, "info", tower.Info(shape, builder.FloorHeight))

	samples := visibility.SampleGrid(shape, *uCount, *vCount, *offset)

	vis := visibility.NewEvaluator()
	vis.SearchRadius = cfg.Visibility.SearchRadius
	vis.SurfaceOffset = cfg.Visibility.SurfaceOffset
	vis.GoodRatio = cfg.Visibility.GoodRatio
	if *parallel {
		vis.Workers = runtime.GOMAXPROCS(0)
	}

	ctx := context.Background()
	vr, err := vis.Evaluate(ctx, shape, st.Environment(), samples)
	if err != nil {
		slog.Error("ray shooting failed", "error", err)
		os.Exit(1)
	}
	bands := map[visibility.Band]int{}
	for _, r := range vr.Rays {
		bands[r.Band]++
	}
	slog.Info("rays",
		"samples", len(samples),
		"kept", len(vr.Rays),
		"discarded", vr.Discarded,
		"score", vr.Score,
		"degenerate", vr.Degenerate,
		"good", len(vr.Good(vis.GoodRatio)),
		"poor", bands[visibility.BandPoor],
		"medium", bands[visibility.BandMedium],
		"good_band", bands[visibility.BandGood],
		"voxels_with_rays", len(vr.Lines()),
		"elapsed", vr.Elapsed.String(),
	)

	var cr capture.Result
	if *doCapture {
		cr, err = runCapture(ctx, cfg, st, vr.Samples(), *captureSize, *saveDir)
		if err != nil {
			slog.Error("capture failed", "error", err)
			os.Exit(1)
		}
		slog.Info("captures",
			"shots", len(cr.Shots),
			"landmark_px", cr.Landmark,
			"total_px", cr.Total,
			"score", cr.Score,
			"degenerate", cr.Degenerate,
		)
	}

	if *outputDir != "" {
		if err := writeOutputs(*outputDir, shape, vr, cr); err != nil {
			slog.Error("failed to write outputs", "error", err)
			os.Exit(1)
		}
	}
}

func runCapture(ctx context.Context, cfg *config.Config, st *site.Site, samples []visibility.Sample, size int, saveDir string) (capture.Result, error) {
	var r capture.Renderer
	if cfg.Capture.Renderer == config.RendererRaylib {
		vp := renderer.NewViewport(cfg.Capture.FOV, st.Scene()...)
		defer vp.Unload()
		r = vp
	} else {
		soft := capture.NewSoftRenderer(st.Scene()...)
		soft.FOV = cfg.Capture.FOV
		r = soft
	}

	ev := capture.NewEvaluator(r)
	ev.Width, ev.Height = size, size
	ev.LookDistance = cfg.Capture.LookDistance
	ev.SaveDir = saveDir
	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0755); err != nil {
			return capture.Result{}, fmt.Errorf("creating save directory: %w", err)
		}
	}
	return ev.Evaluate(ctx, samples)
}

func writeOutputs(dir string, shape *tower.Shape, vr visibility.Result, cr capture.Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	rays := make([]rayRecord, len(vr.Rays))
	for i, r := range vr.Rays {
		rays[i] = rayRecord{
			Voxel:  r.Sample.Voxel,
			StartX: r.Start.X,
			StartY: r.Start.Y,
			StartZ: r.Start.Z,
			EndX:   r.End.X,
			EndY:   r.End.Y,
			EndZ:   r.End.Z,
			Length: r.Length,
			Reach:  r.Reach,
			Band:   r.Band.String(),
		}
	}
	shots := make([]shotRecord, len(cr.Shots))
	for i, s := range cr.Shots {
		shots[i] = shotRecord{
			Point:    i,
			X:        s.Sample.Point.X,
			Y:        s.Sample.Point.Y,
			Z:        s.Sample.Point.Z,
			Landmark: s.Landmark,
			Total:    s.Total,
			Fraction: s.Fraction,
			Band:     s.Band.String(),
		}
	}

	files := []struct {
		name    string
		records any
	}{
		{"tower.csv", telemetry.VoxelRecords(shape)},
		{"rays.csv", rays},
		{"captures.csv", shots},
	}
	for _, f := range files {
		if err := writeCSV(filepath.Join(dir, f.name), f.records); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, records any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := gocsv.MarshalFile(records, f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
