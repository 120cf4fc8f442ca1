package visibility

import (
	"context"
	"image/color"
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/geom"
	"github.com/pthm-cable/towergen/tower"
)

// Defaults for Evaluator fields left at zero.
const (
	DefaultSearchRadius  = 200.0
	DefaultSurfaceOffset = 0.1
	DefaultGoodRatio     = 0.90
)

// parallelThreshold is the minimum sample count worth spreading over workers.
const parallelThreshold = 64

// Band classifies a fraction in [0, 1] for display.
type Band int

const (
	BandPoor Band = iota
	BandMedium
	BandGood
)

// Band thresholds.
const (
	poorLimit   = 0.333
	mediumLimit = 0.666
)

// BandOf classifies a ray's fractional reach. Boundaries are inclusive.
func BandOf(reach float64) Band {
	switch {
	case reach <= poorLimit:
		return BandPoor
	case reach <= mediumLimit:
		return BandMedium
	default:
		return BandGood
	}
}

// StrictBandOf classifies with exclusive boundaries, as used for per-image
// landmark fractions.
func StrictBandOf(frac float64) Band {
	switch {
	case frac < poorLimit:
		return BandPoor
	case frac < mediumLimit:
		return BandMedium
	default:
		return BandGood
	}
}

func (b Band) String() string {
	switch b {
	case BandPoor:
		return "poor"
	case BandMedium:
		return "medium"
	default:
		return "good"
	}
}

// Color returns the display colour of the band.
func (b Band) Color() color.RGBA {
	switch b {
	case BandPoor:
		return color.RGBA{R: 255, G: 126, B: 0, A: 255}
	case BandMedium:
		return color.RGBA{R: 253, G: 255, B: 74, A: 255}
	default:
		return color.RGBA{R: 102, G: 255, B: 86, A: 255}
	}
}

// Ray is a kept probe ray.
type Ray struct {
	Sample Sample
	Start  r3.Vec // sample point pushed off the surface
	End    r3.Vec // closest environment hit, or the end of the search radius
	Length float64
	Reach  float64 // Length / search radius
	Band   Band
}

// Result is the outcome of one visibility evaluation.
type Result struct {
	Rays       []Ray // kept rays in sample order
	Score      float64
	Discarded  int  // samples whose ray hit the shape itself
	Degenerate bool // no ray survived; Score is 0
	Elapsed    time.Duration
}

// Good returns the kept rays whose reach exceeds ratio.
func (r Result) Good(ratio float64) []Ray {
	var out []Ray
	for _, ray := range r.Rays {
		if ray.Reach > ratio {
			out = append(out, ray)
		}
	}
	return out
}

// Lines groups the kept rays by voxel index.
func (r Result) Lines() map[int][]Ray {
	lines := make(map[int][]Ray)
	for _, ray := range r.Rays {
		lines[ray.Sample.Voxel] = append(lines[ray.Sample.Voxel], ray)
	}
	return lines
}

// Samples returns the kept rays' samples, with points moved to the ray
// starts.
func (r Result) Samples() []Sample {
	out := make([]Sample, len(r.Rays))
	for i, ray := range r.Rays {
		out[i] = Sample{Point: ray.Start, Normal: ray.Sample.Normal, Voxel: ray.Sample.Voxel}
	}
	return out
}

// Evaluator casts one ray per sample and scores the average reach.
type Evaluator struct {
	SearchRadius  float64
	SurfaceOffset float64
	GoodRatio     float64
	Workers       int // <= 1 runs sequentially; use runtime.GOMAXPROCS(0) for all CPUs
}

// NewEvaluator returns an evaluator with default settings.
func NewEvaluator() Evaluator {
	return Evaluator{
		SearchRadius:  DefaultSearchRadius,
		SurfaceOffset: DefaultSurfaceOffset,
		GoodRatio:     DefaultGoodRatio,
		Workers:       1,
	}
}

func (e Evaluator) radius() float64 {
	if e.SearchRadius <= 0 {
		return DefaultSearchRadius
	}
	return e.SearchRadius
}

func (e Evaluator) offset() float64 {
	if e.SurfaceOffset <= 0 {
		return DefaultSurfaceOffset
	}
	return e.SurfaceOffset
}

// outcome is the per-sample result before compaction.
type outcome struct {
	ray  Ray
	kept bool
}

// Evaluate scores the samples of shape against env. A nil env is an empty
// environment.
func (e Evaluator) Evaluate(ctx context.Context, s *tower.Shape, env *geom.Mesh, samples []Sample) (Result, error) {
	start := time.Now()
	self := s.Mesh()
	outcomes := make([]outcome, len(samples))

	workers := e.Workers
	if workers > runtime.GOMAXPROCS(0) {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers <= 1 || len(samples) < parallelThreshold {
		for i := range samples {
			if i%parallelThreshold == 0 {
				if err := ctx.Err(); err != nil {
					return Result{}, err
				}
			}
			outcomes[i] = e.cast(samples[i], self, env)
		}
	} else if err := e.castParallel(ctx, samples, self, env, outcomes, workers); err != nil {
		return Result{}, err
	}

	res := e.collect(outcomes)
	res.Elapsed = time.Since(start)
	return res, nil
}

// castParallel splits samples into contiguous chunks, one per worker. Each
// worker writes only its own range of outcomes.
func (e Evaluator) castParallel(ctx context.Context, samples []Sample, self, env *geom.Mesh, outcomes []outcome, workers int) error {
	self.Prepare()
	env.Prepare()

	chunk := (len(samples) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(samples) {
			hi = len(samples)
		}
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				if ctx.Err() != nil {
					return
				}
				outcomes[i] = e.cast(samples[i], self, env)
			}
		}(lo, hi)
	}
	wg.Wait()
	return ctx.Err()
}

func (e Evaluator) cast(smp Sample, self, env *geom.Mesh) outcome {
	radius := e.radius()
	origin := r3.Add(smp.Point, r3.Scale(e.offset(), smp.Normal))
	ray := geom.NewRay(origin, smp.Normal, radius)

	if self.Hits(ray) {
		return outcome{}
	}

	length := radius
	end := ray.End()
	if hit, ok := env.Closest(ray); ok {
		length = hit.T
		end = hit.Point
	}
	reach := length / radius
	return outcome{
		kept: true,
		ray: Ray{
			Sample: smp,
			Start:  origin,
			End:    end,
			Length: length,
			Reach:  reach,
			Band:   BandOf(reach),
		},
	}
}

func (e Evaluator) collect(outcomes []outcome) Result {
	var res Result
	lengths := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.kept {
			res.Discarded++
			continue
		}
		res.Rays = append(res.Rays, o.ray)
		lengths = append(lengths, o.ray.Length)
	}
	if len(res.Rays) == 0 {
		res.Degenerate = true
		return res
	}
	res.Score = 100 * floats.Sum(lengths) / (float64(len(lengths)) * e.radius())
	return res
}
