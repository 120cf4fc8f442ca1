package evolve

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/tower"
	"github.com/pthm-cable/towergen/visibility"
)

func testContext(seed int64) RunContext {
	return RunContext{
		Params: genome.Params{
			Plot:           genome.Plot{Width: 100, Height: 100},
			CoverageRatio:  0.5,
			FloorAreaRatio: 700,
		},
		Builder: tower.NewBuilder(true),
		Rand:    rand.New(rand.NewSource(seed)),
	}
}

// volumeFitness scores shapes by their volume, which differs per individual.
var volumeFitness = FitnessFuncOf(func(_ context.Context, s *tower.Shape) (Evaluation, error) {
	return Evaluation{Fitness: s.Volume() / 1000}, nil
})

func options(n int) Options {
	opts := DefaultOptions()
	opts.Population = n
	return opts
}

func assertSorted(t *testing.T, e *Engine) {
	t.Helper()
	f := e.Fitnesses()
	for i := 1; i < len(f); i++ {
		if f[i] < f[i-1] {
			t.Fatalf("population not sorted at %d: %v", i, f)
		}
	}
}

func TestParseObjective(t *testing.T) {
	tests := []struct {
		in      string
		want    Objective
		wantErr bool
	}{
		{"obstruction", ObjectiveObstruction, false},
		{"0", ObjectiveObstruction, false},
		{"View", ObjectiveView, false},
		{"1", ObjectiveView, false},
		{"both", ObjectiveBoth, false},
		{"2", ObjectiveBoth, false},
		{"3", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseObjective(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseObjective(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseObjective(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewValidates(t *testing.T) {
	ctx := context.Background()

	if _, err := New(ctx, testContext(1), volumeFitness, options(1)); err == nil {
		t.Error("New accepted population 1")
	}
	rc := testContext(1)
	rc.Rand = nil
	if _, err := New(ctx, rc, volumeFitness, options(4)); err == nil {
		t.Error("New accepted a nil random source")
	}
	if _, err := New(ctx, testContext(1), nil, options(4)); err == nil {
		t.Error("New accepted a nil fitness function")
	}
}

func TestSortInvariant(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testContext(3), volumeFitness, options(12))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertSorted(t, e)

	for i := 0; i < 60; i++ {
		if _, err := e.Step(ctx); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		assertSorted(t, e)
		if len(e.Individuals()) != 12 {
			t.Fatalf("population size %d, want 12", len(e.Individuals()))
		}
	}
}

func TestStepReplacesMinimum(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testContext(5), volumeFitness, options(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := e.Individuals()

	res, err := e.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}

	if res.Replaced.Fitness != before[0].Fitness || res.Replaced.Genotype != before[0].Genotype {
		t.Errorf("Replaced = %v, want the prior minimum %v", res.Replaced.Fitness, before[0].Fitness)
	}
	winner := res.Children[res.Winner]
	for i, c := range res.Children {
		if c.Fitness > winner.Fitness {
			t.Errorf("child %d fitness %v exceeds winner %v", i, c.Fitness, winner.Fitness)
		}
	}

	// Survivors are the three prior non-minimum individuals plus the winner.
	after := e.Individuals()
	want := map[genome.Genotype]int{winner.Genotype: 1}
	for _, ind := range before[1:] {
		want[ind.Genotype]++
	}
	for _, ind := range after {
		want[ind.Genotype]--
	}
	for g, n := range want {
		if n != 0 {
			t.Errorf("genotype %v count off by %d", g.Genes[:3], n)
		}
	}
	if e.Steps() != 1 {
		t.Errorf("Steps() = %d, want 1", e.Steps())
	}
}

func TestStepErrorLeavesPopulation(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("renderer lost")
	calls := 0
	flaky := FitnessFuncOf(func(ctx context.Context, s *tower.Shape) (Evaluation, error) {
		calls++
		if calls > 4 {
			return Evaluation{}, boom
		}
		return volumeFitness(ctx, s)
	})

	e, err := New(ctx, testContext(7), flaky, options(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := e.Fitnesses()

	if _, err := e.Step(ctx); !errors.Is(err, boom) {
		t.Fatalf("Step error = %v, want %v", err, boom)
	}
	after := e.Fitnesses()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("population changed after failed step: %v -> %v", before, after)
		}
	}
	if _, err := e.Evolve(ctx); !errors.Is(err, boom) {
		t.Errorf("Evolve error = %v, want %v", err, boom)
	}
	if e.Generation() != 0 {
		t.Errorf("Generation() = %d after failure, want 0", e.Generation())
	}
}

func TestSelectBias(t *testing.T) {
	e, err := New(context.Background(), testContext(9), volumeFitness, options(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	counts := make([]int, 10)
	for i := 0; i < 20000; i++ {
		idx := e.Select()
		if idx < 0 || idx >= 10 {
			t.Fatalf("Select() = %d, out of range", idx)
		}
		counts[idx]++
	}
	if counts[9] <= counts[0] {
		t.Errorf("selection not biased to the fit end: %v", counts)
	}
}

func TestEndToEndNoObstacles(t *testing.T) {
	ctx := context.Background()
	scorer := &Scorer{Objective: ObjectiveObstruction, Visibility: visibility.NewEvaluator()}
	opts := options(6)
	opts.Workers = 3

	e, err := New(ctx, testContext(11), scorer, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, f := range e.Fitnesses() {
		if f != 100 {
			t.Fatalf("initial fitness %v, want 100", f)
		}
	}

	gen, err := e.Evolve(ctx)
	if err != nil {
		t.Fatalf("Evolve: %v", err)
	}
	if gen.Number != 1 || e.Generation() != 1 {
		t.Errorf("generation = %d, want 1", gen.Number)
	}
	if gen.Best.Fitness != 100 {
		t.Errorf("best fitness %v, want 100", gen.Best.Fitness)
	}
	if len(gen.Positions) != 6 || len(e.Shapes()) != 6 {
		t.Errorf("got %d positions and %d shapes, want 6", len(gen.Positions), len(e.Shapes()))
	}
	if gen.Good == 0 || len(e.GoodOrientations()) != gen.Good {
		t.Errorf("good orientations = %d (accessor %d)", gen.Good, len(e.GoodOrientations()))
	}
	for _, o := range e.GoodOrientations() {
		if o.Normal.Z != 0 {
			t.Fatalf("good orientation normal %v is not horizontal", o.Normal)
		}
	}
}

func TestParallelInitMatchesSequential(t *testing.T) {
	ctx := context.Background()
	scorer := &Scorer{Objective: ObjectiveObstruction, Visibility: visibility.NewEvaluator()}

	seq, err := New(ctx, testContext(13), scorer, options(8))
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	opts := options(8)
	opts.Workers = 4
	par, err := New(ctx, testContext(13), scorer, opts)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}

	a, b := seq.GoodOrientations(), par.GoodOrientations()
	if len(a) != len(b) {
		t.Fatalf("good orientations %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("good orientation %d differs", i)
		}
	}
}

func TestScorerObjectives(t *testing.T) {
	red := capture.RendererFunc(func(_, _ r3.Vec, w, h int) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: capture.LandmarkColor}, image.Point{}, draw.Src)
		return img, nil
	})
	black := capture.RendererFunc(func(_, _ r3.Vec, w, h int) (image.Image, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(img, img.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
		return img, nil
	})

	tests := []struct {
		name      string
		objective Objective
		renderer  capture.Renderer
		want      float64
	}{
		{"obstruction", ObjectiveObstruction, nil, 100},
		{"view all red", ObjectiveView, red, 100},
		{"view none", ObjectiveView, black, 0},
		{"both", ObjectiveBoth, black, 50},
	}

	rc := testContext(15)
	ph := genome.Decode(genome.Random(rc.Rand), rc.Params)
	shape, err := rc.Builder.Build(ph, rc.Params, rc.Rand)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Scorer{
				Objective:  tt.objective,
				Visibility: visibility.NewEvaluator(),
				Capture:    capture.NewEvaluator(tt.renderer),
			}
			ev, err := s.Evaluate(context.Background(), shape)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if ev.Fitness != tt.want {
				t.Errorf("Fitness = %v, want %v", ev.Fitness, tt.want)
			}
			if len(ev.Good) == 0 {
				t.Error("no good orientations recorded")
			}
		})
	}
}

func TestScorerRendererError(t *testing.T) {
	rc := testContext(17)
	ph := genome.Decode(genome.Random(rc.Rand), rc.Params)
	shape, err := rc.Builder.Build(ph, rc.Params, rc.Rand)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	s := &Scorer{Objective: ObjectiveView, Visibility: visibility.NewEvaluator()}
	if _, err := s.Evaluate(context.Background(), shape); !errors.Is(err, capture.ErrNoRenderer) {
		t.Errorf("Evaluate error = %v, want ErrNoRenderer", err)
	}
}

func TestNewUsesSeeds(t *testing.T) {
	rc := testContext(19)
	seed := genome.Random(rand.New(rand.NewSource(99)))
	opts := options(5)
	opts.Seeds = []genome.Genotype{seed}

	e, err := New(context.Background(), rc, volumeFitness, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	found := false
	for _, ind := range e.Individuals() {
		if ind.Genotype == seed {
			found = true
		}
	}
	if !found {
		t.Error("seed genotype missing from the initial population")
	}
}
