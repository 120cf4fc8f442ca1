// Package evolve runs the steady-state genetic algorithm over tower
// genotypes.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/tower"
)

// selectionEpsilon keeps rank selection strictly below the population size.
const selectionEpsilon = 1e-3

// RunContext carries everything a run shares between components.
type RunContext struct {
	Params  genome.Params
	Builder tower.Builder
	Rand    *rand.Rand
	Logger  *slog.Logger
}

func (rc RunContext) logger() *slog.Logger {
	if rc.Logger == nil {
		return slog.Default()
	}
	return rc.Logger
}

// Options configure an Engine.
type Options struct {
	Population     int
	CrossoverPoint int
	MutationRate   float64
	Workers        int // parallel evaluations during initialization

	// Seeds replace the first random genotypes of the initial population.
	Seeds []genome.Genotype
}

// DefaultOptions returns the standard settings.
func DefaultOptions() Options {
	return Options{
		Population:     50,
		CrossoverPoint: genome.DefaultCrossoverPoint,
		MutationRate:   genome.DefaultMutationRate,
		Workers:        1,
	}
}

// Individual is one candidate tower.
type Individual struct {
	Genotype   genome.Genotype
	Phenotype  genome.Phenotype
	Shape      *tower.Shape
	Fitness    float64
	Evaluation Evaluation
}

// StepResult describes one replacement.
type StepResult struct {
	Parents  [2]int        // selected indices in the pre-step population
	Children [2]Individual // both evaluated children, A first
	Winner   int           // index into Children of the inserted child
	Replaced Individual    // the previous minimum
}

// Generation summarises the population after a generation.
type Generation struct {
	Number     int
	Best       Individual
	Fitnesses  []float64
	Positions  []r3.Vec
	Good       int // good orientations recorded so far
	Degenerate int // individuals whose evaluation kept no rays or pixels
}

// Engine holds the population and runs steps. It is not safe for concurrent
// use; steps are inherently sequential.
type Engine struct {
	rc      RunContext
	fitness FitnessFunc
	opts    Options

	pop        []Individual // ascending fitness
	good       []Orientation
	generation int
	steps      int
}

// New builds and evaluates the initial population. Genotypes are drawn and
// shapes built sequentially from rc.Rand; evaluations run on opts.Workers
// goroutines.
func New(ctx context.Context, rc RunContext, fitness FitnessFunc, opts Options) (*Engine, error) {
	if opts.Population < 2 {
		return nil, fmt.Errorf("population %d, need at least 2", opts.Population)
	}
	if rc.Rand == nil {
		return nil, errors.New("run context has no random source")
	}
	if fitness == nil {
		return nil, errors.New("no fitness function")
	}

	e := &Engine{rc: rc, fitness: fitness, opts: opts}
	pop := make([]Individual, opts.Population)
	for i := range pop {
		var g genome.Genotype
		if i < len(opts.Seeds) {
			g = opts.Seeds[i]
		} else {
			g = genome.Random(rc.Rand)
		}
		ind, err := e.build(g)
		if err != nil {
			return nil, fmt.Errorf("initial individual %d: %w", i, err)
		}
		pop[i] = ind
	}

	if err := e.evaluateAll(ctx, pop); err != nil {
		return nil, err
	}
	for i := range pop {
		e.good = append(e.good, pop[i].Evaluation.Good...)
	}
	e.pop = pop
	e.sort()

	e.rc.logger().Debug("population initialized",
		"size", len(pop),
		"best", e.pop[len(e.pop)-1].Fitness,
		"worst", e.pop[0].Fitness,
	)
	return e, nil
}

// evaluateAll scores pop in place. With more than one worker evaluations
// run in parallel; a single worker evaluates on the calling goroutine, which
// renderers bound to one OS thread require.
func (e *Engine) evaluateAll(ctx context.Context, pop []Individual) error {
	errs := make([]error, len(pop))
	evaluate := func(i int) {
		ev, err := e.fitness.Evaluate(ctx, pop[i].Shape)
		if err != nil {
			errs[i] = fmt.Errorf("evaluate individual %d: %w", i, err)
			return
		}
		pop[i].Evaluation = ev
		pop[i].Fitness = ev.Fitness
	}

	if e.opts.Workers <= 1 {
		for i := range pop {
			evaluate(i)
		}
		return errors.Join(errs...)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < e.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				evaluate(i)
			}
		}()
	}
	for i := range pop {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return errors.Join(errs...)
}

// build decodes g and builds its shape.
func (e *Engine) build(g genome.Genotype) (Individual, error) {
	ph := genome.Decode(g, e.rc.Params)
	shape, err := e.rc.Builder.Build(ph, e.rc.Params, e.rc.Rand)
	if err != nil {
		return Individual{}, err
	}
	return Individual{Genotype: g, Phenotype: ph, Shape: shape}, nil
}

// spawn builds and evaluates a child.
func (e *Engine) spawn(ctx context.Context, g genome.Genotype) (Individual, error) {
	ind, err := e.build(g)
	if err != nil {
		return Individual{}, fmt.Errorf("build child: %w", err)
	}
	ev, err := e.fitness.Evaluate(ctx, ind.Shape)
	if err != nil {
		return Individual{}, fmt.Errorf("evaluate child: %w", err)
	}
	ind.Evaluation = ev
	ind.Fitness = ev.Fitness
	return ind, nil
}

func (e *Engine) sort() {
	sort.SliceStable(e.pop, func(i, j int) bool {
		return e.pop[i].Fitness < e.pop[j].Fitness
	})
}

// Select draws a rank-biased index, favouring the fitter end of the sorted
// population.
func (e *Engine) Select() int {
	u := e.rc.Rand.Float64()
	n := float64(len(e.pop))
	return int((n - selectionEpsilon) * (1 - u*u))
}

// Step breeds two children from two selected parents and replaces the least
// fit individual with the fitter child. On error the population is left
// unchanged.
func (e *Engine) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	ia, ib := e.Select(), e.Select()
	a, b := genome.Crossover(e.pop[ia].Genotype, e.pop[ib].Genotype, e.opts.CrossoverPoint)
	a.Mutate(e.rc.Rand, e.opts.MutationRate)
	b.Mutate(e.rc.Rand, e.opts.MutationRate)

	childA, err := e.spawn(ctx, a)
	if err != nil {
		return StepResult{}, err
	}
	childB, err := e.spawn(ctx, b)
	if err != nil {
		return StepResult{}, err
	}

	res := StepResult{
		Parents:  [2]int{ia, ib},
		Children: [2]Individual{childA, childB},
		Replaced: e.pop[0],
	}
	if childB.Fitness > childA.Fitness {
		res.Winner = 1
	}

	e.good = append(e.good, childA.Evaluation.Good...)
	e.good = append(e.good, childB.Evaluation.Good...)
	e.pop[0] = res.Children[res.Winner]
	e.sort()
	e.steps++
	return res, nil
}

// Evolve runs one generation: as many steps as the population size.
func (e *Engine) Evolve(ctx context.Context) (Generation, error) {
	for i := 0; i < len(e.pop); i++ {
		if _, err := e.Step(ctx); err != nil {
			return Generation{}, fmt.Errorf("generation %d step %d: %w", e.generation+1, i, err)
		}
	}
	e.generation++
	return e.Snapshot(), nil
}

// Snapshot summarises the current population.
func (e *Engine) Snapshot() Generation {
	g := Generation{
		Number:    e.generation,
		Best:      e.Best(),
		Fitnesses: e.Fitnesses(),
		Positions: e.Positions(),
		Good:      len(e.good),
	}
	for _, ind := range e.pop {
		if ind.Evaluation.Degenerate {
			g.Degenerate++
		}
	}
	return g
}

// Best returns the fittest individual.
func (e *Engine) Best() Individual {
	return e.pop[len(e.pop)-1]
}

// Individuals returns a copy of the population in ascending fitness order.
func (e *Engine) Individuals() []Individual {
	out := make([]Individual, len(e.pop))
	copy(out, e.pop)
	return out
}

// Fitnesses returns the population fitness values in ascending order.
func (e *Engine) Fitnesses() []float64 {
	out := make([]float64, len(e.pop))
	for i, ind := range e.pop {
		out[i] = ind.Fitness
	}
	return out
}

// Positions returns each individual's ground position, in population order.
func (e *Engine) Positions() []r3.Vec {
	out := make([]r3.Vec, len(e.pop))
	for i, ind := range e.pop {
		out[i] = ind.Phenotype.Position(e.rc.Params.Plot)
	}
	return out
}

// Shapes returns each individual's shape, in population order.
func (e *Engine) Shapes() []*tower.Shape {
	out := make([]*tower.Shape, len(e.pop))
	for i, ind := range e.pop {
		out[i] = ind.Shape
	}
	return out
}

// GoodOrientations returns a copy of every good orientation recorded so far.
func (e *Engine) GoodOrientations() []Orientation {
	out := make([]Orientation, len(e.good))
	copy(out, e.good)
	return out
}

// Generation returns the number of completed generations.
func (e *Engine) Generation() int {
	return e.generation
}

// Steps returns the number of completed steps.
func (e *Engine) Steps() int {
	return e.steps
}
