package main

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"

	"github.com/pthm-cable/towergen/evolve"
	"github.com/pthm-cable/towergen/genome"
	"github.com/pthm-cable/towergen/tower"
)

// FitnessEvaluator builds a genotype under several seeds and scores each
// build. Reduction and rotation picks are random, so one genotype yields
// different towers per seed.
type FitnessEvaluator struct {
	params   *ParamVector
	decode   genome.Params
	builder  tower.Builder
	scorer   evolve.FitnessFunc
	seeds    []int64
	parallel bool

	mu           sync.Mutex
	bestFitness  float64
	best         evolve.Individual
	lastMean     float64 // mean tower fitness from the most recent Evaluate call
	lastFailures int
}

// NewFitnessEvaluator creates a new evaluator. With parallel set, seeds are
// built and scored concurrently; scorer must then be safe for concurrent use.
func NewFitnessEvaluator(params *ParamVector, decode genome.Params, builder tower.Builder, scorer evolve.FitnessFunc, seeds []int64, parallel bool) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		decode:      decode,
		builder:     builder,
		scorer:      scorer,
		seeds:       seeds,
		parallel:    parallel,
		bestFitness: math.Inf(1),
	}
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	ind evolve.Individual
	err error
}

// Evaluate computes the cost of a raw parameter vector (lower = better): the
// negated mean tower fitness over all seeds. Builds or evaluations that fail
// score zero.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	g, err := fe.params.Genotype(x)
	if err != nil {
		slog.Warn("invalid parameter vector", "error", err)
		return 0
	}
	ph := genome.Decode(g, fe.decode)

	results := make([]seedResult, len(fe.seeds))
	run := func(i int) {
		results[i] = fe.runSeed(g, ph, fe.seeds[i])
	}
	if fe.parallel {
		var wg sync.WaitGroup
		for i := range fe.seeds {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				run(idx)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range fe.seeds {
			run(i)
		}
	}

	var total float64
	var failures int
	var bestSeed evolve.Individual
	for _, r := range results {
		if r.err != nil {
			failures++
			slog.Debug("seed failed", "error", r.err)
			continue
		}
		total += r.ind.Fitness
		if bestSeed.Shape == nil || r.ind.Fitness > bestSeed.Fitness {
			bestSeed = r.ind
		}
	}
	mean := total / float64(len(fe.seeds))
	cost := -mean

	fe.mu.Lock()
	if cost < fe.bestFitness && bestSeed.Shape != nil {
		fe.bestFitness = cost
		fe.best = bestSeed
	}
	fe.lastMean = mean
	fe.lastFailures = failures
	fe.mu.Unlock()

	return cost
}

// runSeed builds and scores one tower.
func (fe *FitnessEvaluator) runSeed(g genome.Genotype, ph genome.Phenotype, seed int64) seedResult {
	rng := rand.New(rand.NewSource(seed))
	shape, err := fe.builder.Build(ph, fe.decode, rng)
	if err != nil {
		return seedResult{err: err}
	}
	ev, err := fe.scorer.Evaluate(context.Background(), shape)
	if err != nil {
		return seedResult{err: err}
	}
	return seedResult{ind: evolve.Individual{
		Genotype:   g,
		Phenotype:  ph,
		Shape:      shape,
		Fitness:    ev.Fitness,
		Evaluation: ev,
	}}
}

// Best returns the best single tower seen and its evaluation's cost.
func (fe *FitnessEvaluator) Best() (evolve.Individual, float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.best, fe.bestFitness
}

// Last returns the mean tower fitness and failed seeds of the most recent
// evaluation.
func (fe *FitnessEvaluator) Last() (mean float64, failures int) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastMean, fe.lastFailures
}
