package main

import (
	"github.com/pthm-cable/towergen/genome"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // gene name
	Desc    string  // what the gene controls
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// geneMax keeps clamped genes inside the half-open unit interval.
const geneMax = 1 - 1e-9

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates one parameter per gene, in genome layout order.
func NewParamVector() *ParamVector {
	specs := make([]ParamSpec, genome.GeneCount)
	for i, g := range genome.Layout {
		specs[i] = ParamSpec{Name: g.Name, Desc: g.Desc, Min: 0, Max: geneMax, Default: 0.5}
	}
	return &ParamVector{Specs: specs}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Genotype converts raw values to a genotype, clamping out-of-range genes.
func (pv *ParamVector) Genotype(values []float64) (genome.Genotype, error) {
	return genome.FromSlice(pv.Clamp(values))
}
