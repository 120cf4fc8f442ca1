package genome

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Remap ranges.
const (
	boundGrowth = 1.2 // upper footprint bound relative to the base

	offsetDivisor = 2.5 // offsets span ±dimension/offsetDivisor

	firstCutMin = 0.2
	cutMin      = 0.3
	cutMax      = 0.9

	countMin = 9
	countMax = 13

	angleMin = 45
	angleMax = 345
)

// Plot is the rectangular building lot. Z of Center is ignored.
type Plot struct {
	Center r3.Vec
	Width  float64
	Height float64
}

// Area returns the plot area.
func (p Plot) Area() float64 {
	return p.Width * p.Height
}

// Params are the per-run inputs shared by every decode.
type Params struct {
	Plot           Plot
	CoverageRatio  float64 // building coverage ratio
	FloorAreaRatio float64 // percent: total floor area = FAR * plot area / 100
}

// CutPoint is a fractional point inside a box's parameter domain.
type CutPoint struct {
	X, Y, Z float64
}

// Phenotype is the decoded, named form of a Genotype.
type Phenotype struct {
	HalfX, HalfY     float64
	OffsetX, OffsetY float64
	Cuts             [Stages]CutPoint
	ReductionNum     float64
	RotationNum      float64
	AngleUpper       float64 // degrees
}

// Position returns the ground position of the tower's bounding box center.
func (ph Phenotype) Position(plot Plot) r3.Vec {
	return r3.Vec{X: plot.Center.X + ph.OffsetX, Y: plot.Center.Y + ph.OffsetY}
}

// Remap linearly maps g from [0, 1) onto [lo, hi).
func Remap(g, lo, hi float64) float64 {
	return lo + g*(hi-lo)
}

// Decode maps a genotype to its phenotype. It is a pure function of its
// inputs.
func Decode(g Genotype, p Params) Phenotype {
	baseX := boundBase(p.CoverageRatio, p.Plot.Width)
	baseY := boundBase(p.CoverageRatio, p.Plot.Height)

	ph := Phenotype{
		HalfX:        Remap(g.Genes[geneHalfX], baseX, boundGrowth*baseX),
		HalfY:        Remap(g.Genes[geneHalfY], baseY, boundGrowth*baseY),
		OffsetX:      Remap(g.Genes[geneOffsetX], -p.Plot.Width/offsetDivisor, p.Plot.Width/offsetDivisor),
		OffsetY:      Remap(g.Genes[geneOffsetY], -p.Plot.Height/offsetDivisor, p.Plot.Height/offsetDivisor),
		ReductionNum: Remap(g.Genes[geneReduction], countMin, countMax),
		RotationNum:  Remap(g.Genes[geneRotation], countMin, countMax),
		AngleUpper:   Remap(g.Genes[geneAngle], angleMin, angleMax),
	}
	for s := 0; s < Stages; s++ {
		lo := cutMin
		if s == 0 {
			lo = firstCutMin
		}
		i := geneCut0 + 3*s
		ph.Cuts[s] = CutPoint{
			X: Remap(g.Genes[i], lo, cutMax),
			Y: Remap(g.Genes[i+1], lo, cutMax),
			Z: Remap(g.Genes[i+2], lo, cutMax),
		}
	}
	return ph
}

// boundBase is the lower footprint half-extent for one plot dimension.
func boundBase(coverage, dim float64) float64 {
	return 1.5 * coverage * dim
}
