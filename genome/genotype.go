// Package genome holds the evolvable gene vector and its decoding into the
// named geometric parameters a tower is built from.
package genome

import (
	"fmt"
	"math/rand"
)

// GeneCount is the fixed length of every gene vector.
const GeneCount = 19

// Default variation operator settings.
const (
	DefaultCrossoverPoint = 10
	DefaultMutationRate   = 0.05
)

// Gene indices. They are only meaningful inside this package; everything
// downstream reads the decoded Phenotype.
const (
	geneHalfX = iota
	geneHalfY
	geneOffsetX
	geneOffsetY
	geneCut0 // 12 genes: x, y, z for each of four stages
	geneReduction = geneCut0 + 3*Stages
	geneRotation  = geneReduction + 1
	geneAngle     = geneRotation + 1
)

// Stages is the number of subdivision passes encoded in the genes.
const Stages = 4

// GeneSpec describes one position of the gene vector.
type GeneSpec struct {
	Name string // Human-readable name
	Desc string // What the gene controls once decoded
}

// Layout names every gene position.
var Layout = [GeneCount]GeneSpec{
	{Name: "half_x", Desc: "footprint half-extent along X"},
	{Name: "half_y", Desc: "footprint half-extent along Y"},
	{Name: "offset_x", Desc: "position offset from plot center along X"},
	{Name: "offset_y", Desc: "position offset from plot center along Y"},
	{Name: "cut0_x", Desc: "stage 0 cut point, X fraction"},
	{Name: "cut0_y", Desc: "stage 0 cut point, Y fraction"},
	{Name: "cut0_z", Desc: "stage 0 cut point, Z fraction"},
	{Name: "cut1_x", Desc: "stage 1 cut point, X fraction"},
	{Name: "cut1_y", Desc: "stage 1 cut point, Y fraction"},
	{Name: "cut1_z", Desc: "stage 1 cut point, Z fraction"},
	{Name: "cut2_x", Desc: "stage 2 cut point, X fraction"},
	{Name: "cut2_y", Desc: "stage 2 cut point, Y fraction"},
	{Name: "cut2_z", Desc: "stage 2 cut point, Z fraction"},
	{Name: "cut3_x", Desc: "stage 3 cut point, X fraction"},
	{Name: "cut3_y", Desc: "stage 3 cut point, Y fraction"},
	{Name: "cut3_z", Desc: "stage 3 cut point, Z fraction"},
	{Name: "reduction_num", Desc: "voxel retain-set size"},
	{Name: "rotation_num", Desc: "number of rotated voxels"},
	{Name: "angle_upper", Desc: "upper bound of voxel rotation in degrees"},
}

// Names returns the gene names in vector order.
func Names() []string {
	names := make([]string, GeneCount)
	for i, spec := range Layout {
		names[i] = spec.Name
	}
	return names
}

// Genotype is the raw evolvable vector. Every gene lies in [0, 1).
type Genotype struct {
	Genes [GeneCount]float64
}

// Random draws a fresh genotype.
func Random(rng *rand.Rand) Genotype {
	var g Genotype
	for i := range g.Genes {
		g.Genes[i] = rng.Float64()
	}
	return g
}

// FromSlice builds a genotype from exactly GeneCount values, clamping each
// into [0, 1).
func FromSlice(values []float64) (Genotype, error) {
	var g Genotype
	if len(values) != GeneCount {
		return g, fmt.Errorf("genome: got %d genes, want %d", len(values), GeneCount)
	}
	for i, v := range values {
		g.Genes[i] = clampUnit(v)
	}
	return g, nil
}

// Slice returns a copy of the genes.
func (g Genotype) Slice() []float64 {
	out := make([]float64, GeneCount)
	copy(out, g.Genes[:])
	return out
}

// Crossover performs single-point crossover. Child A takes a's genes before
// point and b's from point on; child B is the complement.
func Crossover(a, b Genotype, point int) (Genotype, Genotype) {
	if point < 0 {
		point = 0
	} else if point > GeneCount {
		point = GeneCount
	}
	childA, childB := a, b
	for i := point; i < GeneCount; i++ {
		childA.Genes[i] = b.Genes[i]
		childB.Genes[i] = a.Genes[i]
	}
	return childA, childB
}

// Mutate replaces each gene with a fresh uniform draw with probability rate.
// It returns the number of genes replaced.
func (g *Genotype) Mutate(rng *rand.Rand, rate float64) int {
	n := 0
	for i := range g.Genes {
		if rng.Float64() < rate {
			g.Genes[i] = rng.Float64()
			n++
		}
	}
	return n
}

// clampUnit maps v into [0, 1).
func clampUnit(v float64) float64 {
	const maxGene = 1 - 1e-12
	if v < 0 {
		return 0
	}
	if v > maxGene {
		return maxGene
	}
	return v
}
