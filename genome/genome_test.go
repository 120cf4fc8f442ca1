package genome

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func testParams() Params {
	return Params{
		Plot:           Plot{Center: r3.Vec{X: 50, Y: 50}, Width: 100, Height: 100},
		CoverageRatio:  0.5,
		FloorAreaRatio: 700,
	}
}

func filled(v float64) Genotype {
	var g Genotype
	for i := range g.Genes {
		g.Genes[i] = v
	}
	return g
}

func TestLayoutMatchesIndices(t *testing.T) {
	tests := []struct {
		index int
		name  string
	}{
		{geneHalfX, "half_x"},
		{geneOffsetY, "offset_y"},
		{geneCut0, "cut0_x"},
		{geneCut0 + 3*(Stages-1) + 2, "cut3_z"},
		{geneReduction, "reduction_num"},
		{geneRotation, "rotation_num"},
		{geneAngle, "angle_upper"},
	}

	for _, tt := range tests {
		if Layout[tt.index].Name != tt.name {
			t.Errorf("Layout[%d] = %q, want %q", tt.index, Layout[tt.index].Name, tt.name)
		}
	}
	if geneAngle != GeneCount-1 {
		t.Errorf("last gene index = %d, want %d", geneAngle, GeneCount-1)
	}
}

func TestCrossover(t *testing.T) {
	a, b := filled(0), filled(1)

	childA, childB := Crossover(a, b, DefaultCrossoverPoint)

	for i := 0; i < GeneCount; i++ {
		wantA, wantB := 0.0, 1.0
		if i >= DefaultCrossoverPoint {
			wantA, wantB = 1.0, 0.0
		}
		if childA.Genes[i] != wantA {
			t.Errorf("childA[%d] = %v, want %v", i, childA.Genes[i], wantA)
		}
		if childB.Genes[i] != wantB {
			t.Errorf("childB[%d] = %v, want %v", i, childB.Genes[i], wantB)
		}
	}

	// Parents are untouched.
	if a.Genes[GeneCount-1] != 0 || b.Genes[0] != 1 {
		t.Error("Crossover modified a parent")
	}
}

func TestMutate(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		wantAll bool
	}{
		{"zero rate", 0, false},
		{"full rate", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := filled(0.5)
			n := g.Mutate(rand.New(rand.NewSource(3)), tt.rate)

			if tt.wantAll && n != GeneCount {
				t.Errorf("Mutate replaced %d genes, want %d", n, GeneCount)
			}
			if !tt.wantAll && (n != 0 || g != filled(0.5)) {
				t.Errorf("Mutate at rate 0 changed %d genes", n)
			}
			for i, v := range g.Genes {
				if v < 0 || v >= 1 {
					t.Errorf("gene %d = %v, out of [0,1)", i, v)
				}
			}
		})
	}
}

func TestMutateRate(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	total := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		g := Random(rng)
		total += g.Mutate(rng, DefaultMutationRate)
	}

	rate := float64(total) / float64(trials*GeneCount)
	if math.Abs(rate-DefaultMutationRate) > 0.01 {
		t.Errorf("observed mutation rate %.4f, want ~%.2f", rate, DefaultMutationRate)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := testParams()

	for i := 0; i < 50; i++ {
		g := Random(rng)
		if Decode(g, p) != Decode(g, p) {
			t.Fatalf("Decode is not deterministic for %v", g.Genes)
		}
	}
}

func TestDecodeBounds(t *testing.T) {
	p := testParams()

	tests := []struct {
		name string
		g    Genotype
	}{
		{"zeros", filled(0)},
		{"near one", filled(1 - 1e-12)},
		{"half", filled(0.5)},
		{"random", Random(rand.New(rand.NewSource(5)))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ph := Decode(tt.g, p)

			within := func(name string, v, lo, hi float64) {
				if v < lo-1e-9 || v > hi+1e-9 {
					t.Errorf("%s = %v, want in [%v, %v]", name, v, lo, hi)
				}
			}
			within("HalfX", ph.HalfX, 75, 90)
			within("HalfY", ph.HalfY, 75, 90)
			within("OffsetX", ph.OffsetX, -40, 40)
			within("OffsetY", ph.OffsetY, -40, 40)
			within("ReductionNum", ph.ReductionNum, 9, 13)
			within("RotationNum", ph.RotationNum, 9, 13)
			within("AngleUpper", ph.AngleUpper, 45, 345)
			for s, c := range ph.Cuts {
				lo := 0.3
				if s == 0 {
					lo = 0.2
				}
				within("Cut.X", c.X, lo, 0.9)
				within("Cut.Y", c.Y, lo, 0.9)
				within("Cut.Z", c.Z, lo, 0.9)
			}
		})
	}
}

func TestDecodeZeroGenes(t *testing.T) {
	ph := Decode(filled(0), testParams())

	if ph.HalfX != 75 || ph.OffsetX != -40 || ph.AngleUpper != 45 {
		t.Errorf("Decode(0) = %+v, want lower bounds", ph)
	}
	if ph.Cuts[0].X != 0.2 || ph.Cuts[1].X != 0.3 {
		t.Errorf("cut lower bounds = %v, %v, want 0.2, 0.3", ph.Cuts[0].X, ph.Cuts[1].X)
	}
}

func TestPosition(t *testing.T) {
	p := testParams()
	ph := Phenotype{OffsetX: -10, OffsetY: 5}

	got := ph.Position(p.Plot)
	if got != (r3.Vec{X: 40, Y: 55}) {
		t.Errorf("Position() = %v, want {40 55 0}", got)
	}
}

func TestFromSlice(t *testing.T) {
	if _, err := FromSlice(make([]float64, GeneCount-1)); err == nil {
		t.Error("FromSlice accepted a short vector")
	}

	values := make([]float64, GeneCount)
	values[0], values[1] = -0.5, 1.5
	g, err := FromSlice(values)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if g.Genes[0] != 0 || g.Genes[1] >= 1 {
		t.Errorf("FromSlice did not clamp: %v, %v", g.Genes[0], g.Genes[1])
	}
	if len(g.Slice()) != GeneCount {
		t.Errorf("Slice() len = %d, want %d", len(g.Slice()), GeneCount)
	}
}
