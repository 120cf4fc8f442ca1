package geom

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestTessellateNormalsOutward(t *testing.T) {
	b := NewBox(r3.Vec{}, r3.Vec{X: 3, Y: 5, Z: 7})
	m := Tessellate(b)

	if m.Len() != 12 {
		t.Fatalf("Len() = %d, want 12", m.Len())
	}
	for i, tri := range m.Triangles {
		n := tri.Normal()
		out := r3.Sub(tri.Centroid(), b.Center)
		if r3.Dot(n, out) <= 0 {
			t.Errorf("triangle %d normal %v points inward", i, n)
		}
	}
}

func TestMeshIntersect(t *testing.T) {
	m := Tessellate(NewBox(r3.Vec{X: 10, Y: -1, Z: -1}, r3.Vec{X: 12, Y: 1, Z: 1}))
	// Off the face diagonals so each face reports a single hit.
	o := r3.Vec{Y: 0.3, Z: 0.2}

	tests := []struct {
		name     string
		ray      Ray
		wantHits int
		wantT    float64
	}{
		{"through", NewRay(o, r3.Vec{X: 1}, 100), 2, 10},
		{"short", NewRay(o, r3.Vec{X: 1}, 5), 0, 0},
		{"reaches near face", NewRay(o, r3.Vec{X: 1}, 11), 1, 10},
		{"away", NewRay(o, r3.Vec{X: -1}, 100), 0, 0},
		{"miss", NewRay(r3.Vec{Y: 5}, r3.Vec{X: 1}, 100), 0, 0},
		{"from inside", NewRay(r3.Vec{X: 11, Y: 0.3, Z: 0.2}, r3.Vec{X: 1}, 100), 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := m.Intersect(tt.ray)
			if len(hits) != tt.wantHits {
				t.Fatalf("Intersect() = %d hits, want %d", len(hits), tt.wantHits)
			}
			if tt.wantHits > 0 && math.Abs(hits[0].T-tt.wantT) > 1e-9 {
				t.Errorf("first hit T = %v, want %v", hits[0].T, tt.wantT)
			}
			for i := 1; i < len(hits); i++ {
				if hits[i].T < hits[i-1].T {
					t.Errorf("hits not ordered: %v", hits)
				}
			}
			if got := m.Hits(tt.ray); got != (tt.wantHits > 0) {
				t.Errorf("Hits() = %v, want %v", got, tt.wantHits > 0)
			}
		})
	}
}

func TestMeshClosest(t *testing.T) {
	near := NewBox(r3.Vec{X: 5, Y: -1, Z: -1}, r3.Vec{X: 6, Y: 1, Z: 1})
	far := NewBox(r3.Vec{X: 20, Y: -1, Z: -1}, r3.Vec{X: 21, Y: 1, Z: 1})
	m := Merge(Tessellate(far), nil, Tessellate(near))

	hit, ok := m.Closest(NewRay(r3.Vec{}, r3.Vec{X: 1}, 200))
	if !ok {
		t.Fatal("Closest() found no hit")
	}
	if math.Abs(hit.T-5) > 1e-9 {
		t.Errorf("Closest().T = %v, want 5", hit.T)
	}
	if !vecNear(hit.Point, r3.Vec{X: 5}) {
		t.Errorf("Closest().Point = %v, want {5 0 0}", hit.Point)
	}
}

func TestEmptyMesh(t *testing.T) {
	var m *Mesh
	r := NewRay(r3.Vec{}, r3.Vec{X: 1}, 10)

	if m.Hits(r) {
		t.Error("nil mesh reported a hit")
	}
	if _, ok := m.Closest(r); ok {
		t.Error("nil mesh reported a closest hit")
	}
	if hits := NewMesh(nil).Intersect(r); len(hits) != 0 {
		t.Errorf("empty mesh returned %d hits", len(hits))
	}
}

// bruteClosest tests every triangle without the BVH.
func bruteClosest(m *Mesh, r Ray) (float64, bool) {
	best, found := math.Inf(1), false
	for _, tri := range m.Triangles {
		if t, ok := intersectTriangle(r, tri, r.Length); ok && t < best {
			best, found = t, true
		}
	}
	return best, found
}

func randomBoxes(rng *rand.Rand, n int) []Box {
	boxes := make([]Box, n)
	for i := range boxes {
		lo := r3.Vec{X: rng.Float64()*200 - 100, Y: rng.Float64()*200 - 100, Z: rng.Float64() * 20}
		size := r3.Vec{X: 1 + rng.Float64()*10, Y: 1 + rng.Float64()*10, Z: 1 + rng.Float64()*50}
		boxes[i] = NewBox(lo, r3.Add(lo, size)).Rotated(rng.Float64() * math.Pi)
	}
	return boxes
}

func TestBVHMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := MeshFromBoxes(randomBoxes(rng, 60))

	for i := 0; i < 500; i++ {
		origin := r3.Vec{X: rng.Float64()*240 - 120, Y: rng.Float64()*240 - 120, Z: rng.Float64() * 60}
		dir := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64() * 0.3}
		r := NewRay(origin, dir, 150)

		want, wantOK := bruteClosest(m, r)
		got, ok := m.Closest(r)
		if ok != wantOK {
			t.Fatalf("ray %d: Closest ok = %v, brute force = %v", i, ok, wantOK)
		}
		if ok && math.Abs(got.T-want) > 1e-9 {
			t.Fatalf("ray %d: Closest T = %v, brute force = %v", i, got.T, want)
		}
		if m.Hits(r) != wantOK {
			t.Fatalf("ray %d: Hits disagrees with brute force", i)
		}
	}
}

func BenchmarkMeshClosest(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	m := MeshFromBoxes(randomBoxes(rng, 500))
	rays := make([]Ray, 1024)
	for i := range rays {
		rays[i] = NewRay(r3.Vec{Z: 5}, r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64()}, 200)
	}
	m.Closest(rays[0])

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Closest(rays[i%len(rays)])
	}
}
