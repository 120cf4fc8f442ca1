package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pthm-cable/towergen/evolve"
	"github.com/pthm-cable/towergen/genome"
)

// HallEntry is a tower that reached the hall of fame.
type HallEntry struct {
	Genotype   genome.Genotype
	Fitness    float64
	Visibility float64
	Capture    float64
	Floors     int
	Voxels     int
	Generation int
}

// HallOfFame keeps the fittest distinct genotypes seen during a run, for
// reseeding later runs.
type HallOfFame struct {
	entries []HallEntry // descending fitness
	maxSize int
}

// NewHallOfFame creates a hall holding at most maxSize entries.
func NewHallOfFame(maxSize int) *HallOfFame {
	if maxSize < 1 {
		maxSize = 1
	}
	return &HallOfFame{entries: make([]HallEntry, 0, maxSize), maxSize: maxSize}
}

// Consider offers an individual for entry. Returns true if it was added.
func (hof *HallOfFame) Consider(generation int, ind evolve.Individual) bool {
	for _, e := range hof.entries {
		if e.Genotype == ind.Genotype {
			return false
		}
	}

	entry := HallEntry{
		Genotype:   ind.Genotype,
		Fitness:    ind.Fitness,
		Visibility: ind.Evaluation.Visibility,
		Capture:    ind.Evaluation.Capture,
		Generation: generation,
	}
	if ind.Shape != nil {
		entry.Floors = ind.Shape.Floors
		entry.Voxels = ind.Shape.Len()
	}
	return hof.insert(entry)
}

// insert adds entry in fitness order, dropping the lowest when full.
func (hof *HallOfFame) insert(entry HallEntry) bool {
	idx := sort.Search(len(hof.entries), func(i int) bool {
		return hof.entries[i].Fitness < entry.Fitness
	})
	if idx >= hof.maxSize {
		return false
	}

	hof.entries = append(hof.entries, HallEntry{})
	copy(hof.entries[idx+1:], hof.entries[idx:])
	hof.entries[idx] = entry
	if len(hof.entries) > hof.maxSize {
		hof.entries = hof.entries[:hof.maxSize]
	}
	return true
}

// Entries returns the hall in descending fitness order.
func (hof *HallOfFame) Entries() []HallEntry {
	out := make([]HallEntry, len(hof.entries))
	copy(out, hof.entries)
	return out
}

// Genotypes returns the hall's genotypes, fittest first.
func (hof *HallOfFame) Genotypes() []genome.Genotype {
	out := make([]genome.Genotype, len(hof.entries))
	for i, e := range hof.entries {
		out[i] = e.Genotype
	}
	return out
}

// Len returns the number of entries.
func (hof *HallOfFame) Len() int {
	return len(hof.entries)
}

// hallEntryJSON is the JSON-serializable representation of a hall entry.
type hallEntryJSON struct {
	Fitness    float64            `json:"fitness"`
	Visibility float64            `json:"visibility"`
	Capture    float64            `json:"capture"`
	Floors     int                `json:"floors"`
	Voxels     int                `json:"voxels"`
	Generation int                `json:"generation"`
	Genes      map[string]float64 `json:"genes"`
}

// MarshalJSON serializes the hall with genes keyed by name.
func (hof *HallOfFame) MarshalJSON() ([]byte, error) {
	export := make([]hallEntryJSON, len(hof.entries))
	for i, e := range hof.entries {
		genes := make(map[string]float64, genome.GeneCount)
		for k, spec := range genome.Layout {
			genes[spec.Name] = e.Genotype.Genes[k]
		}
		export[i] = hallEntryJSON{
			Fitness:    e.Fitness,
			Visibility: e.Visibility,
			Capture:    e.Capture,
			Floors:     e.Floors,
			Voxels:     e.Voxels,
			Generation: e.Generation,
			Genes:      genes,
		}
	}
	return json.MarshalIndent(export, "", "  ")
}

// LoadHallOfFameFromFile reads a hall of fame written by MarshalJSON.
// Missing genes are left at zero.
func LoadHallOfFameFromFile(path string) (*HallOfFame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hall of fame: %w", err)
	}

	var raw []hallEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing hall of fame JSON: %w", err)
	}

	hof := NewHallOfFame(len(raw))
	for _, ej := range raw {
		genes := make([]float64, genome.GeneCount)
		for k, spec := range genome.Layout {
			genes[k] = ej.Genes[spec.Name]
		}
		g, err := genome.FromSlice(genes)
		if err != nil {
			return nil, err
		}
		hof.insert(HallEntry{
			Genotype:   g,
			Fitness:    ej.Fitness,
			Visibility: ej.Visibility,
			Capture:    ej.Capture,
			Floors:     ej.Floors,
			Voxels:     ej.Voxels,
			Generation: ej.Generation,
		})
	}
	return hof, nil
}
