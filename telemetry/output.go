package telemetry

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/towergen/config"
	"github.com/pthm-cable/towergen/evolve"
	"github.com/pthm-cable/towergen/tower"
)

// OrientationRecord is one good orientation row.
type OrientationRecord struct {
	Generation int     `csv:"generation"`
	X          float64 `csv:"x"`
	Y          float64 `csv:"y"`
	Z          float64 `csv:"z"`
	NX         float64 `csv:"nx"`
	NY         float64 `csv:"ny"`
	NZ         float64 `csv:"nz"`
}

// VoxelRecord is one voxel of an exported tower.
type VoxelRecord struct {
	Index    int     `csv:"index"`
	CenterX  float64 `csv:"center_x"`
	CenterY  float64 `csv:"center_y"`
	CenterZ  float64 `csv:"center_z"`
	SizeX    float64 `csv:"size_x"`
	SizeY    float64 `csv:"size_y"`
	SizeZ    float64 `csv:"size_z"`
	AngleDeg float64 `csv:"angle_deg"`
}

// VoxelRecords flattens a shape for export.
func VoxelRecords(s *tower.Shape) []VoxelRecord {
	if s == nil {
		return nil
	}
	out := make([]VoxelRecord, len(s.Voxels))
	for i, v := range s.Voxels {
		size := v.Size()
		out[i] = VoxelRecord{
			Index:    i,
			CenterX:  v.Center.X,
			CenterY:  v.Center.Y,
			CenterZ:  v.Center.Z,
			SizeX:    size.X,
			SizeY:    size.Y,
			SizeZ:    size.Z,
			AngleDeg: v.Angle * 180 / math.Pi,
		}
	}
	return out
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir             string
	generationsFile *os.File
	perfFile        *os.File
	goodFile        *os.File

	// Track if headers have been written
	generationsHeaderWritten bool
	perfHeaderWritten        bool
	goodHeaderWritten        bool

	goodWritten int // orientations already exported
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.generationsFile, err = os.Create(filepath.Join(dir, "generations.csv")); err != nil {
		return nil, fmt.Errorf("creating generations.csv: %w", err)
	}
	if om.perfFile, err = os.Create(filepath.Join(dir, "perf.csv")); err != nil {
		om.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	if om.goodFile, err = os.Create(filepath.Join(dir, "good_orientations.csv")); err != nil {
		om.Close()
		return nil, fmt.Errorf("creating good_orientations.csv: %w", err)
	}
	return om, nil
}

// appendCSV writes records to f, with a header on the first write.
func appendCSV(f *os.File, headerWritten *bool, records any) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteGeneration writes a stats record to generations.csv.
func (om *OutputManager) WriteGeneration(stats GenerationStats) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.generationsFile, &om.generationsHeaderWritten, []GenerationStats{stats}); err != nil {
		return fmt.Errorf("writing generation: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, generation int) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.perfFile, &om.perfHeaderWritten, []PerfStatsCSV{stats.ToCSV(generation)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteGoodOrientations appends the orientations not yet exported. all is
// the engine's full, append-only list.
func (om *OutputManager) WriteGoodOrientations(generation int, all []evolve.Orientation) error {
	if om == nil || len(all) <= om.goodWritten {
		return nil
	}

	fresh := all[om.goodWritten:]
	records := make([]OrientationRecord, len(fresh))
	for i, o := range fresh {
		records[i] = OrientationRecord{
			Generation: generation,
			X:          o.Point.X,
			Y:          o.Point.Y,
			Z:          o.Point.Z,
			NX:         o.Normal.X,
			NY:         o.Normal.Y,
			NZ:         o.Normal.Z,
		}
	}
	if err := appendCSV(om.goodFile, &om.goodHeaderWritten, records); err != nil {
		return fmt.Errorf("writing good orientations: %w", err)
	}
	om.goodWritten = len(all)
	return nil
}

// WriteBestTower overwrites best_tower.csv with the voxels of s.
func (om *OutputManager) WriteBestTower(s *tower.Shape) error {
	if om == nil {
		return nil
	}
	f, err := os.Create(filepath.Join(om.dir, "best_tower.csv"))
	if err != nil {
		return fmt.Errorf("creating best_tower.csv: %w", err)
	}
	if err := gocsv.MarshalFile(VoxelRecords(s), f); err != nil {
		f.Close()
		return fmt.Errorf("writing best tower: %w", err)
	}
	return f.Close()
}

// WriteHallOfFame saves the hall of fame as JSON.
func (om *OutputManager) WriteHallOfFame(hof *HallOfFame) error {
	if om == nil || hof == nil {
		return nil
	}

	data, err := hof.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling hall of fame: %w", err)
	}
	if err := os.WriteFile(filepath.Join(om.dir, "hall_of_fame.json"), data, 0644); err != nil {
		return fmt.Errorf("writing hall_of_fame.json: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.generationsFile, om.perfFile, om.goodFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
