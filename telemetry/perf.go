package telemetry

import (
	"log/slog"
	"time"
)

// Phase names within a generation.
const (
	PhaseEvolve    = "evolve"
	PhaseTelemetry = "telemetry"
)

// PerfSample holds timing data for a single generation.
type PerfSample struct {
	Duration time.Duration
	Steps    int
	Phases   map[string]time.Duration
}

// PerfCollector tracks generation timing over a rolling window.
type PerfCollector struct {
	windowSize    int
	samples       []PerfSample
	writeIndex    int
	sampleCount   int
	currentPhases map[string]time.Duration
	start         time.Time
	phaseStart    time.Time
	lastPhase     string
}

// NewPerfCollector creates a collector averaging over windowSize generations.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 10
	}
	return &PerfCollector{
		windowSize:    windowSize,
		samples:       make([]PerfSample, windowSize),
		currentPhases: make(map[string]time.Duration),
	}
}

// Start begins timing a generation.
func (p *PerfCollector) Start() {
	p.start = time.Now()
	p.currentPhases = make(map[string]time.Duration)
	p.lastPhase = ""
}

// StartPhase ends the running phase, if any, and begins timing phase.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}
	p.phaseStart = now
	p.lastPhase = phase
}

// End finishes timing the generation, which ran steps GA steps.
func (p *PerfCollector) End(steps int) {
	now := time.Now()
	if p.lastPhase != "" {
		p.currentPhases[p.lastPhase] += now.Sub(p.phaseStart)
	}

	p.samples[p.writeIndex] = PerfSample{
		Duration: now.Sub(p.start),
		Steps:    steps,
		Phases:   p.currentPhases,
	}
	p.writeIndex = (p.writeIndex + 1) % p.windowSize
	if p.sampleCount < p.windowSize {
		p.sampleCount++
	}
}

// PerfStats holds aggregated performance statistics.
type PerfStats struct {
	AvgGeneration time.Duration
	MinGeneration time.Duration
	MaxGeneration time.Duration

	// Phase breakdown (average durations and share of generation time)
	PhaseAvg map[string]time.Duration
	PhasePct map[string]float64

	StepsPerSecond float64
}

// Stats computes aggregated statistics over the current window.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if p.sampleCount == 0 {
		return s
	}

	var total time.Duration
	var steps int
	phaseSum := make(map[string]time.Duration)
	for i := 0; i < p.sampleCount; i++ {
		smp := p.samples[i]
		total += smp.Duration
		steps += smp.Steps
		if i == 0 || smp.Duration < s.MinGeneration {
			s.MinGeneration = smp.Duration
		}
		if smp.Duration > s.MaxGeneration {
			s.MaxGeneration = smp.Duration
		}
		for phase, d := range smp.Phases {
			phaseSum[phase] += d
		}
	}

	s.AvgGeneration = total / time.Duration(p.sampleCount)
	for phase, sum := range phaseSum {
		s.PhaseAvg[phase] = sum / time.Duration(p.sampleCount)
		if s.AvgGeneration > 0 {
			s.PhasePct[phase] = float64(s.PhaseAvg[phase]) / float64(s.AvgGeneration) * 100
		}
	}
	if total > 0 {
		s.StepsPerSecond = float64(steps) / total.Seconds()
	}
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_generation_ms", s.AvgGeneration.Milliseconds()),
		slog.Int64("min_generation_ms", s.MinGeneration.Milliseconds()),
		slog.Int64("max_generation_ms", s.MaxGeneration.Milliseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	for phase, pct := range s.PhasePct {
		attrs = append(attrs, slog.Float64(phase+"_pct", pct))
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	Generation      int     `csv:"generation"`
	AvgGenerationMS int64   `csv:"avg_generation_ms"`
	MinGenerationMS int64   `csv:"min_generation_ms"`
	MaxGenerationMS int64   `csv:"max_generation_ms"`
	StepsPerSec     float64 `csv:"steps_per_sec"`
	EvolvePct       float64 `csv:"evolve_pct"`
	TelemetryPct    float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(generation int) PerfStatsCSV {
	return PerfStatsCSV{
		Generation:      generation,
		AvgGenerationMS: s.AvgGeneration.Milliseconds(),
		MinGenerationMS: s.MinGeneration.Milliseconds(),
		MaxGenerationMS: s.MaxGeneration.Milliseconds(),
		StepsPerSec:     s.StepsPerSecond,
		EvolvePct:       s.PhasePct[PhaseEvolve],
		TelemetryPct:    s.PhasePct[PhaseTelemetry],
	}
}
