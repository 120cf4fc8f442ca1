package evolve

import (
	"context"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/towergen/capture"
	"github.com/pthm-cable/towergen/geom"
	"github.com/pthm-cable/towergen/tower"
	"github.com/pthm-cable/towergen/visibility"
)

// Objective selects how an evaluation becomes a fitness value.
type Objective int

const (
	ObjectiveObstruction Objective = iota // ray visibility only
	ObjectiveView                         // landmark capture only
	ObjectiveBoth                         // mean of the two
)

// ParseObjective accepts a name or its numeric form.
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "obstruction", "0":
		return ObjectiveObstruction, nil
	case "view", "1":
		return ObjectiveView, nil
	case "both", "2":
		return ObjectiveBoth, nil
	}
	return 0, fmt.Errorf("unknown objective %q", s)
}

func (o Objective) String() string {
	switch o {
	case ObjectiveObstruction:
		return "obstruction"
	case ObjectiveView:
		return "view"
	case ObjectiveBoth:
		return "both"
	default:
		return fmt.Sprintf("Objective(%d)", int(o))
	}
}

// NeedsCapture reports whether the objective renders views.
func (o Objective) NeedsCapture() bool {
	return o == ObjectiveView || o == ObjectiveBoth
}

// Orientation is a facade point and outward normal with a largely
// unobstructed view.
type Orientation struct {
	Point  r3.Vec
	Normal r3.Vec
}

// Evaluation is the scored outcome for one shape.
type Evaluation struct {
	Fitness    float64
	Visibility float64 // ray visibility score
	Capture    float64 // landmark capture score
	Good       []Orientation
	Degenerate bool // no ray or pixel survived; the affected score is 0
}

// FitnessFunc scores a shape.
type FitnessFunc interface {
	Evaluate(ctx context.Context, s *tower.Shape) (Evaluation, error)
}

// FitnessFuncOf adapts a function to FitnessFunc.
type FitnessFuncOf func(ctx context.Context, s *tower.Shape) (Evaluation, error)

// Evaluate calls f.
func (f FitnessFuncOf) Evaluate(ctx context.Context, s *tower.Shape) (Evaluation, error) {
	return f(ctx, s)
}

// Scorer samples face midpoints, casts visibility rays against the
// environment and, when the objective needs it, renders landmark captures
// from the kept samples.
type Scorer struct {
	Objective   Objective
	Environment *geom.Mesh
	Visibility  visibility.Evaluator
	Capture     capture.Evaluator
}

// Evaluate implements FitnessFunc.
func (s *Scorer) Evaluate(ctx context.Context, shape *tower.Shape) (Evaluation, error) {
	vr, err := s.Visibility.Evaluate(ctx, shape, s.Environment, visibility.SampleMidpoints(shape))
	if err != nil {
		return Evaluation{}, fmt.Errorf("visibility: %w", err)
	}

	ev := Evaluation{Visibility: vr.Score}
	ratio := s.Visibility.GoodRatio
	if ratio <= 0 {
		ratio = visibility.DefaultGoodRatio
	}
	for _, ray := range vr.Good(ratio) {
		ev.Good = append(ev.Good, Orientation{Point: ray.Start, Normal: ray.Sample.Normal})
	}

	if !s.Objective.NeedsCapture() {
		ev.Fitness = vr.Score
		ev.Degenerate = vr.Degenerate
		return ev, nil
	}

	cr, err := s.Capture.Evaluate(ctx, vr.Samples())
	if err != nil {
		return Evaluation{}, fmt.Errorf("capture: %w", err)
	}
	ev.Capture = cr.Score
	if s.Objective == ObjectiveView {
		ev.Fitness = cr.Score
		ev.Degenerate = cr.Degenerate
	} else {
		ev.Fitness = (vr.Score + cr.Score) / 2
		ev.Degenerate = vr.Degenerate || cr.Degenerate
	}
	return ev, nil
}
