package gesture

import (
	"gonum.org/v1/gonum/stat"
)

// DefaultEpsilon is the standard deviation below which an axis is treated
// as motionless.
const DefaultEpsilon = 1e-6

// NormalizedTrajectory is a Trajectory whose axes have zero mean and unit
// (population) standard deviation. Axes that carried no motion are flagged
// instead of being divided by zero.
type NormalizedTrajectory struct {
	Trajectory
	DegenerateX bool
	DegenerateY bool
}

// Flat reports whether either axis had effectively no variance. A flat
// trajectory has no usable shape and never matches a template.
func (n NormalizedTrajectory) Flat() bool {
	return n.DegenerateX || n.DegenerateY
}

// Normalize removes translation and scale from each axis independently.
// If an axis standard deviation is below eps it is clamped to eps and the
// axis is marked degenerate. A non-positive eps selects DefaultEpsilon.
func Normalize(t Trajectory, eps float64) NormalizedTrajectory {
	if eps <= 0 {
		eps = DefaultEpsilon
	}

	xs, degX := zscore(t.axis(false), eps)
	ys, degY := zscore(t.axis(true), eps)

	points := make([]Point, t.Len())
	for i := range points {
		points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return NormalizedTrajectory{
		Trajectory:  Trajectory{points: points},
		DegenerateX: degX,
		DegenerateY: degY,
	}
}

func zscore(values []float64, eps float64) ([]float64, bool) {
	if len(values) == 0 {
		return values, true
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	degenerate := std < eps
	if degenerate {
		std = eps
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out, degenerate
}

// RestoreNormalized rebuilds a NormalizedTrajectory from points that were
// normalized earlier, e.g. templates read back from storage. A normalized
// axis has unit deviation; an axis well below that was degenerate.
func RestoreNormalized(points []Point) NormalizedTrajectory {
	t := NewTrajectory(points)
	degenerate := func(values []float64) bool {
		if len(values) == 0 {
			return true
		}
		_, std := stat.PopMeanStdDev(values, nil)
		return std < 0.5
	}
	return NormalizedTrajectory{
		Trajectory:  t,
		DegenerateX: degenerate(t.axis(false)),
		DegenerateY: degenerate(t.axis(true)),
	}
}
