// Package gesture holds the shape-matching core of the authenticator:
// fixed-length trajectories, per-axis normalization, dynamic time warping
// and majority-vote evaluation against a user's template set.
//
// Everything in this package is pure. Trajectories are immutable values;
// every transform returns a copy.
package gesture

import (
	"errors"
	"fmt"
)

// ErrLengthMismatch is returned when a trajectory does not have the
// configured number of points.
var ErrLengthMismatch = errors.New("trajectory length mismatch")

// Point is one resampled 2-D sensor reading (the X and Y acceleration axes).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Trajectory is an ordered, evenly spaced sequence of points.
type Trajectory struct {
	points []Point
}

// NewTrajectory copies points into a new Trajectory.
func NewTrajectory(points []Point) Trajectory {
	cp := make([]Point, len(points))
	copy(cp, points)
	return Trajectory{points: cp}
}

// Len returns the number of points.
func (t Trajectory) Len() int { return len(t.points) }

// At returns the i-th point.
func (t Trajectory) At(i int) Point { return t.points[i] }

// Points returns a copy of the underlying points.
func (t Trajectory) Points() []Point {
	cp := make([]Point, len(t.points))
	copy(cp, t.points)
	return cp
}

// CheckLength returns ErrLengthMismatch unless t has exactly want points.
func (t Trajectory) CheckLength(want int) error {
	if len(t.points) != want {
		return fmt.Errorf("%w: got %d points, want %d", ErrLengthMismatch, len(t.points), want)
	}
	return nil
}

// axis extracts one coordinate column.
func (t Trajectory) axis(y bool) []float64 {
	out := make([]float64, len(t.points))
	for i, p := range t.points {
		if y {
			out[i] = p.Y
		} else {
			out[i] = p.X
		}
	}
	return out
}
