// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the synthetic gesture generators used by the
// gesture, sensor, auth and server tests so that every package agrees on what
// "alice's circle" looks like.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/gesture.auth/internal/gesture"
)

// DefaultLength matches the production trajectory length (4 s at 40 Hz).
const DefaultLength = 160

// CirclePoints returns length points tracing one circle of the given radius
// centred on (cx, cy). Each point's radius is perturbed by up to ±noise
// (a fraction, e.g. 0.03 for 3%) using a deterministic seed.
func CirclePoints(length int, radius, cx, cy, noise float64, seed int64) []gesture.Point {
	rng := rand.New(rand.NewSource(seed))
	points := make([]gesture.Point, length)
	for i := range points {
		theta := 2 * math.Pi * float64(i) / float64(length)
		r := radius * (1 + noise*(2*rng.Float64()-1))
		points[i] = gesture.Point{X: cx + r*math.Cos(theta), Y: cy + r*math.Sin(theta)}
	}
	return points
}

// Circle is CirclePoints wrapped as a Trajectory.
func Circle(length int, radius, noise float64, seed int64) gesture.Trajectory {
	return gesture.NewTrajectory(CirclePoints(length, radius, 0, 0, noise, seed))
}

// HorizontalLine returns a straight left-to-right swipe. The Y axis carries no
// motion, so the normalized trajectory is flat.
func HorizontalLine(length int, span, y float64) gesture.Trajectory {
	points := make([]gesture.Point, length)
	for i := range points {
		points[i] = gesture.Point{X: span * float64(i) / float64(length-1), Y: y}
	}
	return gesture.NewTrajectory(points)
}

// FigureEight returns a lemniscate-shaped trajectory, a real gesture whose
// shape differs from a circle.
func FigureEight(length int, radius float64) gesture.Trajectory {
	points := make([]gesture.Point, length)
	for i := range points {
		theta := 2 * math.Pi * float64(i) / float64(length)
		points[i] = gesture.Point{X: radius * math.Sin(theta), Y: radius * math.Sin(theta) * math.Cos(theta)}
	}
	return gesture.NewTrajectory(points)
}

// Timestamps spreads count instants evenly over [start, start+window).
func Timestamps(start time.Time, window time.Duration, count int) []time.Time {
	out := make([]time.Time, count)
	step := window / time.Duration(count)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * step)
	}
	return out
}
