package gesture

import "math"

// Distance returns the dynamic time warping distance between a and b using
// the Euclidean distance between points as local cost, normalized by the
// trajectory length. Trajectories of different lengths are never compared:
// the result is +Inf.
func Distance(a, b NormalizedTrajectory) float64 {
	return DistanceBand(a, b, 0)
}

// DistanceBand is Distance restricted to a Sakoe-Chiba band of the given
// half-width. A band <= 0 means unconstrained. Cells outside the band are
// +Inf, so the result is never smaller than the unconstrained distance.
func DistanceBand(a, b NormalizedTrajectory, band int) float64 {
	n := a.Len()
	if n == 0 || n != b.Len() {
		return math.Inf(1)
	}

	inf := math.Inf(1)
	prev := make([]float64, n+1)
	cur := make([]float64, n+1)
	for j := range prev {
		prev[j] = inf
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		cur[0] = inf
		pa := a.points[i-1]
		for j := 1; j <= n; j++ {
			if band > 0 && absInt(i-j) > band {
				cur[j] = inf
				continue
			}
			cost := pointDistance(pa, b.points[j-1])
			cur[j] = cost + min3(prev[j], cur[j-1], prev[j-1])
		}
		prev, cur = cur, prev
	}

	return prev[n] / float64(n)
}

func pointDistance(p, q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

func min3(a, b, c float64) float64 {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
