package gesture

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned when a template set does not have the
// expected number of templates or template length.
var ErrShapeMismatch = errors.New("template set shape mismatch")

// TemplateSet is the ordered collection of normalized reference
// trajectories registered for one user.
type TemplateSet []NormalizedTrajectory

// Validate checks that the set holds exactly n templates of exactly l points
// and that none of them is flat.
func (s TemplateSet) Validate(n, l int) error {
	if len(s) != n {
		return fmt.Errorf("%w: %d templates, want %d", ErrShapeMismatch, len(s), n)
	}
	for i, tpl := range s {
		if tpl.Len() != l {
			return fmt.Errorf("%w: template %d has %d points, want %d", ErrShapeMismatch, i, tpl.Len(), l)
		}
		if tpl.Flat() {
			return fmt.Errorf("%w: template %d is flat", ErrShapeMismatch, i)
		}
	}
	return nil
}

// AttemptResult is the outcome of comparing one candidate against a
// template set.
type AttemptResult struct {
	Distances []float64
	PassCount int
	Total     int
	Passed    bool
	// Flat is set when the candidate had no usable motion; such a
	// candidate passes no template.
	Flat bool
}

// Best returns the smallest distance, or +Inf when nothing was compared.
func (r AttemptResult) Best() float64 {
	if len(r.Distances) == 0 {
		return math.Inf(1)
	}
	return floats.Min(r.Distances)
}

// Evaluate scores candidate against every template. A template passes when
// its distance is at most threshold; the attempt passes when strictly more
// than half of the templates pass.
func Evaluate(candidate NormalizedTrajectory, templates TemplateSet, threshold float64, band int) AttemptResult {
	res := AttemptResult{
		Distances: make([]float64, len(templates)),
		Total:     len(templates),
		Flat:      candidate.Flat(),
	}
	for i, tpl := range templates {
		d := DistanceBand(candidate, tpl, band)
		res.Distances[i] = d
		if res.Flat {
			continue
		}
		if d <= threshold {
			res.PassCount++
		}
	}
	res.Passed = 2*res.PassCount > res.Total
	return res
}
