package sensor

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/gesture.auth/internal/gesture"
	"github.com/banshee-data/gesture.auth/internal/monitoring"
	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

var logf = monitoring.Component("sensor")

// Sampler captures one gesture from a Source while holding the Device.
type Sampler struct {
	device   *Device
	source   Source
	clock    timeutil.Clock
	duration time.Duration
	length   int
}

// NewSampler returns a Sampler whose Capture records windows of duration
// resampled to length points.
func NewSampler(device *Device, source Source, clock timeutil.Clock, duration time.Duration, length int) *Sampler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Sampler{
		device:   device,
		source:   source,
		clock:    clock,
		duration: duration,
		length:   length,
	}
}

// Capture records one window using the configured duration and length.
func (s *Sampler) Capture(ctx context.Context) (gesture.Trajectory, error) {
	return s.CaptureWindow(ctx, s.duration, s.length)
}

// CaptureWindow waits for the device, records every sample that arrives in
// the next duration and resamples them to length points. The window always
// runs to completion once started; ctx only bounds the wait for the device.
func (s *Sampler) CaptureWindow(ctx context.Context, duration time.Duration, length int) (gesture.Trajectory, error) {
	if duration <= 0 || length <= 0 {
		return gesture.Trajectory{}, fmt.Errorf("invalid capture window %s/%d", duration, length)
	}

	lease, err := s.device.Acquire(ctx)
	if err != nil {
		return gesture.Trajectory{}, fmt.Errorf("acquire sensor: %w", err)
	}
	defer lease.Release()

	id, samples := s.source.Subscribe()
	defer s.source.Unsubscribe(id)

	start := s.clock.Now()
	timer := s.clock.NewTimer(duration)
	defer timer.Stop()

	var captured []RawSample
	keep := func(rs RawSample) {
		if off := rs.At.Sub(start); off >= 0 && off < duration {
			captured = append(captured, rs)
		}
	}

collect:
	for {
		select {
		case rs, ok := <-samples:
			if !ok {
				break collect
			}
			keep(rs)
		case <-timer.C():
			// take whatever the source delivered before the deadline
			for {
				select {
				case rs, ok := <-samples:
					if !ok {
						break collect
					}
					keep(rs)
				default:
					break collect
				}
			}
		}
	}

	logf("captured %d samples in %s", len(captured), duration)
	return Resample(captured, start, duration, length)
}

// Resample maps irregular samples onto length evenly spaced buckets covering
// [start, start+duration). Each bucket is the mean of its samples; empty
// buckets are linearly interpolated between the nearest filled neighbours,
// and leading or trailing empty buckets repeat the nearest filled value.
func Resample(samples []RawSample, start time.Time, duration time.Duration, length int) (gesture.Trajectory, error) {
	if length <= 0 || duration <= 0 {
		return gesture.Trajectory{}, fmt.Errorf("invalid resample window %s/%d", duration, length)
	}

	sums := make([]gesture.Point, length)
	counts := make([]int, length)
	filled := 0
	for _, rs := range samples {
		off := rs.At.Sub(start)
		if off < 0 || off >= duration {
			continue
		}
		i := int(float64(off) * float64(length) / float64(duration))
		if i >= length {
			i = length - 1
		}
		if counts[i] == 0 {
			filled++
		}
		sums[i].X += rs.X
		sums[i].Y += rs.Y
		counts[i]++
	}
	if filled == 0 {
		return gesture.Trajectory{}, ErrNoSamples
	}

	points := make([]gesture.Point, length)
	for i := range points {
		if counts[i] > 0 {
			n := float64(counts[i])
			points[i] = gesture.Point{X: sums[i].X / n, Y: sums[i].Y / n}
		}
	}

	prev := -1
	for i := 0; i < length; i++ {
		if counts[i] > 0 {
			prev = i
			continue
		}
		next := i + 1
		for next < length && counts[next] == 0 {
			next++
		}
		switch {
		case prev < 0:
			points[i] = points[next]
		case next >= length:
			points[i] = points[prev]
		default:
			f := float64(i-prev) / float64(next-prev)
			points[i] = gesture.Point{
				X: points[prev].X + f*(points[next].X-points[prev].X),
				Y: points[prev].Y + f*(points[next].Y-points[prev].Y),
			}
		}
	}

	return gesture.NewTrajectory(points), nil
}
