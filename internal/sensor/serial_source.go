package sensor

import (
	"sync/atomic"

	"github.com/banshee-data/gesture.auth/internal/serialmux"
	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

// SerialSource adapts the line stream of a serial sensor board into samples.
// Samples are stamped with the host clock on receipt; status and unparseable
// lines are skipped.
type SerialSource struct {
	mux     serialmux.SerialMuxInterface
	clock   timeutil.Clock
	skipped atomic.Uint64
}

// NewSerialSource returns a Source reading from mux.
func NewSerialSource(mux serialmux.SerialMuxInterface, clock timeutil.Clock) *SerialSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SerialSource{mux: mux, clock: clock}
}

func (s *SerialSource) Subscribe() (string, <-chan RawSample) {
	id, lines := s.mux.Subscribe()
	out := make(chan RawSample, serialmux.SubscriberBuffer)
	go func() {
		defer close(out)
		for line := range lines {
			r, ok := serialmux.ParseReading(line)
			if !ok {
				s.skipped.Add(1)
				continue
			}
			select {
			case out <- RawSample{At: s.clock.Now(), X: r.X, Y: r.Y, Z: r.Z}:
			default:
				s.skipped.Add(1)
			}
		}
	}()
	return id, out
}

// Unsubscribe stops delivery; the sample channel closes once the line
// channel has drained.
func (s *SerialSource) Unsubscribe(id string) {
	s.mux.Unsubscribe(id)
}

// Skipped returns the number of lines that were not delivered as samples.
func (s *SerialSource) Skipped() uint64 {
	return s.skipped.Load()
}
