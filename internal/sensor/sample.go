// Package sensor turns the stream of accelerometer readings from the single
// attached sensor into fixed-length gesture trajectories.
package sensor

import (
	"errors"
	"time"
)

// ErrNoSamples is returned when a capture window closed without a single
// reading from the source.
var ErrNoSamples = errors.New("no sensor samples captured")

// RawSample is one timestamped accelerometer reading. X and Y carry the
// gesture shape; Z is kept for diagnostics.
type RawSample struct {
	At      time.Time
	X, Y, Z float64
}

// Source is a push stream of samples. Each subscriber gets its own channel,
// which is closed after Unsubscribe.
type Source interface {
	Subscribe() (string, <-chan RawSample)
	Unsubscribe(id string)
}
