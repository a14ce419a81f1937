package auth

import (
	"fmt"
	"time"

	"github.com/banshee-data/gesture.auth/internal/gesture"
)

// Config holds the engine's tunables.
type Config struct {
	CaptureDuration      time.Duration
	TrajectoryLength     int
	RegistrationSamples  int
	VerificationAttempts int
	Quorum               int
	// Threshold is the largest DTW distance that counts as a template match.
	// It is calibrated per deployment.
	Threshold         float64
	Epsilon           float64
	Band              int
	MinUsernameLength int
}

// DefaultConfig returns the stock engine settings: 4 s captures resampled to
// 160 points, 3 registration samples, 2 of 3 verification attempts.
func DefaultConfig() Config {
	return Config{
		CaptureDuration:      4 * time.Second,
		TrajectoryLength:     160,
		RegistrationSamples:  3,
		VerificationAttempts: 3,
		Quorum:               2,
		Threshold:            0.45,
		Epsilon:              gesture.DefaultEpsilon,
		Band:                 0,
		MinUsernameLength:    2,
	}
}

// Validate checks that the settings describe a usable engine.
func (c Config) Validate() error {
	switch {
	case c.CaptureDuration <= 0:
		return fmt.Errorf("capture duration must be positive, got %s", c.CaptureDuration)
	case c.TrajectoryLength < 2:
		return fmt.Errorf("trajectory length must be at least 2, got %d", c.TrajectoryLength)
	case c.RegistrationSamples < 1:
		return fmt.Errorf("registration samples must be at least 1, got %d", c.RegistrationSamples)
	case c.VerificationAttempts < 1:
		return fmt.Errorf("verification attempts must be at least 1, got %d", c.VerificationAttempts)
	case c.Quorum < 1 || c.Quorum > c.VerificationAttempts:
		return fmt.Errorf("quorum must be between 1 and %d, got %d", c.VerificationAttempts, c.Quorum)
	case c.Threshold <= 0:
		return fmt.Errorf("threshold must be positive, got %g", c.Threshold)
	case c.Epsilon <= 0:
		return fmt.Errorf("epsilon must be positive, got %g", c.Epsilon)
	case c.Band < 0:
		return fmt.Errorf("band must not be negative, got %d", c.Band)
	case c.MinUsernameLength < 1:
		return fmt.Errorf("minimum username length must be at least 1, got %d", c.MinUsernameLength)
	}
	return nil
}
