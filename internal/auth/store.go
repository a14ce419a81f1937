package auth

import (
	"context"
	"time"

	"github.com/banshee-data/gesture.auth/internal/gesture"
)

// TemplateStore persists each user's template set. Save must replace the
// whole set atomically; Load must fail rather than return a set of the
// wrong shape.
type TemplateStore interface {
	Exists(ctx context.Context, username string) (bool, error)
	// Load returns ErrNotFound (possibly wrapped) for unknown users.
	Load(ctx context.Context, username string) (gesture.TemplateSet, error)
	Save(ctx context.Context, username string, set gesture.TemplateSet, at time.Time) error
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}

// Capturer records one trajectory from the sensor.
type Capturer interface {
	Capture(ctx context.Context) (gesture.Trajectory, error)
}

// AttemptRecord is one row of the authentication audit log.
type AttemptRecord struct {
	SessionID    string
	Username     string
	Mode         Mode
	AttemptIndex int
	Passed       bool
	PassCount    int
	Total        int
	BestDistance float64
	Flat         bool
	At           time.Time
}
