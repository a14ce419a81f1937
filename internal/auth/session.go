// Package auth sequences gesture registration and verification for one
// connection at a time and reports progress as transport-neutral events.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/banshee-data/gesture.auth/internal/gesture"
	"github.com/banshee-data/gesture.auth/internal/monitoring"
	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

var logf = monitoring.Component("auth")

// Disposition is the externally visible name of a session's state.
type Disposition int

const (
	Unstarted Disposition = iota
	AwaitingUsername
	Registering
	Verifying
	AcceptedState
	RejectedState
)

func (d Disposition) String() string {
	switch d {
	case Unstarted:
		return "Unstarted"
	case AwaitingUsername:
		return "AwaitingUsername"
	case Registering:
		return "Registering"
	case Verifying:
		return "Verifying"
	case AcceptedState:
		return "Accepted"
	case RejectedState:
		return "Rejected"
	}
	return "Unknown"
}

// Terminal reports whether no further command can change the session.
func (d Disposition) Terminal() bool {
	return d == AcceptedState || d == RejectedState
}

// state is the tagged union of session states. Each variant carries exactly
// the data that is meaningful in it.
type state interface {
	disposition() Disposition
}

type unstartedState struct{}

type awaitingState struct{}

type registeringState struct {
	username string
	samples  gesture.TemplateSet
}

type verifyingState struct {
	username  string
	templates gesture.TemplateSet
	attempts  int
	passed    int
}

type acceptedState struct {
	username   string
	firstLogin bool
}

type rejectedState struct {
	username string
	reason   RejectReason
	passed   int
}

func (unstartedState) disposition() Disposition   { return Unstarted }
func (awaitingState) disposition() Disposition    { return AwaitingUsername }
func (registeringState) disposition() Disposition { return Registering }
func (verifyingState) disposition() Disposition   { return Verifying }
func (acceptedState) disposition() Disposition    { return AcceptedState }
func (rejectedState) disposition() Disposition    { return RejectedState }

// Session is the authentication state machine for one connection. All
// commands go through Dispatch, which serializes them.
type Session struct {
	mu       sync.Mutex
	id       string
	cfg      Config
	store    TemplateStore
	capturer Capturer
	clock    timeutil.Clock
	emit     Emitter
	state    state
	// disp mirrors state.disposition() so it can be read while a capture
	// holds mu.
	disp atomic.Int32
	// epoch is bumped by Close before it waits for mu. A capture that
	// started under an older epoch is discarded.
	epoch atomic.Uint64
}

// NewSession returns a session awaiting a username.
func NewSession(cfg Config, store TemplateStore, capturer Capturer, clock timeutil.Clock, emit Emitter) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if emit == nil {
		emit = func(Event) {}
	}
	s := &Session{
		id:       uuid.New().String(),
		cfg:      cfg,
		store:    store,
		capturer: capturer,
		clock:    clock,
		emit:     emit,
	}
	s.setState(awaitingState{})
	return s
}

func (s *Session) setState(st state) {
	s.state = st
	s.disp.Store(int32(st.disposition()))
}

// ID returns the session's unique id, used in the audit log.
func (s *Session) ID() string { return s.id }

// Disposition returns the current state name.
func (s *Session) Disposition() Disposition {
	return Disposition(s.disp.Load())
}

// Username returns the claimed username, or "" before SubmitIdentity.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch st := s.state.(type) {
	case registeringState:
		return st.username
	case verifyingState:
		return st.username
	case acceptedState:
		return st.username
	case rejectedState:
		return st.username
	}
	return ""
}

// Authenticated reports whether the session ended in Accepted.
func (s *Session) Authenticated() bool {
	return s.Disposition() == AcceptedState
}

// Close discards all session state, including any partial registration.
// A capture in flight when Close is called is dropped when it returns.
func (s *Session) Close() {
	s.epoch.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setState(unstartedState{})
}

// Dispatch applies one command. Every call emits at least one event; the
// returned error mirrors an emitted Error event and is nil otherwise. The
// one exception is ErrAborted, after which the caller is gone.
func (s *Session) Dispatch(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := cmd.(type) {
	case SubmitIdentity:
		return s.submitIdentity(ctx, c.Username)
	case ReadyForCapture:
		return s.readyForCapture(ctx)
	}
	return s.fail(KindInvalidState, fmt.Sprintf("unknown command %T", cmd), false)
}

func (s *Session) fail(kind ErrorKind, detail string, retryable bool) error {
	s.emit(Error{Kind: kind, Detail: detail, Retryable: retryable})
	return fmt.Errorf("%w: %s", kind.Err(), detail)
}

// storeFailed logs a store error under the sentinel of the reason it maps to
// and ends the session with that reason.
func (s *Session) storeFailed(username string, reason RejectReason, err error) {
	logf("session %s: %q: %v", s.id, username, fmt.Errorf("%w: %w", reason.Err(), err))
	s.reject(username, reason, 0)
}

func (s *Session) reject(username string, reason RejectReason, passed int) {
	s.setState(rejectedState{username: username, reason: reason, passed: passed})
	s.emit(Rejected{Username: username, Reason: reason, PassedCount: passed})
}

func (s *Session) accept(ctx context.Context, username string, firstLogin bool) {
	s.setState(acceptedState{username: username, firstLogin: firstLogin})
	if err := s.store.TouchLastLogin(ctx, username, s.clock.Now()); err != nil {
		logf("session %s: failed to record login for %q: %v", s.id, username, err)
	}
	s.emit(Accepted{Username: username, FirstLogin: firstLogin})
}

func (s *Session) submitIdentity(ctx context.Context, username string) error {
	switch s.state.(type) {
	case unstartedState, awaitingState:
	default:
		return s.fail(KindInvalidState, "identity already submitted", false)
	}

	username = strings.TrimSpace(username)
	if utf8.RuneCountInString(username) < s.cfg.MinUsernameLength {
		return s.fail(KindInvalidIdentity, fmt.Sprintf("username must be at least %d characters", s.cfg.MinUsernameLength), true)
	}

	exists, err := s.store.Exists(ctx, username)
	if err != nil {
		s.storeFailed(username, ReasonStoreUnavailable, err)
		return nil
	}

	if !exists {
		s.setState(registeringState{username: username})
		s.emit(IdentityResolved{Username: username, Mode: ModeNew})
		return nil
	}

	templates, err := s.store.Load(ctx, username)
	if err == nil {
		err = templates.Validate(s.cfg.RegistrationSamples, s.cfg.TrajectoryLength)
	}
	if err != nil {
		s.storeFailed(username, ReasonStoreUnavailable, err)
		return nil
	}

	s.setState(verifyingState{username: username, templates: templates})
	s.emit(IdentityResolved{Username: username, Mode: ModeExisting})
	return nil
}

// capture records and normalizes one trajectory. A non-nil error has
// already been reported as a retryable Error event, except ErrAborted which
// means the caller went away and nothing more may be emitted or stored.
func (s *Session) capture(ctx context.Context) (gesture.NormalizedTrajectory, error) {
	epoch := s.epoch.Load()
	tr, err := s.capturer.Capture(ctx)
	if s.epoch.Load() != epoch || ctx.Err() != nil {
		logf("session %s: capture abandoned", s.id)
		return gesture.NormalizedTrajectory{}, ErrAborted
	}
	if err == nil {
		err = tr.CheckLength(s.cfg.TrajectoryLength)
	}
	if err != nil {
		logf("session %s: capture failed: %v", s.id, err)
		return gesture.NormalizedTrajectory{}, s.fail(KindSensorUnavailable, "no gesture data was captured, try again", true)
	}
	return gesture.Normalize(tr, s.cfg.Epsilon), nil
}

func (s *Session) readyForCapture(ctx context.Context) error {
	switch st := s.state.(type) {
	case registeringState:
		return s.register(ctx, st)
	case verifyingState:
		return s.verify(ctx, st)
	case unstartedState, awaitingState:
		return s.fail(KindInvalidState, "send a username first", false)
	}
	return s.fail(KindInvalidState, "authentication already finished", false)
}

func (s *Session) register(ctx context.Context, st registeringState) error {
	n := s.cfg.RegistrationSamples
	k := len(st.samples)
	s.emit(CaptureStarted{Mode: ModeNew, Index: k + 1, Total: n})

	norm, err := s.capture(ctx)
	if err != nil {
		return err
	}
	if norm.Flat() {
		return s.fail(KindDegenerateCapture, "no motion detected, try again", true)
	}

	samples := make(gesture.TemplateSet, k, k+1)
	copy(samples, st.samples)
	samples = append(samples, norm)
	k++
	s.setState(registeringState{username: st.username, samples: samples})
	s.emit(SampleRecorded{Index: k, Total: n})

	if k < n {
		return nil
	}
	if err := s.store.Save(ctx, st.username, samples, s.clock.Now()); err != nil {
		s.storeFailed(st.username, ReasonRegistrationNotSaved, err)
		return nil
	}
	logf("session %s: registered %q", s.id, st.username)
	s.accept(ctx, st.username, true)
	return nil
}

func (s *Session) verify(ctx context.Context, st verifyingState) error {
	s.emit(CaptureStarted{Mode: ModeExisting, Index: st.attempts + 1, Total: s.cfg.VerificationAttempts})

	norm, err := s.capture(ctx)
	if err != nil {
		return err
	}

	res := gesture.Evaluate(norm, st.templates, s.cfg.Threshold, s.cfg.Band)
	st.attempts++
	if res.Passed {
		st.passed++
	}
	s.setState(st)

	if err := s.store.RecordAttempt(ctx, AttemptRecord{
		SessionID:    s.id,
		Username:     st.username,
		Mode:         ModeExisting,
		AttemptIndex: st.attempts,
		Passed:       res.Passed,
		PassCount:    res.PassCount,
		Total:        res.Total,
		BestDistance: res.Best(),
		Flat:         res.Flat,
		At:           s.clock.Now(),
	}); err != nil {
		logf("session %s: audit %q: %v", s.id, st.username, err)
	}

	s.emit(AttemptOutcome{
		AttemptIndex:   st.attempts,
		Passed:         res.Passed,
		PassedCount:    st.passed,
		TotalCount:     st.attempts,
		MaxAttempts:    s.cfg.VerificationAttempts,
		TemplatePasses: res.PassCount,
		Flat:           res.Flat,
	})

	switch {
	case st.passed >= s.cfg.Quorum:
		s.accept(ctx, st.username, false)
	case st.attempts >= s.cfg.VerificationAttempts:
		logf("session %s: rejected %q with %d/%d passes", s.id, st.username, st.passed, st.attempts)
		s.reject(st.username, ReasonQuorumNotReached, st.passed)
	}
	return nil
}

// IsRetryable reports whether err came from a retryable session failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSensorUnavailable) || errors.Is(err, ErrDegenerateCapture) || errors.Is(err, ErrInvalidIdentity)
}
