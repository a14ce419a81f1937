package auth_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/gesture"
	"github.com/banshee-data/gesture.auth/internal/monitoring"
	"github.com/banshee-data/gesture.auth/internal/testutil"
	"github.com/banshee-data/gesture.auth/internal/timeutil"
)

const length = testutil.DefaultLength

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

// memStore is an in-memory auth.TemplateStore with error injection.
type memStore struct {
	mu        sync.Mutex
	sets      map[string]gesture.TemplateSet
	logins    map[string]time.Time
	attempts  []auth.AttemptRecord
	existsErr error
	loadErr   error
	saveErr   error
	touchErr  error
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{
		sets:   make(map[string]gesture.TemplateSet),
		logins: make(map[string]time.Time),
	}
}

func key(username string) string { return strings.ToLower(strings.TrimSpace(username)) }

func (s *memStore) Exists(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.sets[key(username)]
	return ok, nil
}

func (s *memStore) Load(_ context.Context, username string) (gesture.TemplateSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	set, ok := s.sets[key(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return append(gesture.TemplateSet(nil), set...), nil
}

func (s *memStore) Save(_ context.Context, username string, set gesture.TemplateSet, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sets[key(username)] = append(gesture.TemplateSet(nil), set...)
	return nil
}

func (s *memStore) TouchLastLogin(_ context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchErr != nil {
		return s.touchErr
	}
	s.logins[key(username)] = at
	return nil
}

func (s *memStore) RecordAttempt(_ context.Context, rec auth.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return s.recordErr
	}
	s.attempts = append(s.attempts, rec)
	return nil
}

// script is a Capturer that replays a fixed sequence of captures.
type script struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	tr  gesture.Trajectory
	err error
}

func (s *script) push(trs ...gesture.Trajectory) *script {
	for _, tr := range trs {
		s.steps = append(s.steps, step{tr: tr})
	}
	return s
}

func (s *script) fail(err error) *script {
	s.steps = append(s.steps, step{err: err})
	return s
}

func (s *script) Capture(context.Context) (gesture.Trajectory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return gesture.Trajectory{}, errors.New("script exhausted")
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.tr, st.err
}

type recorder struct {
	events []auth.Event
}

func (r *recorder) emit(e auth.Event) { r.events = append(r.events, e) }

func (r *recorder) take() []auth.Event {
	out := r.events
	r.events = nil
	return out
}

func circle(seed int64) gesture.Trajectory { return testutil.Circle(length, 1, 0.03, seed) }

func eight() gesture.Trajectory { return testutil.FigureEight(length, 1) }

func line() gesture.Trajectory { return testutil.HorizontalLine(length, 2, 0) }

func templates(seeds ...int64) gesture.TemplateSet {
	set := make(gesture.TemplateSet, len(seeds))
	for i, seed := range seeds {
		set[i] = gesture.Normalize(circle(seed), 0)
	}
	return set
}

// separatingThreshold returns a threshold halfway between the worst genuine
// circle and the best impostor figure-eight against templates(1, 2, 3).
func separatingThreshold(t *testing.T) float64 {
	t.Helper()
	set := templates(1, 2, 3)
	genuine := 0.0
	for seed := int64(10); seed < 14; seed++ {
		for _, tpl := range set {
			genuine = math.Max(genuine, gesture.Distance(gesture.Normalize(circle(seed), 0), tpl))
		}
	}
	impostor := math.Inf(1)
	for _, tpl := range set {
		impostor = math.Min(impostor, gesture.Distance(gesture.Normalize(eight(), 0), tpl))
	}
	require.Less(t, genuine, impostor, "circles and figure-eights must be separable")
	return (genuine + impostor) / 2
}

type fixture struct {
	cfg     auth.Config
	store   *memStore
	capture *script
	rec     *recorder
	clock   *timeutil.MockClock
	session *auth.Session
}

func newFixture(t *testing.T, cfg auth.Config) *fixture {
	t.Helper()
	require.NoError(t, cfg.Validate())
	f := &fixture{
		cfg:     cfg,
		store:   newMemStore(),
		capture: &script{},
		rec:     &recorder{},
		clock:   timeutil.NewMockClock(epoch),
	}
	f.session = auth.NewSession(cfg, f.store, f.capture, f.clock, f.rec.emit)
	return f
}

func (f *fixture) dispatch(t *testing.T, cmd auth.Command) ([]auth.Event, error) {
	t.Helper()
	err := f.session.Dispatch(context.Background(), cmd)
	return f.rec.take(), err
}

func (f *fixture) ready(t *testing.T) ([]auth.Event, error) {
	t.Helper()
	return f.dispatch(t, auth.ReadyForCapture{})
}

func testConfig(threshold float64) auth.Config {
	cfg := auth.DefaultConfig()
	cfg.Threshold = threshold
	return cfg
}

func TestNewSessionAwaitsUsername(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	assert.Equal(t, auth.AwaitingUsername, f.session.Disposition())
	assert.Empty(t, f.session.Username())
	assert.NotEmpty(t, f.session.ID())
}

func TestRegistrationStoresTemplatesAndAccepts(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	f.capture.push(circle(1), circle(2), circle(3))

	events, err := f.dispatch(t, auth.SubmitIdentity{Username: "  Alice "})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{
		auth.IdentityResolved{Username: "Alice", Mode: auth.ModeNew},
	}, events))
	assert.Equal(t, auth.Registering, f.session.Disposition())

	for i := 1; i <= 2; i++ {
		events, err = f.ready(t)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff([]auth.Event{
			auth.CaptureStarted{Mode: auth.ModeNew, Index: i, Total: 3},
			auth.SampleRecorded{Index: i, Total: 3},
		}, events))
		ok, err := f.store.Exists(context.Background(), "alice")
		require.NoError(t, err)
		assert.False(t, ok, "nothing is stored before the last sample")
	}

	events, err = f.ready(t)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{
		auth.CaptureStarted{Mode: auth.ModeNew, Index: 3, Total: 3},
		auth.SampleRecorded{Index: 3, Total: 3},
		auth.Accepted{Username: "Alice", FirstLogin: true},
	}, events))

	assert.Equal(t, auth.AcceptedState, f.session.Disposition())
	assert.True(t, f.session.Authenticated())
	assert.Equal(t, "Alice", f.session.Username())

	set, err := f.store.Load(context.Background(), "ALICE")
	require.NoError(t, err)
	require.NoError(t, set.Validate(3, length))
	assert.Equal(t, epoch, f.store.logins["alice"])
	assert.Empty(t, f.store.attempts, "registration is not audited")
}

func TestDisconnectMidRegistrationDiscardsSamples(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	f.capture.push(circle(1), circle(2))

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "bob"})
	require.NoError(t, err)
	_, err = f.ready(t)
	require.NoError(t, err)
	_, err = f.ready(t)
	require.NoError(t, err)

	f.session.Close()
	assert.Equal(t, auth.Unstarted, f.session.Disposition())
	assert.Empty(t, f.session.Username())

	ok, err := f.store.Exists(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	// A closed session can start over.
	events, err := f.dispatch(t, auth.SubmitIdentity{Username: "bob"})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{auth.IdentityResolved{Username: "bob", Mode: auth.ModeNew}}, events))
}

// cancelDuring cancels the dispatch context from inside Capture, then hands
// back the scripted trajectory as if the window had finished anyway.
type cancelDuring struct {
	*script
	cancel context.CancelFunc
}

func (c *cancelDuring) Capture(ctx context.Context) (gesture.Trajectory, error) {
	if c.cancel != nil {
		c.cancel()
	}
	return c.script.Capture(ctx)
}

func TestCancelDuringFinalRegistrationCaptureSavesNothing(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	capturer := &cancelDuring{script: f.capture.push(circle(1), circle(2), circle(3))}
	s := auth.NewSession(f.cfg, f.store, capturer, f.clock, f.rec.emit)

	require.NoError(t, s.Dispatch(context.Background(), auth.SubmitIdentity{Username: "bob"}))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	}
	f.rec.take()

	ctx, cancel := context.WithCancel(context.Background())
	capturer.cancel = cancel
	err := s.Dispatch(ctx, auth.ReadyForCapture{})
	require.ErrorIs(t, err, auth.ErrAborted)
	assert.False(t, auth.IsRetryable(err))
	assert.Equal(t, []auth.Event{auth.CaptureStarted{Mode: auth.ModeNew, Index: 3, Total: 3}}, f.rec.take())
	assert.Equal(t, auth.Registering, s.Disposition())
	assert.Empty(t, f.store.sets)
	assert.Empty(t, f.store.logins)
}

func TestCancelDuringVerificationCaptureIsNotCounted(t *testing.T) {
	f := newFixture(t, testConfig(separatingThreshold(t)))
	f.store.sets["erin"] = templates(1, 2, 3)
	capturer := &cancelDuring{script: f.capture.push(circle(10), circle(11), circle(12))}
	s := auth.NewSession(f.cfg, f.store, capturer, f.clock, f.rec.emit)
	require.NoError(t, s.Dispatch(context.Background(), auth.SubmitIdentity{Username: "erin"}))
	f.rec.take()

	ctx, cancel := context.WithCancel(context.Background())
	capturer.cancel = cancel
	require.ErrorIs(t, s.Dispatch(ctx, auth.ReadyForCapture{}), auth.ErrAborted)
	assert.Len(t, f.rec.take(), 1, "only CaptureStarted")
	assert.Empty(t, f.store.attempts)

	capturer.cancel = nil
	require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	events := f.rec.take()
	assert.Equal(t, auth.CaptureStarted{Mode: auth.ModeExisting, Index: 1, Total: 3}, events[0])
	assert.Equal(t, 1, events[1].(auth.AttemptOutcome).AttemptIndex)
}

func TestStoreRejectReasonsMapToSentinels(t *testing.T) {
	assert.ErrorIs(t, auth.ReasonStoreUnavailable.Err(), auth.ErrStoreRead)
	assert.ErrorIs(t, auth.ReasonRegistrationNotSaved.Err(), auth.ErrStoreWrite)
	assert.NoError(t, auth.ReasonQuorumNotReached.Err())
}

func TestDegenerateRegistrationSampleIsRetryable(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	f.capture.push(line(), circle(1))

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "carol"})
	require.NoError(t, err)

	events, err := f.ready(t)
	require.ErrorIs(t, err, auth.ErrDegenerateCapture)
	assert.True(t, auth.IsRetryable(err))
	require.Len(t, events, 2)
	assert.Equal(t, auth.CaptureStarted{Mode: auth.ModeNew, Index: 1, Total: 3}, events[0])
	e, ok := events[1].(auth.Error)
	require.True(t, ok)
	assert.Equal(t, auth.KindDegenerateCapture, e.Kind)
	assert.True(t, e.Retryable)

	events, err = f.ready(t)
	require.NoError(t, err)
	assert.Contains(t, events, auth.Event(auth.SampleRecorded{Index: 1, Total: 3}))
}

func TestSensorFailureIsRetryable(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*script)
	}{
		{"capture error", func(s *script) { s.fail(errors.New("no samples")) }},
		{"short trajectory", func(s *script) { s.push(testutil.Circle(length-1, 1, 0, 1)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, auth.DefaultConfig())
			tt.setup(f.capture)
			f.capture.push(circle(1))

			_, err := f.dispatch(t, auth.SubmitIdentity{Username: "dave"})
			require.NoError(t, err)

			events, err := f.ready(t)
			require.ErrorIs(t, err, auth.ErrSensorUnavailable)
			require.Len(t, events, 2)
			e := events[1].(auth.Error)
			assert.Equal(t, auth.KindSensorUnavailable, e.Kind)
			assert.True(t, e.Retryable)
			assert.Equal(t, auth.Registering, f.session.Disposition())

			events, err = f.ready(t)
			require.NoError(t, err)
			assert.Equal(t, auth.CaptureStarted{Mode: auth.ModeNew, Index: 1, Total: 3}, events[0])
			assert.Equal(t, auth.SampleRecorded{Index: 1, Total: 3}, events[1])
		})
	}
}

func TestVerificationSensorFailureKeepsAttemptCount(t *testing.T) {
	f := newFixture(t, testConfig(separatingThreshold(t)))
	f.store.sets["erin"] = templates(1, 2, 3)
	f.capture.fail(errors.New("board unplugged")).push(circle(10))

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "erin"})
	require.NoError(t, err)

	_, err = f.ready(t)
	require.ErrorIs(t, err, auth.ErrSensorUnavailable)
	assert.Empty(t, f.store.attempts)

	events, err := f.ready(t)
	require.NoError(t, err)
	assert.Equal(t, auth.CaptureStarted{Mode: auth.ModeExisting, Index: 1, Total: 3}, events[0])
	outcome := events[1].(auth.AttemptOutcome)
	assert.Equal(t, 1, outcome.AttemptIndex)
	assert.True(t, outcome.Passed)
}

func TestTwoPassesAcceptWithoutThirdAttempt(t *testing.T) {
	f := newFixture(t, testConfig(separatingThreshold(t)))
	f.store.sets["alice"] = templates(1, 2, 3)
	f.capture.push(circle(10), circle(11), circle(12))

	events, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{auth.IdentityResolved{Username: "alice", Mode: auth.ModeExisting}}, events))
	assert.Equal(t, auth.Verifying, f.session.Disposition())

	events, err = f.ready(t)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{
		auth.CaptureStarted{Mode: auth.ModeExisting, Index: 1, Total: 3},
		auth.AttemptOutcome{AttemptIndex: 1, Passed: true, PassedCount: 1, TotalCount: 1, MaxAttempts: 3, TemplatePasses: 3},
	}, events))

	events, err = f.ready(t)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff([]auth.Event{
		auth.CaptureStarted{Mode: auth.ModeExisting, Index: 2, Total: 3},
		auth.AttemptOutcome{AttemptIndex: 2, Passed: true, PassedCount: 2, TotalCount: 2, MaxAttempts: 3, TemplatePasses: 3},
		auth.Accepted{Username: "alice", FirstLogin: false},
	}, events))

	assert.Equal(t, 2, f.capture.calls, "no third capture")
	assert.Len(t, f.store.attempts, 2)
	assert.Equal(t, epoch, f.store.logins["alice"])

	_, err = f.ready(t)
	assert.ErrorIs(t, err, auth.ErrInvalidState)
	assert.Equal(t, 2, f.capture.calls)
}

func TestThreeFailuresReject(t *testing.T) {
	f := newFixture(t, testConfig(separatingThreshold(t)))
	f.store.sets["mallory"] = templates(1, 2, 3)
	f.capture.push(eight(), eight(), eight())

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "mallory"})
	require.NoError(t, err)

	var last []auth.Event
	for i := 0; i < 3; i++ {
		last, err = f.ready(t)
		require.NoError(t, err)
		outcome := last[1].(auth.AttemptOutcome)
		assert.False(t, outcome.Passed)
		assert.Equal(t, 0, outcome.PassedCount)
		assert.Equal(t, i+1, outcome.TotalCount)
		assert.Equal(t, 0, outcome.TemplatePasses)
	}
	require.Len(t, last, 3)
	assert.Equal(t, auth.Rejected{Username: "mallory", Reason: auth.ReasonQuorumNotReached, PassedCount: 0}, last[2])
	assert.Equal(t, auth.RejectedState, f.session.Disposition())
	assert.False(t, f.session.Authenticated())
	assert.Empty(t, f.store.logins)

	require.Len(t, f.store.attempts, 3)
	for i, rec := range f.store.attempts {
		assert.Equal(t, i+1, rec.AttemptIndex)
		assert.Equal(t, f.session.ID(), rec.SessionID)
		assert.Equal(t, auth.ModeExisting, rec.Mode)
		assert.False(t, rec.Passed)
		assert.Equal(t, 3, rec.Total)
		assert.Greater(t, rec.BestDistance, 0.0)
	}
}

func TestOnePassOfThreeRejects(t *testing.T) {
	f := newFixture(t, testConfig(separatingThreshold(t)))
	f.store.sets["frank"] = templates(1, 2, 3)
	f.capture.push(eight(), circle(10), eight())

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "frank"})
	require.NoError(t, err)
	var events []auth.Event
	for i := 0; i < 3; i++ {
		events, err = f.ready(t)
		require.NoError(t, err)
	}
	assert.Equal(t, auth.Rejected{Username: "frank", Reason: auth.ReasonQuorumNotReached, PassedCount: 1}, events[len(events)-1])
}

func TestStraightLineNeverAuthenticates(t *testing.T) {
	// Even a huge threshold cannot let a flat gesture through.
	f := newFixture(t, testConfig(1e9))
	f.store.sets["alice"] = templates(1, 2, 3)
	f.capture.push(line(), line(), line())

	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
	require.NoError(t, err)
	var events []auth.Event
	for i := 0; i < 3; i++ {
		events, err = f.ready(t)
		require.NoError(t, err)
		outcome := events[1].(auth.AttemptOutcome)
		assert.True(t, outcome.Flat)
		assert.False(t, outcome.Passed)
	}
	assert.Equal(t, auth.Rejected{Username: "alice", Reason: auth.ReasonQuorumNotReached}, events[2])
	for _, rec := range f.store.attempts {
		assert.True(t, rec.Flat)
		assert.False(t, rec.Passed)
	}
}

func TestAliceEndToEnd(t *testing.T) {
	cfg := testConfig(separatingThreshold(t))
	store := newMemStore()
	capture := (&script{}).push(circle(1), circle(2), circle(3))

	reg := &recorder{}
	s := auth.NewSession(cfg, store, capture, timeutil.NewMockClock(epoch), reg.emit)
	require.NoError(t, s.Dispatch(context.Background(), auth.SubmitIdentity{Username: "alice"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	}
	require.True(t, s.Authenticated())

	// A later login with fresh circles succeeds.
	capture.push(circle(11), circle(12))
	login := &recorder{}
	s = auth.NewSession(cfg, store, capture, timeutil.NewMockClock(epoch.Add(time.Hour)), login.emit)
	require.NoError(t, s.Dispatch(context.Background(), auth.SubmitIdentity{Username: "Alice"}))
	require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	assert.True(t, s.Authenticated())
	assert.Equal(t, auth.Accepted{Username: "Alice"}, login.events[len(login.events)-1])
	assert.Equal(t, epoch.Add(time.Hour), store.logins["alice"])

	// An impostor drawing a figure-eight does not.
	capture.push(eight(), eight(), eight())
	impostor := &recorder{}
	s = auth.NewSession(cfg, store, capture, nil, impostor.emit)
	require.NoError(t, s.Dispatch(context.Background(), auth.SubmitIdentity{Username: "alice"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Dispatch(context.Background(), auth.ReadyForCapture{}))
	}
	assert.Equal(t, auth.RejectedState, s.Disposition())
}

func TestStoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")

	t.Run("exists", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		f.store.existsErr = boom
		events, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []auth.Event{auth.Rejected{Username: "alice", Reason: auth.ReasonStoreUnavailable}}, events)
		assert.Equal(t, auth.RejectedState, f.session.Disposition())
	})

	t.Run("load", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		f.store.sets["alice"] = templates(1, 2, 3)
		f.store.loadErr = boom
		events, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []auth.Event{auth.Rejected{Username: "alice", Reason: auth.ReasonStoreUnavailable}}, events)
	})

	t.Run("wrong shape", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		f.store.sets["alice"] = templates(1, 2)
		events, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, []auth.Event{auth.Rejected{Username: "alice", Reason: auth.ReasonStoreUnavailable}}, events)
	})

	t.Run("save", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		f.store.saveErr = boom
		f.capture.push(circle(1), circle(2), circle(3))
		_, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		var events []auth.Event
		for i := 0; i < 3; i++ {
			events, err = f.ready(t)
			require.NoError(t, err)
		}
		assert.Equal(t, auth.Rejected{Username: "alice", Reason: auth.ReasonRegistrationNotSaved}, events[len(events)-1])
		assert.Empty(t, f.store.sets)
	})

	t.Run("touch and audit are not fatal", func(t *testing.T) {
		f := newFixture(t, testConfig(separatingThreshold(t)))
		f.store.sets["alice"] = templates(1, 2, 3)
		f.store.touchErr = boom
		f.store.recordErr = boom
		f.capture.push(circle(10), circle(11))
		_, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		_, err = f.ready(t)
		require.NoError(t, err)
		events, err := f.ready(t)
		require.NoError(t, err)
		assert.Equal(t, auth.Accepted{Username: "alice"}, events[len(events)-1])
	})
}

func TestInvalidIdentity(t *testing.T) {
	f := newFixture(t, auth.DefaultConfig())
	for _, name := range []string{"", " ", "a", "  b  "} {
		events, err := f.dispatch(t, auth.SubmitIdentity{Username: name})
		require.ErrorIs(t, err, auth.ErrInvalidIdentity, "name %q", name)
		require.Len(t, events, 1)
		e := events[0].(auth.Error)
		assert.Equal(t, auth.KindInvalidIdentity, e.Kind)
		assert.True(t, e.Retryable)
		assert.Equal(t, auth.AwaitingUsername, f.session.Disposition())
	}
	_, err := f.dispatch(t, auth.SubmitIdentity{Username: "jo"})
	assert.NoError(t, err)
}

func TestInvalidState(t *testing.T) {
	t.Run("ready before identity", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		events, err := f.ready(t)
		require.ErrorIs(t, err, auth.ErrInvalidState)
		assert.False(t, auth.IsRetryable(err))
		assert.Equal(t, auth.KindInvalidState, events[0].(auth.Error).Kind)
		assert.Equal(t, 0, f.capture.calls)
	})

	t.Run("identity mid-flow", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		_, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		_, err = f.dispatch(t, auth.SubmitIdentity{Username: "bob"})
		require.ErrorIs(t, err, auth.ErrInvalidState)
		assert.Equal(t, "alice", f.session.Username())
		assert.Equal(t, auth.Registering, f.session.Disposition())
	})

	t.Run("after rejection", func(t *testing.T) {
		f := newFixture(t, auth.DefaultConfig())
		f.store.existsErr = errors.New("down")
		_, err := f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		require.NoError(t, err)
		_, err = f.dispatch(t, auth.SubmitIdentity{Username: "alice"})
		assert.ErrorIs(t, err, auth.ErrInvalidState)
		_, err = f.ready(t)
		assert.ErrorIs(t, err, auth.ErrInvalidState)
		assert.Equal(t, auth.RejectedState, f.session.Disposition())
	})
}

func TestDispositionString(t *testing.T) {
	assert.Equal(t, "Accepted", auth.AcceptedState.String())
	assert.Equal(t, "AwaitingUsername", auth.AwaitingUsername.String())
	assert.True(t, auth.RejectedState.Terminal())
	assert.False(t, auth.Verifying.Terminal())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, auth.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*auth.Config)
	}{
		{"zero duration", func(c *auth.Config) { c.CaptureDuration = 0 }},
		{"short trajectory", func(c *auth.Config) { c.TrajectoryLength = 1 }},
		{"no samples", func(c *auth.Config) { c.RegistrationSamples = 0 }},
		{"no attempts", func(c *auth.Config) { c.VerificationAttempts = 0 }},
		{"quorum above attempts", func(c *auth.Config) { c.Quorum = 4 }},
		{"zero quorum", func(c *auth.Config) { c.Quorum = 0 }},
		{"zero threshold", func(c *auth.Config) { c.Threshold = 0 }},
		{"zero epsilon", func(c *auth.Config) { c.Epsilon = 0 }},
		{"negative band", func(c *auth.Config) { c.Band = -1 }},
		{"zero username length", func(c *auth.Config) { c.MinUsernameLength = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := auth.DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
