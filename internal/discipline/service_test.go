package discipline

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/constants"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/obligation"
	"github.com/julianstephens/lockstep/internal/storage"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx   context.Context
	repo  *storage.KVRepository
	clock *clock.Fake
	sink  *notifier.Recorder
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, kv.NewMemory())
}

func newFixtureOn(t *testing.T, store kv.Store) *fixture {
	t.Helper()
	repo := storage.NewKVRepository(store)
	clk := clock.NewFake(now)
	sink := &notifier.Recorder{}
	return &fixture{
		ctx:   context.Background(),
		repo:  repo,
		clock: clk,
		sink:  sink,
		svc:   New(repo, clk, sink),
	}
}

var errWriteFailed = stderrors.New("write failed")

// flakyStore fails the next n writes to keys with a prefix.
type flakyStore struct {
	kv.Store

	mu     sync.Mutex
	prefix string
	n      int
}

func (s *flakyStore) failWrites(prefix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefix, s.n = prefix, n
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	fail := s.n > 0 && strings.HasPrefix(key, s.prefix)
	if fail {
		s.n--
	}
	s.mu.Unlock()
	if fail {
		return errWriteFailed
	}
	return s.Store.Set(ctx, key, value)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore) {
	t.Helper()
	store := &flakyStore{Store: kv.NewMemory()}
	return newFixtureOn(t, store), store
}

func (f *fixture) create(t *testing.T, units int, at time.Time, opts ...obligation.Option) models.Obligation {
	t.Helper()
	o, err := f.svc.CreateObligation(f.ctx, "u1", "workout", units, at, opts...)
	require.NoError(t, err)
	return o
}

func (f *fixture) user(t *testing.T) models.User {
	t.Helper()
	u, err := f.svc.GetUser(f.ctx, "u1")
	require.NoError(t, err)
	return u
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 3, now.Add(48*time.Hour))
	assert.Equal(t, models.ObligationCreated, o.Status)

	f.clock.Advance(25 * time.Hour)
	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationBinding, got.Status)

	locked, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, locked)

	f.clock.Advance(23 * time.Hour)
	got, err = f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationBound, got.Status)

	status, err := f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.Locked)
	assert.Equal(t, o.ID, status.Lock.ObligationID)
	assert.Equal(t, 24*time.Hour, status.TimeRemaining)
	assert.Equal(t, 1, f.sink.Count(notifier.KindLockCreated))
}

func TestScenarioLockedActionsRefused(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 3, now)
	require.Equal(t, models.ObligationBound, o.Status)

	locked, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)
	require.True(t, locked)

	attempts := []struct {
		action string
		call   func() error
	}{
		{constants.ActionNavigate, func() error { _, err := f.svc.Navigate(f.ctx, "u1", "home"); return err }},
		{constants.ActionOpenSettings, func() error { _, err := f.svc.OpenSettings(f.ctx, "u1"); return err }},
		{constants.ActionAccessPlanning, func() error { _, err := f.svc.AccessPlanning(f.ctx, "u1"); return err }},
	}
	for _, a := range attempts {
		var lockedErr *errors.ActionLockedError
		require.ErrorAs(t, a.call(), &lockedErr, a.action)
		assert.Equal(t, a.action, lockedErr.AttemptedAction)
		assert.Equal(t, o.ID, lockedErr.ObligationID)
	}

	h, err := f.svc.History(f.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, h.Escapes, 3)
	assert.Len(t, h.Actions, 3)
	for _, entry := range h.Actions {
		assert.False(t, entry.Permitted)
	}
}

func TestScenarioExecutionResolvesLock(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 2, now)

	got, err := f.svc.LogExecution(f.ctx, o.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationBound, got.Status)

	_, err = f.svc.Navigate(f.ctx, "u1", "home")
	require.ErrorIs(t, err, errors.ErrActionLocked)

	got, err = f.svc.LogExecution(f.ctx, o.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationExecuted, got.Status)
	require.NotNil(t, got.ResolvedAt)

	d, err := f.svc.Navigate(f.ctx, "u1", "home")
	require.NoError(t, err)
	assert.True(t, d.Permitted)

	h, err := f.svc.History(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h.Locks, 1)
	assert.Equal(t, models.LockResolved, h.Locks[0].Status)
	assert.Equal(t, models.ResolutionExecuted, h.Locks[0].Resolution)
	require.Len(t, h.Executions, 1)
	assert.Equal(t, models.ResultExecuted, h.Executions[0].Result)

	assert.Equal(t, 1, f.user(t).ConsecutiveExecutions)
}

func TestScenarioRescheduleOutsideBindingWindow(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 1, now.Add(72*time.Hour))

	target := now.Add(96 * time.Hour)
	got, err := f.svc.RescheduleObligation(f.ctx, o.ID, target)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationCreated, got.Status)
	assert.True(t, got.ScheduledAt.Equal(target))
	assert.True(t, got.BindingTime.Equal(target.Add(-constants.BindingWindow)))
}

func TestScenarioRescheduleInsideBindingWindow(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 1, now.Add(12*time.Hour))
	require.Equal(t, models.ObligationBinding, o.Status)

	_, err := f.svc.RescheduleObligation(f.ctx, o.ID, now.Add(96*time.Hour))
	var violation *errors.BindingViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, string(models.ObligationBinding), violation.CurrentStatus)
	assert.Equal(t, errors.ViolationReschedule, violation.Kind)

	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.ScheduledAt.Equal(now.Add(12*time.Hour)))

	h, err := f.svc.History(f.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, h.Violations, 1)
}

func TestScenarioWindowExpiry(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 3, now)

	// Work continues until a minute before the window closes.
	f.clock.Advance(24*time.Hour - time.Minute)
	_, err := f.svc.LogExecution(f.ctx, o.ID, 1)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationFailed, got.Status)

	status, err := f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, status.Locked)

	h, err := f.svc.History(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h.Locks, 1)
	assert.Equal(t, models.LockExpired, h.Locks[0].Status)
	assert.Equal(t, models.ResolutionFailed, h.Locks[0].Resolution)

	u := f.user(t)
	assert.Equal(t, 1, u.FailureCount)
	assert.Equal(t, 1, u.DebtUnits)
	assert.Equal(t, 0, u.RestrictionLevel)
	assert.Equal(t, models.UserActive, u.Status)
	assert.Equal(t, 1, f.sink.Count(notifier.KindObligationFailed))
}

func TestExpiryAppliesOnce(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 3, now)
	f.clock.Advance(30 * time.Hour)

	for i := 0; i < 3; i++ {
		_, err := f.svc.GetObligation(f.ctx, o.ID)
		require.NoError(t, err)
		_, err = f.svc.IsLocked(f.ctx, "u1")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.user(t).FailureCount)
	history, err := f.svc.ExecutionHistory(f.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAbandonedLockScalesDebt(t *testing.T) {
	f := newFixture(t)
	f.create(t, 3, now)

	f.clock.Advance(24 * time.Hour)
	_, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)

	// A day without activity is avoidance: 1 x 1.5 rounds up to 2.
	assert.Equal(t, 2, f.user(t).DebtUnits)
}

func TestEscapeAttemptsBumpRestriction(t *testing.T) {
	f := newFixture(t)
	f.create(t, 3, now)

	for i := 0; i < constants.EscapeAttemptThreshold; i++ {
		_, err := f.svc.Navigate(f.ctx, "u1", "home")
		require.ErrorIs(t, err, errors.ErrActionLocked)
	}

	f.clock.Advance(24 * time.Hour)
	locked, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, locked)

	u := f.user(t)
	assert.Equal(t, 1, u.FailureCount)
	assert.Equal(t, 2, u.DebtUnits)
	assert.Equal(t, 1, u.RestrictionLevel)
	assert.Equal(t, 1, u.EscapeBumps)
	assert.Equal(t, models.UserRestricted, u.Status)

	_, err = f.svc.RouteAction(f.ctx, "u1", constants.ActionShareProgress, nil)
	assert.ErrorIs(t, err, errors.ErrRestricted)
}

func TestSequentialLocking(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1, now.Add(time.Hour))
	second := f.create(t, 1, now.Add(2*time.Hour))

	f.clock.Advance(3 * time.Hour)
	status, err := f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.Locked)
	assert.Equal(t, first.ID, status.Lock.ObligationID)
	assert.Equal(t, 1, status.Queued)

	_, err = f.svc.LogExecution(f.ctx, first.ID, 1)
	require.NoError(t, err)

	status, err = f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	require.True(t, status.Locked)
	assert.Equal(t, second.ID, status.Lock.ObligationID)
	assert.Equal(t, 0, status.Queued)
}

func TestQueuedObligationMissed(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1, now)
	second := f.create(t, 1, now.Add(time.Hour))

	f.clock.Advance(26 * time.Hour)
	locked, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, locked)

	for _, id := range []string{first.ID, second.ID} {
		o, err := f.svc.GetObligation(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ObligationFailed, o.Status)
	}
	u := f.user(t)
	assert.Equal(t, 2, u.FailureCount)
	assert.Equal(t, 1, u.RestrictionLevel)
}

func TestExecutionStreakLiftsRestriction(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveUser(f.ctx, models.User{
		ID:               "u1",
		CreatedAt:        now,
		FailureCount:     2,
		DebtUnits:        3,
		RestrictionLevel: 1,
		Status:           models.UserRestricted,
	}))

	for i := 0; i < 3; i++ {
		o := f.create(t, 1, f.clock.Now(), obligation.WithDebtRepayment())
		_, err := f.svc.LogExecution(f.ctx, o.ID, 1)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
	}

	u := f.user(t)
	assert.Equal(t, 0, u.RestrictionLevel)
	assert.Equal(t, models.UserActive, u.Status)
	assert.Equal(t, 0, u.DebtUnits)
	assert.Equal(t, 0, u.ConsecutiveExecutions)
}

func TestSuspendedUserCanScheduleRepayment(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.SaveUser(f.ctx, models.User{
		ID:               "u1",
		FailureCount:     5,
		RestrictionLevel: constants.MaxRestrictionLevel,
		Status:           models.UserSuspended,
	}))

	_, err := f.svc.AccessPlanning(f.ctx, "u1")
	require.ErrorIs(t, err, errors.ErrRestricted)

	d, err := f.svc.RouteAction(f.ctx, "u1", constants.ActionCreateObligation, nil)
	require.NoError(t, err)
	assert.True(t, d.Permitted)
}

func TestGuardedMutations(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 2, now)

	err := f.svc.DeleteObligation(f.ctx, o.ID)
	assert.ErrorIs(t, err, errors.ErrBindingViolation)

	units := 1
	_, err = f.svc.ModifyObligation(f.ctx, o.ID, obligation.Modification{UnitsRequired: &units})
	var violation *errors.BindingViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, errors.ViolationModify(obligation.FieldUnitsRequired), violation.Kind)

	later := f.create(t, 2, now.Add(72*time.Hour))
	require.NoError(t, f.svc.DeleteObligation(f.ctx, later.ID))
	_, err = f.svc.GetObligation(f.ctx, later.ID)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestBehaviourSignals(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, now)

	counted, err := f.svc.ReportBackground(f.ctx, "u1", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, counted)
	counted, err = f.svc.ReportBackground(f.ctx, "u1", time.Minute)
	require.NoError(t, err)
	assert.True(t, counted)
	require.NoError(t, f.svc.ReportForceClose(f.ctx, "u1"))

	f.clock.Advance(301 * time.Second)
	sent, err := f.svc.CheckIdle(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	require.NoError(t, f.svc.ReportActivity(f.ctx, "u1"))
	sent, err = f.svc.CheckIdle(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	l, err := f.svc.Resume(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.EscapeAttempts)
	assert.Equal(t, time.Minute+10*time.Second, l.BackgroundDuration)
	assert.Equal(t, 1, l.ResumeCount)
	assert.Equal(t, 1, f.sink.Count(notifier.KindLockPersisted))
}

func TestRegisterUser(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.RegisterUser(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.UserActive, u.Status)

	u.DebtUnits = 4
	require.NoError(t, f.repo.SaveUser(f.ctx, u))
	again, err := f.svc.RegisterUser(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, again.DebtUnits)

	_, err = f.svc.RegisterUser(f.ctx, " ")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestConcurrentExecutionLogging(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 10, now)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.LogExecution(f.ctx, o.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.UnitsCompleted)
	assert.Equal(t, models.ObligationExecuted, got.Status)

	history, err := f.svc.ExecutionHistory(f.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEscapeThresholdRaisesRestrictionWithoutFailure(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, 3, now)

	for i := 0; i < constants.EscapeAttemptThreshold+2; i++ {
		_, err := f.svc.Navigate(f.ctx, "u1", "home")
		require.ErrorIs(t, err, errors.ErrActionLocked)
	}

	u := f.user(t)
	assert.Equal(t, 1, u.RestrictionLevel)
	assert.Equal(t, 1, u.EscapeBumps, "one bump per lock")
	assert.Equal(t, models.UserRestricted, u.Status)
	assert.Equal(t, 0, u.FailureCount)

	_, err := f.svc.LogExecution(f.ctx, o.ID, 3)
	require.NoError(t, err)

	u = f.user(t)
	assert.Equal(t, 1, u.RestrictionLevel, "the bump outlives an executed lock")
	assert.Equal(t, 1, u.ConsecutiveExecutions)
	_, err = f.svc.RouteAction(f.ctx, "u1", constants.ActionShareProgress, nil)
	assert.ErrorIs(t, err, errors.ErrRestricted)
}

func TestLockStatusReportsExpiryBeforeHandover(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1, now)
	second := f.create(t, 1, now.Add(12*time.Hour))

	f.clock.Advance(25 * time.Hour)
	status, err := f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, status.Expired)
	assert.Equal(t, first.ID, status.Expired.ObligationID)
	assert.Equal(t, models.LockExpired, status.Expired.Status)
	require.True(t, status.Locked)
	assert.Equal(t, second.ID, status.Lock.ObligationID)
	require.NotNil(t, status.Obligation)
	assert.Equal(t, second.ID, status.Obligation.ID)

	status, err = f.svc.GetLockStatus(f.ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, status.Expired, "the expiry is reported once")
	assert.Equal(t, second.ID, status.Lock.ObligationID)

	got, err := f.svc.GetObligation(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationFailed, got.Status)
}

func TestExecutionRetriedAfterArchiveWriteFails(t *testing.T) {
	f, store := newFlakyFixture(t)
	o := f.create(t, 2, now)

	store.failWrites("lock-archive:", 1)
	_, err := f.svc.LogExecution(f.ctx, o.ID, 2)
	require.ErrorIs(t, err, errWriteFailed)

	stored, err := f.repo.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.ObligationExecuted, stored.Status)
	assert.Equal(t, 0, f.user(t).ConsecutiveExecutions)

	got, err := f.svc.LogExecution(f.ctx, o.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnitsCompleted)

	locked, err := f.svc.IsLocked(f.ctx, "u1")
	require.NoError(t, err)
	assert.False(t, locked)

	h, err := f.svc.History(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, h.Locks, 1)
	assert.Equal(t, models.ResolutionExecuted, h.Locks[0].Resolution)
	require.Len(t, h.Executions, 1)
	assert.Equal(t, models.ResultExecuted, h.Executions[0].Result)
	assert.Equal(t, 1, f.user(t).ConsecutiveExecutions)
}

func TestExpiryRetriedAfterLogWriteFails(t *testing.T) {
	f, store := newFlakyFixture(t)
	o := f.create(t, 3, now)

	store.failWrites("execlog:", 1)
	f.clock.Advance(25 * time.Hour)
	_, err := f.svc.IsLocked(f.ctx, "u1")
	require.ErrorIs(t, err, errWriteFailed)

	stored, err := f.repo.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationBound, stored.Status, "FAILED is written last")
	assert.Equal(t, 0, f.user(t).FailureCount)

	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationFailed, got.Status)

	u := f.user(t)
	assert.Equal(t, 1, u.FailureCount)
	// the archived lock still supplies the abandoned-lock behaviour
	assert.Equal(t, 2, u.DebtUnits)

	history, err := f.svc.ExecutionHistory(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ResultFailed, history[0].Result)
	assert.Equal(t, 1, f.sink.Count(notifier.KindObligationFailed))
}

func TestFailureAppliedOnceWhenStatusWriteFails(t *testing.T) {
	f, store := newFlakyFixture(t)
	o := f.create(t, 3, now)

	store.failWrites("obligation:", 1)
	f.clock.Advance(25 * time.Hour)
	_, err := f.svc.IsLocked(f.ctx, "u1")
	require.ErrorIs(t, err, errWriteFailed)
	assert.Equal(t, 1, f.user(t).FailureCount)
	assert.Zero(t, f.sink.Count(notifier.KindObligationFailed))

	for i := 0; i < 2; i++ {
		locked, err := f.svc.IsLocked(f.ctx, "u1")
		require.NoError(t, err)
		assert.False(t, locked)
	}

	got, err := f.svc.GetObligation(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ObligationFailed, got.Status)

	u := f.user(t)
	assert.Equal(t, 1, u.FailureCount)
	assert.Equal(t, 2, u.DebtUnits)
	history, err := f.svc.ExecutionHistory(f.ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, 1, f.sink.Count(notifier.KindObligationFailed))
}
