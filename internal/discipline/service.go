// Package discipline is the caller surface of the obligation and lock
// kernel. It wires the store, guard, lock manager, router and consequence
// policy together and serializes all calls for one user.
package discipline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/lockstep/internal/clock"
	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/lock"
	"github.com/julianstephens/lockstep/internal/logger"
	"github.com/julianstephens/lockstep/internal/models"
	"github.com/julianstephens/lockstep/internal/notifier"
	"github.com/julianstephens/lockstep/internal/obligation"
	"github.com/julianstephens/lockstep/internal/policy"
	"github.com/julianstephens/lockstep/internal/router"
	"github.com/julianstephens/lockstep/internal/storage"
)

type Service struct {
	repo     storage.Repository
	clock    clock.Clock
	notifier notifier.Sink

	locks  *lock.Manager
	store  *obligation.Store
	router *router.Router

	users keyedMutex
}

func New(repo storage.Repository, clk clock.Clock, sink notifier.Sink) *Service {
	if sink == nil {
		sink = notifier.Nop{}
	}
	s := &Service{
		repo:     repo,
		clock:    clk,
		notifier: sink,
	}

	p := &pipeline{s: s}
	s.locks = lock.NewManager(repo, clk, sink)
	s.locks.SetHandler(p)
	s.store = obligation.NewStore(repo, obligation.NewGuard(repo, clk), s.locks, p, clk)
	s.router = router.New(s.locks, repo, repo, clk)
	return s
}

// keyedMutex hands out one mutex per user id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// lockObligationOwner serializes on the user who owns obligation id.
func (s *Service) lockObligationOwner(ctx context.Context, id string) (func(), error) {
	o, err := s.repo.GetObligation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.users.lock(o.UserID), nil
}

// Users

// RegisterUser creates the user record. Registering an existing user
// returns it unchanged.
func (s *Service) RegisterUser(ctx context.Context, userID string) (models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return models.User{}, errors.InvalidInput("userId", "must not be empty")
	}
	defer s.users.lock(userID)()
	return s.ensureUser(ctx, userID)
}

func (s *Service) GetUser(ctx context.Context, userID string) (models.User, error) {
	defer s.users.lock(userID)()
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) ensureUser(ctx context.Context, userID string) (models.User, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !isNotFound(err) {
		return models.User{}, err
	}

	now := s.clock.Now()
	u = models.User{
		ID:        userID,
		CreatedAt: now,
		Status:    models.UserActive,
		UpdatedAt: now,
	}
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return models.User{}, err
	}
	logger.Info("User registered", "user", userID)
	return u, nil
}

// Obligations

// CreateObligation registers the user if needed and creates the obligation.
func (s *Service) CreateObligation(ctx context.Context, userID, obligationType string, unitsRequired int, scheduledAt time.Time, opts ...obligation.Option) (models.Obligation, error) {
	if strings.TrimSpace(userID) == "" {
		return models.Obligation{}, errors.InvalidInput("userId", "must not be empty")
	}
	defer s.users.lock(userID)()

	if _, err := s.ensureUser(ctx, userID); err != nil {
		return models.Obligation{}, err
	}
	return s.store.Create(ctx, userID, obligationType, unitsRequired, scheduledAt, opts...)
}

func (s *Service) GetObligation(ctx context.Context, id string) (models.Obligation, error) {
	unlock, err := s.lockObligationOwner(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	defer unlock()
	return s.store.Get(ctx, id)
}

func (s *Service) ListObligations(ctx context.Context, userID string) ([]models.Obligation, error) {
	defer s.users.lock(userID)()
	return s.store.ListForUser(ctx, userID)
}

// LogExecution is never blocked by the lock.
func (s *Service) LogExecution(ctx context.Context, id string, units int) (models.Obligation, error) {
	unlock, err := s.lockObligationOwner(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	defer unlock()
	return s.store.LogExecution(ctx, id, units)
}

func (s *Service) RescheduleObligation(ctx context.Context, id string, scheduledAt time.Time) (models.Obligation, error) {
	unlock, err := s.lockObligationOwner(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	defer unlock()
	return s.store.Reschedule(ctx, id, scheduledAt)
}

func (s *Service) DeleteObligation(ctx context.Context, id string) error {
	unlock, err := s.lockObligationOwner(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.Delete(ctx, id)
}

func (s *Service) ModifyObligation(ctx context.Context, id string, m obligation.Modification) (models.Obligation, error) {
	unlock, err := s.lockObligationOwner(ctx, id)
	if err != nil {
		return models.Obligation{}, err
	}
	defer unlock()
	return s.store.Modify(ctx, id, m)
}

// Locks

func (s *Service) IsLocked(ctx context.Context, userID string) (bool, error) {
	defer s.users.lock(userID)()
	return s.locks.IsLocked(ctx, userID)
}

// LockStatus is a snapshot of the user's lock.
type LockStatus struct {
	Locked bool
	// Lock is the lock in force, nil when there is none.
	Lock *models.ActionLock
	// Expired is the record of a lock whose window closed on this read.
	// Only the read that expires a lock reports it.
	Expired *models.ActionLock
	// Obligation belongs to Lock, or to Expired when no lock is in force.
	Obligation    *models.Obligation
	TimeRemaining time.Duration
	// Queued counts BOUND obligations waiting behind the active lock.
	Queued int
}

func (s *Service) GetLockStatus(ctx context.Context, userID string) (LockStatus, error) {
	defer s.users.lock(userID)()

	l, err := s.locks.GetActive(ctx, userID)
	if err != nil {
		return LockStatus{}, err
	}
	var status LockStatus
	if l != nil && !l.IsActive() {
		status.Expired = l
		// a queued obligation may have taken over the slot
		if l, err = s.repo.GetActiveLock(ctx, userID); err != nil {
			return LockStatus{}, err
		}
	}
	if l.IsActive() {
		status.Locked = true
		status.Lock = l
	}

	subject := status.Lock
	if subject == nil {
		subject = status.Expired
	}
	if subject == nil {
		return status, nil
	}
	o, err := s.repo.GetObligation(ctx, subject.ObligationID)
	if err != nil && !isNotFound(err) {
		return LockStatus{}, err
	}
	if err == nil {
		status.Obligation = &o
	}
	if !status.Locked {
		return status, nil
	}

	now := s.clock.Now()
	status.TimeRemaining = status.Lock.TimeRemaining(now)

	obligations, err := s.repo.ListObligations(ctx, userID)
	if err != nil {
		return LockStatus{}, err
	}
	for _, other := range obligations {
		if other.ID != status.Lock.ObligationID && models.ResolveStatus(other, now) == models.ObligationBound {
			status.Queued++
		}
	}
	return status, nil
}

// Routing

func (s *Service) RouteAction(ctx context.Context, userID, action string, payload map[string]string) (router.Decision, error) {
	defer s.users.lock(userID)()
	return s.router.Route(ctx, userID, action, payload)
}

func (s *Service) Navigate(ctx context.Context, userID, target string) (router.Decision, error) {
	defer s.users.lock(userID)()
	return s.router.Navigate(ctx, userID, target)
}

func (s *Service) OpenSettings(ctx context.Context, userID string) (router.Decision, error) {
	defer s.users.lock(userID)()
	return s.router.OpenSettings(ctx, userID)
}

func (s *Service) AccessPlanning(ctx context.Context, userID string) (router.Decision, error) {
	defer s.users.lock(userID)()
	return s.router.AccessPlanning(ctx, userID)
}

// Behaviour signals

// ReportBackground records time the app spent in the background. It
// reports whether the absence counted as an escape attempt.
func (s *Service) ReportBackground(ctx context.Context, userID string, d time.Duration) (bool, error) {
	defer s.users.lock(userID)()
	return s.locks.RecordBackground(ctx, userID, d)
}

func (s *Service) ReportForceClose(ctx context.Context, userID string) error {
	defer s.users.lock(userID)()
	return s.locks.RecordForceClose(ctx, userID)
}

func (s *Service) ReportActivity(ctx context.Context, userID string) error {
	defer s.users.lock(userID)()
	return s.locks.Touch(ctx, userID)
}

func (s *Service) CheckIdle(ctx context.Context, userID string) (int, error) {
	defer s.users.lock(userID)()
	return s.locks.CheckIdle(ctx, userID)
}

// Resume is called once on process start.
func (s *Service) Resume(ctx context.Context, userID string) (*models.ActionLock, error) {
	defer s.users.lock(userID)()
	return s.locks.Resume(ctx, userID)
}

// History

func (s *Service) ExecutionHistory(ctx context.Context, userID string) ([]models.ExecutionLog, error) {
	defer s.users.lock(userID)()
	return s.repo.ListExecutionLogs(ctx, userID)
}

// History collects every audit trail kept for a user.
type History struct {
	Executions []models.ExecutionLog
	Locks      []models.ActionLock
	Escapes    []models.EscapeAttempt
	Actions    []models.ActionLogEntry
	Violations []models.Violation
}

func (s *Service) History(ctx context.Context, userID string) (History, error) {
	defer s.users.lock(userID)()

	var h History
	var err error
	if h.Executions, err = s.repo.ListExecutionLogs(ctx, userID); err != nil {
		return History{}, err
	}
	if h.Locks, err = s.repo.ListArchivedLocks(ctx, userID); err != nil {
		return History{}, err
	}
	if h.Escapes, err = s.repo.ListEscapeAttempts(ctx, userID); err != nil {
		return History{}, err
	}
	if h.Actions, err = s.repo.ListActionLog(ctx, userID); err != nil {
		return History{}, err
	}
	if h.Violations, err = s.repo.ListViolations(ctx, userID); err != nil {
		return History{}, err
	}
	return h, nil
}

// RestrictionSummary reports the user's level and the streak still needed
// to lift it.
func (s *Service) RestrictionSummary(ctx context.Context, userID string) (Restriction, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return Restriction{}, err
	}
	r := Restriction{Level: u.RestrictionLevel, Status: u.Status, Streak: u.ConsecutiveExecutions}
	if u.RestrictionLevel > 0 {
		r.ToLift = policy.LiftRequirement(u.RestrictionLevel) - u.ConsecutiveExecutions
	}
	return r, nil
}

// Restriction describes how far a user is from the next lifted level.
type Restriction struct {
	Level  int
	Status models.UserStatus
	Streak int
	ToLift int
}
