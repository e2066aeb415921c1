package storage

import (
	"context"

	"github.com/julianstephens/lockstep/internal/models"
)

type ObligationRepository interface {
	// GetObligation returns a *errors.NotFoundError for unknown ids.
	GetObligation(ctx context.Context, id string) (models.Obligation, error)
	// SaveObligation upserts the record and indexes it under its user.
	SaveObligation(ctx context.Context, o models.Obligation) error
	DeleteObligation(ctx context.Context, id string) error
	// ListObligations returns every obligation of the user in index order.
	ListObligations(ctx context.Context, userID string) ([]models.Obligation, error)
}

type LockRepository interface {
	// GetActiveLock returns nil when the user has no lock record.
	GetActiveLock(ctx context.Context, userID string) (*models.ActionLock, error)
	SaveActiveLock(ctx context.Context, l models.ActionLock) error
	ClearActiveLock(ctx context.Context, userID string) error

	// Terminal lock records. Archiving a lock id twice keeps one record.
	ArchiveLock(ctx context.Context, l models.ActionLock) error
	ListArchivedLocks(ctx context.Context, userID string) ([]models.ActionLock, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	SaveUser(ctx context.Context, u models.User) error
}

// AuditRepository holds the append-only logs. Append methods assign an id
// when the record has none.
type AuditRepository interface {
	AppendExecutionLog(ctx context.Context, e models.ExecutionLog) error
	ListExecutionLogs(ctx context.Context, userID string) ([]models.ExecutionLog, error)

	AppendEscapeAttempt(ctx context.Context, e models.EscapeAttempt) error
	ListEscapeAttempts(ctx context.Context, userID string) ([]models.EscapeAttempt, error)

	AppendActionLog(ctx context.Context, e models.ActionLogEntry) error
	ListActionLog(ctx context.Context, userID string) ([]models.ActionLogEntry, error)

	RecordViolation(ctx context.Context, v models.Violation) error
	ListViolations(ctx context.Context, userID string) ([]models.Violation, error)
}

// Repository bundles every repository the discipline core needs.
type Repository interface {
	ObligationRepository
	LockRepository
	UserRepository
	AuditRepository
}
