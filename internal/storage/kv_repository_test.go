package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/models"
)

func newRepo() (*KVRepository, *kv.Memory) {
	mem := kv.NewMemory()
	return NewKVRepository(mem), mem
}

func TestObligationLifecycle(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()
	scheduled := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	o := models.Obligation{ID: "o1", UserID: "u1", Type: "workout", UnitsRequired: 3, ScheduledAt: scheduled, Status: models.ObligationCreated}
	require.NoError(t, repo.SaveObligation(ctx, o))
	// saving twice must not duplicate the index entry
	require.NoError(t, repo.SaveObligation(ctx, o))
	require.NoError(t, repo.SaveObligation(ctx, models.Obligation{ID: "o2", UserID: "u1", Type: "meal", UnitsRequired: 1}))

	got, err := repo.GetObligation(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "workout", got.Type)
	assert.True(t, got.ScheduledAt.Equal(scheduled))

	list, err := repo.ListObligations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o1", list[0].ID)

	require.NoError(t, repo.DeleteObligation(ctx, "o1"))
	_, err = repo.GetObligation(ctx, "o1")
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))

	list, err = repo.ListObligations(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "o2", list[0].ID)
}

func TestDeleteUnknownObligation(t *testing.T) {
	repo, _ := newRepo()
	err := repo.DeleteObligation(context.Background(), "missing")

	var nf *errors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "obligation", nf.Entity)
}

func TestActiveLockSlot(t *testing.T) {
	repo, mem := newRepo()
	ctx := context.Background()

	l, err := repo.GetActiveLock(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, l)

	lock := models.ActionLock{ID: "l1", UserID: "u1", ObligationID: "o1", Status: models.LockActive}
	require.NoError(t, repo.SaveActiveLock(ctx, lock))

	raw, ok, err := mem.Get(ctx, "lock:u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"obligation_id":"o1"`)

	l, err = repo.GetActiveLock(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "l1", l.ID)

	lock.Status = models.LockResolved
	require.NoError(t, repo.ArchiveLock(ctx, lock))
	require.NoError(t, repo.ClearActiveLock(ctx, "u1"))

	l, err = repo.GetActiveLock(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, l)

	archived, err := repo.ListArchivedLocks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, models.LockResolved, archived[0].Status)
}

func TestUsers(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	_, err := repo.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, repo.SaveUser(ctx, models.User{ID: "u1", Status: models.UserActive, DebtUnits: 2}))
	u, err := repo.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.DebtUnits)
}

func TestAuditLogsAssignSortableIDs(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.AppendActionLog(ctx, models.ActionLogEntry{UserID: "u1", Action: "NAVIGATE", Timestamp: now}))
	}
	require.NoError(t, repo.AppendExecutionLog(ctx, models.ExecutionLog{UserID: "u1", ObligationID: "o1", Result: models.ResultExecuted}))
	require.NoError(t, repo.AppendEscapeAttempt(ctx, models.EscapeAttempt{UserID: "u1", Kind: models.EscapeBackground}))
	require.NoError(t, repo.RecordViolation(ctx, models.Violation{UserID: "u1", ObligationID: "o1", Kind: "DELETE"}))

	actions, err := repo.ListActionLog(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for i := 1; i < len(actions); i++ {
		assert.NotEmpty(t, actions[i].ID)
		assert.Less(t, actions[i-1].ID, actions[i].ID, "audit ids should sort in append order")
	}

	logs, err := repo.ListExecutionLogs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.NotEmpty(t, logs[0].ID)

	escapes, err := repo.ListEscapeAttempts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, escapes, 1)

	violations, err := repo.ListViolations(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, violations, 1)

	empty, err := repo.ListViolations(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAuditListsSpanSegments(t *testing.T) {
	repo, mem := newRepo()
	ctx := context.Background()

	total := listSegmentSize + 3
	for i := 0; i < total; i++ {
		require.NoError(t, repo.AppendActionLog(ctx, models.ActionLogEntry{UserID: "u1", Action: "NAVIGATE", Permitted: i%2 == 0}))
	}

	entries, err := repo.ListActionLog(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, total)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].ID, entries[i].ID, "entries keep append order")
	}

	count, ok, err := mem.Get(ctx, actionLogKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", count)

	newest, ok, err := mem.Get(ctx, segmentKey(actionLogKey("u1"), 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, mustDecode[[]models.ActionLogEntry](t, newest), 3)
}

func TestArchiveLockIsIdempotent(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	l := models.ActionLock{ID: "l1", UserID: "u1", Status: models.LockExpired}
	require.NoError(t, repo.ArchiveLock(ctx, l))
	require.NoError(t, repo.ArchiveLock(ctx, l))
	require.NoError(t, repo.ArchiveLock(ctx, models.ActionLock{ID: "l2", UserID: "u1", Status: models.LockResolved}))

	archived, err := repo.ListArchivedLocks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "l1", archived[0].ID)
	assert.Equal(t, "l2", archived[1].ID)
}

func mustDecode[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}
