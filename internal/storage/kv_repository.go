package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/julianstephens/lockstep/internal/errors"
	"github.com/julianstephens/lockstep/internal/kv"
	"github.com/julianstephens/lockstep/internal/models"
)

// KVRepository implements Repository over single-key JSON blobs.
type KVRepository struct {
	store kv.Store
	// mu guards read-modify-write of list keys within this process.
	mu sync.Mutex
}

var _ Repository = (*KVRepository)(nil)

func NewKVRepository(store kv.Store) *KVRepository {
	return &KVRepository{store: store}
}

func getJSON[T any](ctx context.Context, store kv.Store, key string) (T, bool, error) {
	var out T
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, true, nil
}

func setJSON(ctx context.Context, store kv.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return store.Set(ctx, key, string(data))
}

// listSegmentSize bounds the entries held by one list key, so an append
// rewrites at most one segment however long the list grows.
const listSegmentSize = 256

// A list lives under base#0, base#1, ...; base itself holds the segment
// count.
func segmentKey(base string, i int) string { return base + "#" + strconv.Itoa(i) }

// appendList adds item to the list at key. A non-empty id makes the append
// idempotent: an entry with that id in the newest segment is left alone.
func (r *KVRepository) appendList(ctx context.Context, key, id string, item any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", key, err)
	}

	segments, _, err := getJSON[int](ctx, r.store, key)
	if err != nil {
		return err
	}
	last := max(segments-1, 0)
	items, _, err := getJSON[[]json.RawMessage](ctx, r.store, segmentKey(key, last))
	if err != nil {
		return err
	}
	if id != "" && containsID(items, id) {
		return nil
	}
	if len(items) >= listSegmentSize {
		last++
		items = nil
	}

	if err := setJSON(ctx, r.store, segmentKey(key, last), append(items, raw)); err != nil {
		return err
	}
	if last+1 != segments {
		return setJSON(ctx, r.store, key, last+1)
	}
	return nil
}

func containsID(items []json.RawMessage, id string) bool {
	for _, raw := range items {
		var entry struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(raw, &entry) == nil && entry.ID == id {
			return true
		}
	}
	return false
}

func listJSON[T any](ctx context.Context, store kv.Store, key string) ([]T, error) {
	segments, _, err := getJSON[int](ctx, store, key)
	if err != nil {
		return nil, err
	}

	var out []T
	for i := 0; i < segments; i++ {
		items, _, err := getJSON[[]T](ctx, store, segmentKey(key, i))
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func newAuditID() string {
	return ulid.Make().String()
}

// Obligations

func (r *KVRepository) GetObligation(ctx context.Context, id string) (models.Obligation, error) {
	o, ok, err := getJSON[models.Obligation](ctx, r.store, obligationKey(id))
	if err != nil {
		return models.Obligation{}, err
	}
	if !ok {
		return models.Obligation{}, errors.NotFound("obligation", id)
	}
	return o, nil
}

func (r *KVRepository) SaveObligation(ctx context.Context, o models.Obligation) error {
	if err := setJSON(ctx, r.store, obligationKey(o.ID), o); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, _, err := getJSON[[]string](ctx, r.store, userObligationsKey(o.UserID))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == o.ID {
			return nil
		}
	}
	return setJSON(ctx, r.store, userObligationsKey(o.UserID), append(ids, o.ID))
}

func (r *KVRepository) DeleteObligation(ctx context.Context, id string) error {
	o, err := r.GetObligation(ctx, id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids, _, err := getJSON[[]string](ctx, r.store, userObligationsKey(o.UserID))
	if err != nil {
		return err
	}
	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if err := setJSON(ctx, r.store, userObligationsKey(o.UserID), kept); err != nil {
		return err
	}
	return r.store.Remove(ctx, obligationKey(id))
}

func (r *KVRepository) ListObligations(ctx context.Context, userID string) ([]models.Obligation, error) {
	ids, _, err := getJSON[[]string](ctx, r.store, userObligationsKey(userID))
	if err != nil {
		return nil, err
	}

	obligations := make([]models.Obligation, 0, len(ids))
	for _, id := range ids {
		o, ok, err := getJSON[models.Obligation](ctx, r.store, obligationKey(id))
		if err != nil {
			return nil, err
		}
		// The index may briefly point at a removed record.
		if !ok {
			continue
		}
		obligations = append(obligations, o)
	}
	return obligations, nil
}

// Locks

func (r *KVRepository) GetActiveLock(ctx context.Context, userID string) (*models.ActionLock, error) {
	l, ok, err := getJSON[models.ActionLock](ctx, r.store, lockKey(userID))
	if err != nil || !ok {
		return nil, err
	}
	return &l, nil
}

func (r *KVRepository) SaveActiveLock(ctx context.Context, l models.ActionLock) error {
	return setJSON(ctx, r.store, lockKey(l.UserID), l)
}

func (r *KVRepository) ClearActiveLock(ctx context.Context, userID string) error {
	return r.store.Remove(ctx, lockKey(userID))
}

func (r *KVRepository) ArchiveLock(ctx context.Context, l models.ActionLock) error {
	return r.appendList(ctx, lockArchiveKey(l.UserID), l.ID, l)
}

func (r *KVRepository) ListArchivedLocks(ctx context.Context, userID string) ([]models.ActionLock, error) {
	return listJSON[models.ActionLock](ctx, r.store, lockArchiveKey(userID))
}

// Users

func (r *KVRepository) GetUser(ctx context.Context, id string) (models.User, error) {
	u, ok, err := getJSON[models.User](ctx, r.store, userKey(id))
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, errors.NotFound("user", id)
	}
	return u, nil
}

func (r *KVRepository) SaveUser(ctx context.Context, u models.User) error {
	return setJSON(ctx, r.store, userKey(u.ID), u)
}

// Audit logs

func (r *KVRepository) AppendExecutionLog(ctx context.Context, e models.ExecutionLog) error {
	if e.ID == "" {
		e.ID = newAuditID()
	}
	return r.appendList(ctx, execLogKey(e.UserID), e.ID, e)
}

func (r *KVRepository) ListExecutionLogs(ctx context.Context, userID string) ([]models.ExecutionLog, error) {
	return listJSON[models.ExecutionLog](ctx, r.store, execLogKey(userID))
}

func (r *KVRepository) AppendEscapeAttempt(ctx context.Context, e models.EscapeAttempt) error {
	if e.ID == "" {
		e.ID = newAuditID()
	}
	return r.appendList(ctx, escapesKey(e.UserID), e.ID, e)
}

func (r *KVRepository) ListEscapeAttempts(ctx context.Context, userID string) ([]models.EscapeAttempt, error) {
	return listJSON[models.EscapeAttempt](ctx, r.store, escapesKey(userID))
}

func (r *KVRepository) AppendActionLog(ctx context.Context, e models.ActionLogEntry) error {
	if e.ID == "" {
		e.ID = newAuditID()
	}
	return r.appendList(ctx, actionLogKey(e.UserID), e.ID, e)
}

func (r *KVRepository) ListActionLog(ctx context.Context, userID string) ([]models.ActionLogEntry, error) {
	return listJSON[models.ActionLogEntry](ctx, r.store, actionLogKey(userID))
}

func (r *KVRepository) RecordViolation(ctx context.Context, v models.Violation) error {
	if v.ID == "" {
		v.ID = newAuditID()
	}
	return r.appendList(ctx, violationsKey(v.UserID), v.ID, v)
}

func (r *KVRepository) ListViolations(ctx context.Context, userID string) ([]models.Violation, error) {
	return listJSON[models.Violation](ctx, r.store, violationsKey(userID))
}
