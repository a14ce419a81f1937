package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gesture.auth/internal/auth"
	"github.com/banshee-data/gesture.auth/internal/gesture"
)

// ErrCorruptTemplates is returned by Load when the stored set does not have
// the configured shape. Such a set is never reshaped or partially used.
var ErrCorruptTemplates = errors.New("stored templates are corrupt")

// User is a registered account.
type User struct {
	ID       string
	Username string
	// Key is the case-folded username used for lookups.
	Key         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time // zero if the user never logged in after registering
}

// Key folds a username into its lookup form.
func Key(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// TemplateStore is the SQLite implementation of auth.TemplateStore. Reads run
// concurrently; writes for the same username are serialized.
type TemplateStore struct {
	db     *DB
	count  int
	length int
	locks  keyedMutex
}

var _ auth.TemplateStore = (*TemplateStore)(nil)

// NewTemplateStore returns a store holding sets of count templates of length
// points each.
func NewTemplateStore(db *DB, count, length int) *TemplateStore {
	return &TemplateStore{db: db, count: count, length: length}
}

func (s *TemplateStore) Exists(ctx context.Context, username string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gesture_users WHERE username_key = ?`, Key(username)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists %q: %w", username, err)
	}
	return n > 0, nil
}

func (s *TemplateStore) Load(ctx context.Context, username string) (gesture.TemplateSet, error) {
	var (
		userID        string
		count, length int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, template_count, template_len FROM gesture_users WHERE username_key = ?`,
		Key(username)).Scan(&userID, &count, &length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", username, err)
	}
	if count != s.count || length != s.length {
		return nil, fmt.Errorf("%w: %q registered as %dx%d, want %dx%d", ErrCorruptTemplates, username, count, length, s.count, s.length)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT template_index, points_json FROM gesture_templates WHERE user_id = ? ORDER BY template_index`, userID)
	if err != nil {
		return nil, fmt.Errorf("load %q templates: %w", username, err)
	}
	defer rows.Close()

	var set gesture.TemplateSet
	for rows.Next() {
		var (
			index int
			raw   string
		)
		if err := rows.Scan(&index, &raw); err != nil {
			return nil, err
		}
		if index != len(set) {
			return nil, fmt.Errorf("%w: %q template index %d out of sequence", ErrCorruptTemplates, username, index)
		}
		points, err := decodePoints(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q template %d: %v", ErrCorruptTemplates, username, index, err)
		}
		set = append(set, gesture.RestoreNormalized(points))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := set.Validate(s.count, s.length); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrCorruptTemplates, username, err)
	}
	return set, nil
}

// Save replaces the user's template set in one transaction, creating the
// user on first registration. The capitalization of username is
// kept for display.
func (s *TemplateStore) Save(ctx context.Context, username string, set gesture.TemplateSet, at time.Time) error {
	if err := set.Validate(s.count, s.length); err != nil {
		return fmt.Errorf("save %q: %w", username, err)
	}
	encoded := make([]string, len(set))
	for i, tpl := range set {
		raw, err := encodePoints(tpl.Points())
		if err != nil {
			return err
		}
		encoded[i] = raw
	}

	key := Key(username)
	unlock := s.locks.lock(key)
	defer unlock()

	return retryOnBusy(func() error {
		return s.saveTx(ctx, key, strings.TrimSpace(username), encoded, at)
	})
}

func (s *TemplateStore) saveTx(ctx context.Context, key, display string, encoded []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM gesture_users WHERE username_key = ?`, key).Scan(&userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		userID = uuid.New().String()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO gesture_users (user_id, username_key, username, template_count, template_len, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			userID, key, display, s.count, s.length, at.UnixNano(), at.UnixNano())
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE gesture_users SET username = ?, template_count = ?, template_len = ?, updated_at = ? WHERE user_id = ?`,
			display, s.count, s.length, at.UnixNano(), userID)
	}
	if err != nil {
		return fmt.Errorf("save user %q: %w", display, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM gesture_templates WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear templates for %q: %w", display, err)
	}
	for i, raw := range encoded {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gesture_templates (user_id, template_index, points_json) VALUES (?, ?, ?)`,
			userID, i, raw); err != nil {
			return fmt.Errorf("insert template %d for %q: %w", i, display, err)
		}
	}
	return tx.Commit()
}

func (s *TemplateStore) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE gesture_users SET last_login_at = ? WHERE username_key = ?`, at.UnixNano(), Key(username))
	if err != nil {
		return fmt.Errorf("touch last login %q: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	return nil
}

func (s *TemplateStore) RecordAttempt(ctx context.Context, rec auth.AttemptRecord) error {
	var best any
	if !math.IsInf(rec.BestDistance, 0) && !math.IsNaN(rec.BestDistance) {
		best = rec.BestDistance
	}
	return retryOnBusy(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO auth_attempts (session_id, username_key, mode, attempt_index, passed, pass_count, total, best_distance, flat, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, Key(rec.Username), rec.Mode.String(), rec.AttemptIndex, rec.Passed,
			rec.PassCount, rec.Total, best, rec.Flat, rec.At.UnixNano())
		return err
	})
}

const userColumns = `user_id, username, username_key, created_at, updated_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u                User
		created, updated int64
		lastLogin        sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Key, &created, &updated, &lastLogin); err != nil {
		return User{}, err
	}
	u.CreatedAt = time.Unix(0, created)
	u.UpdatedAt = time.Unix(0, updated)
	if lastLogin.Valid {
		u.LastLoginAt = time.Unix(0, lastLogin.Int64)
	}
	return u, nil
}

// User returns the account for username.
func (s *TemplateStore) User(ctx context.Context, username string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM gesture_users WHERE username_key = ?`, Key(username)))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", auth.ErrNotFound, username)
	}
	return u, err
}

// ListUsers returns every registered account ordered by username.
func (s *TemplateStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM gesture_users ORDER BY username_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AttemptCount returns the number of audit rows for username.
func (s *TemplateStore) AttemptCount(ctx context.Context, username string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_attempts WHERE username_key = ?`, Key(username)).Scan(&n)
	return n, err
}

func encodePoints(points []gesture.Point) (string, error) {
	pairs := make([][2]float64, len(points))
	for i, p := range points {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePoints(raw string) ([]gesture.Point, error) {
	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, err
	}
	points := make([]gesture.Point, len(rows))
	for i, r := range rows {
		var pair []float64
		if err := json.Unmarshal(r, &pair); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("point %d has %d coordinates", i, len(pair))
		}
		points[i] = gesture.Point{X: pair[0], Y: pair[1]}
	}
	return points, nil
}

// keyedMutex serializes work per key without holding a lock per key
// forever.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
