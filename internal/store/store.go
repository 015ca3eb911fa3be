// Package store persists the session, an offline copy of the last dashboard
// snapshot and the mutation audit log in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/theirongolddev/sitebook/internal/api"
	"github.com/theirongolddev/sitebook/internal/model"
)

// fixed width so timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the local SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ api.TokenStore = (*Store)(nil)

// Open opens or creates the database at dbPath and applies migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM session WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *Store) putAll(ctx context.Context, kv map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().Format(timeLayout)
	for k, v := range kv {
		if v == "" {
			_, err = tx.ExecContext(ctx, "DELETE FROM session WHERE key = ?", k)
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO session (key, value, updated_at) VALUES (?, ?, ?)", k, v, now)
		}
		if err != nil {
			return fmt.Errorf("storing %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Tokens implements api.TokenStore.
func (s *Store) Tokens(ctx context.Context) (model.Tokens, error) {
	var t model.Tokens
	var err error
	if t.Access, err = s.get(ctx, api.KeyAccessToken); err != nil {
		return t, err
	}
	t.Refresh, err = s.get(ctx, api.KeyRefreshToken)
	return t, err
}

// SetTokens implements api.TokenStore.
func (s *Store) SetTokens(ctx context.Context, t model.Tokens) error {
	return s.putAll(ctx, map[string]string{
		api.KeyAccessToken:  t.Access,
		api.KeyRefreshToken: t.Refresh,
	})
}

// User implements api.TokenStore.
func (s *Store) User(ctx context.Context) (*model.User, error) {
	raw, err := s.get(ctx, api.KeyUser)
	if err != nil || raw == "" {
		return nil, err
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decoding cached user: %w", err)
	}
	return &u, nil
}

// SetUser implements api.TokenStore.
func (s *Store) SetUser(ctx context.Context, u *model.User) error {
	if u == nil {
		return s.putAll(ctx, map[string]string{api.KeyUser: ""})
	}
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.putAll(ctx, map[string]string{api.KeyUser: string(b)})
}

// Clear implements api.TokenStore.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE key IN (?, ?, ?)",
		api.KeyAccessToken, api.KeyRefreshToken, api.KeyUser)
	return err
}

// SaveSnapshot replaces the offline snapshot copy.
func (s *Store) SaveSnapshot(ctx context.Context, snap model.Snapshot, fetchedAt time.Time) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshot_cache (id, payload, fetched_at) VALUES (1, ?, ?)",
		string(b), fetchedAt.UTC().Format(timeLayout))
	return err
}

// LoadSnapshot returns the offline snapshot copy. ok is false when none is
// stored.
func (s *Store) LoadSnapshot(ctx context.Context) (snap model.Snapshot, fetchedAt time.Time, ok bool, err error) {
	var payload, at string
	err = s.db.QueryRowContext(ctx, "SELECT payload, fetched_at FROM snapshot_cache WHERE id = 1").Scan(&payload, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fetchedAt, false, nil
	}
	if err != nil {
		return snap, fetchedAt, false, err
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snap, fetchedAt, false, fmt.Errorf("decoding cached snapshot: %w", err)
	}
	fetchedAt, _ = time.Parse(timeLayout, at)
	return snap, fetchedAt, true, nil
}

// ClearSnapshot removes the offline snapshot copy.
func (s *Store) ClearSnapshot(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshot_cache")
	return err
}

// RecordMutation appends a mutation outcome to the audit log.
func (s *Store) RecordMutation(ctx context.Context, ev model.MutationEvent) error {
	at := ev.At.Time
	if at.IsZero() {
		at = s.now()
	}
	var errText sql.NullString
	if ev.Error != "" {
		errText = sql.NullString{String: ev.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mutation_log (id, kind, entity_id, outcome, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Kind, ev.EntityID, ev.Outcome, errText, at.UTC().Format(timeLayout))
	return err
}

// RecentMutations returns the latest audit entries, newest first.
func (s *Store) RecentMutations(ctx context.Context, limit int) ([]model.MutationEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, entity_id, outcome, error, created_at
		 FROM mutation_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.MutationEvent
	for rows.Next() {
		var ev model.MutationEvent
		var errText sql.NullString
		var at string
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.EntityID, &ev.Outcome, &errText, &at); err != nil {
			return nil, err
		}
		ev.Error = errText.String
		if t, err := time.Parse(timeLayout, at); err == nil {
			ev.At = model.NewDate(t)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
