package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"selfintro-bot/internal/domain"
)

// SQLite stores sessions in a single-file database for self-hosted runs.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("repository: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, ttl: normalizeTTL(ttl), now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		user_id      TEXT PRIMARY KEY,
		step         INTEGER NOT NULL,
		answers      TEXT NOT NULL,
		last_message TEXT NOT NULL,
		prompted     INTEGER NOT NULL,
		version      INTEGER NOT NULL,
		updated_at   TEXT NOT NULL,
		expires_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
	`)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context, userID string) (domain.Session, error) {
	if userID == "" {
		return domain.Session{}, errors.New("repository: Load: user id is required")
	}
	var (
		sess      = domain.NewSession(userID)
		answers   string
		prompted  int
		updatedAt string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT step, answers, last_message, prompted, version, updated_at, expires_at
		FROM sessions WHERE user_id = ?`, userID,
	).Scan(&sess.Step, &answers, &sess.LastMessage, &prompted, &sess.Version, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSession(userID), nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Load: %w", err)
	}

	if expiresAt <= s.now().Unix() {
		fresh := domain.NewSession(userID)
		fresh.Version = sess.Version
		return fresh, nil
	}
	if err := json.Unmarshal([]byte(answers), &sess.Answers); err != nil {
		return domain.Session{}, fmt.Errorf("repository: Load decode answers: %w", err)
	}
	if sess.Answers == nil {
		sess.Answers = map[string]string{}
	}
	sess.Prompted = prompted != 0
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		sess.UpdatedAt = ts
	}
	return sess, nil
}

func (s *SQLite) Save(ctx context.Context, sess domain.Session) (domain.Session, error) {
	if sess.UserID == "" {
		return domain.Session{}, errors.New("repository: Save: user id is required")
	}
	now := s.now()
	next := sess.Clone()
	next.Version = sess.Version + 1
	next.UpdatedAt = now.UTC()

	answers, err := json.Marshal(next.Answers)
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Save encode answers: %w", err)
	}
	prompted := 0
	if next.Prompted {
		prompted = 1
	}
	args := []any{
		next.Step, string(answers), next.LastMessage, prompted, next.Version,
		next.UpdatedAt.Format(time.RFC3339Nano), now.Add(s.ttl).Unix(),
	}

	var res sql.Result
	if sess.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO sessions (step, answers, last_message, prompted, version, updated_at, expires_at, user_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id) DO NOTHING`,
			append(args, next.UserID)...)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE sessions
			SET step = ?, answers = ?, last_message = ?, prompted = ?, version = ?, updated_at = ?, expires_at = ?
			WHERE user_id = ? AND version = ?`,
			append(args, next.UserID, sess.Version)...)
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Save: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: Save rows affected: %w", err)
	}
	if n == 0 {
		return domain.Session{}, ErrConflict
	}
	return next, nil
}

func (s *SQLite) Delete(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *SQLite) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("repository: Sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: Sweep rows affected: %w", err)
	}
	return int(n), nil
}
