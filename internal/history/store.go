// Package history keeps a SQLite log of signing sessions: what was signed,
// how far it got and how it ended.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/001_sessions.sql
var sessionsSchema string

// ErrNotFound is returned by Get for an unknown session.
var ErrNotFound = errors.New("session not found")

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
)

// Session is one logged signing session.
type Session struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sequence  []string  `json:"sequence"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Signs     int       `json:"signs"`
	Slides    int       `json:"slides"`
	Skipped   int       `json:"skipped"`
}

// Counter names a per-session tally.
type Counter string

const (
	CounterSigns   Counter = "signs"
	CounterSlides  Counter = "slides"
	CounterSkipped Counter = "skipped"
)

// Store provides access to the session database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(sessionsSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return tx.Commit()
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

// Begin records a new running session.
func (s *Store) Begin(ctx context.Context, id, text string, sequence []string, at time.Time) error {
	query := `
		INSERT INTO sessions (id, text, sequence, started_at, outcome)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, id, text, strings.Join(sequence, " "), at.UnixMilli(), OutcomeRunning)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Increment bumps one of the session's tallies.
func (s *Store) Increment(ctx context.Context, id string, c Counter) error {
	var column string
	switch c {
	case CounterSigns, CounterSlides, CounterSkipped:
		column = string(c)
	default:
		return fmt.Errorf("unknown counter %q", c)
	}

	query := fmt.Sprintf(`UPDATE sessions SET %s = %s + 1 WHERE id = ?`, column, column)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update session %s: %w", column, err)
	}
	return expectRow(result, id)
}

// Finish marks the session ended. Only a running session can be finished.
func (s *Store) Finish(ctx context.Context, id string, outcome Outcome, at time.Time) error {
	query := `
		UPDATE sessions SET outcome = ?, ended_at = ?
		WHERE id = ? AND outcome = ?
	`
	result, err := s.db.ExecContext(ctx, query, outcome, at.UnixMilli(), id, OutcomeRunning)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return expectRow(result, id)
}

func expectRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const sessionColumns = `id, text, sequence, started_at, ended_at, outcome, signs, slides, skipped`

// Get returns one session.
func (s *Store) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, err
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess     Session
		sequence string
		started  int64
		ended    sql.NullInt64
		outcome  string
	)
	err := row.Scan(&sess.ID, &sess.Text, &sequence, &started, &ended, &outcome,
		&sess.Signs, &sess.Slides, &sess.Skipped)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	sess.Sequence = strings.Fields(sequence)
	sess.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		sess.EndedAt = time.UnixMilli(ended.Int64)
	}
	sess.Outcome = Outcome(outcome)
	return sess, nil
}
