// Package store persists finalized session results to SQLite. The engine
// itself performs no I/O; callers hand completed SessionResults to the
// store after a session is marked complete.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/fieldlab-data/kinemetric/internal/engine"
	"github.com/fieldlab-data/kinemetric/internal/timeutil"
)

// SessionRecord is a stored session row.
type SessionRecord struct {
	SessionID  string   `json:"session_id"`
	Discipline string   `json:"discipline"`
	Unit       string   `json:"unit"`
	Best       *float64 `json:"best,omitempty"`
	Mean       *float64 `json:"mean,omitempty"`
	CountValid int      `json:"count_valid"`
	CreatedAt  float64  `json:"created_at"`
}

// Store wraps the SQLite database holding session and trial records.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Open opens (creating if needed) the database at path and applies schema
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	return OpenWithClock(path, timeutil.RealClock{})
}

// OpenWithClock opens the store with an explicit clock for created_at
// stamps.
func OpenWithClock(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, clock: clock}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession inserts a finalized session and all its trials in one
// transaction.
func (s *Store) SaveSession(res engine.SessionResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var best, mean interface{}
	if res.Best != nil {
		best = *res.Best
	}
	if res.Mean != nil {
		mean = *res.Mean
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (session_id, discipline, unit, best, mean, count_valid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Discipline, res.Unit, best, mean, res.CountValid,
		float64(s.clock.Now().UnixNano())/1e9,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for i, tm := range res.Trials {
		_, err = tx.Exec(`
			INSERT INTO trials (trial_id, session_id, seq, value, unit, confidence, accepted, violations, at_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tm.TrialID, res.SessionID, i, tm.Value, tm.Unit, tm.Confidence,
			boolToInt(tm.Accepted), joinViolations(tm.Violations), tm.At,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trial %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetSession loads a stored session with its trials in order.
func (s *Store) GetSession(sessionID string) (engine.SessionResult, error) {
	var res engine.SessionResult
	var best, mean sql.NullFloat64

	row := s.db.QueryRow(`
		SELECT session_id, discipline, unit, best, mean, count_valid
		FROM sessions WHERE session_id = ?`, sessionID)
	if err := row.Scan(&res.SessionID, &res.Discipline, &res.Unit, &best, &mean, &res.CountValid); err != nil {
		return engine.SessionResult{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if best.Valid {
		res.Best = &best.Float64
	}
	if mean.Valid {
		res.Mean = &mean.Float64
	}

	rows, err := s.db.Query(`
		SELECT trial_id, value, unit, confidence, accepted, violations, at_timestamp
		FROM trials WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return engine.SessionResult{}, fmt.Errorf("failed to load trials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tm engine.TrialMetric
		var accepted int
		var violations string
		if err := rows.Scan(&tm.TrialID, &tm.Value, &tm.Unit, &tm.Confidence, &accepted, &violations, &tm.At); err != nil {
			return engine.SessionResult{}, fmt.Errorf("failed to scan trial: %w", err)
		}
		tm.Accepted = accepted != 0
		tm.Violations = splitViolations(violations)
		res.Trials = append(res.Trials, tm)
	}
	return res, rows.Err()
}

// ListSessions returns stored sessions, newest first, optionally filtered
// by discipline.
func (s *Store) ListSessions(discipline string, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT session_id, discipline, unit, best, mean, count_valid, created_at
		FROM sessions`
	args := []interface{}{}
	if discipline != "" {
		query += " WHERE discipline = ?"
		args = append(args, discipline)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var best, mean sql.NullFloat64
		if err := rows.Scan(&rec.SessionID, &rec.Discipline, &rec.Unit, &best, &mean, &rec.CountValid, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if best.Valid {
			rec.Best = &best.Float64
		}
		if mean.Valid {
			rec.Mean = &mean.Float64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinViolations(vs []engine.ViolationKind) string {
	if len(vs) == 0 {
		return ""
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

func splitViolations(s string) []engine.ViolationKind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]engine.ViolationKind, len(parts))
	for i, p := range parts {
		out[i] = engine.ViolationKind(p)
	}
	return out
}
