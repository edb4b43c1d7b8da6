package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: attempt not found")

// Store is the persistence contract for call attempts.
//
// Finish is keyed by session id because terminal webhook events only carry
// the provider call-control id.
type Store interface {
	Create(ctx context.Context, a Attempt) error
	Finish(ctx context.Context, sessionID string, status AttemptStatus, amdResult, hangupCause string, durationSeconds int, endedAt time.Time) error
	ListByRun(ctx context.Context, runID string) ([]Attempt, error)
}

// PostgresStore persists attempts in the call_attempts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a Attempt) error {
	const q = `
INSERT INTO call_attempts
	(id, session_id, run_id, contact_id, user_id, from_number, to_number, status, started_at)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9)
`
	_, err := s.db.ExecContext(ctx, q,
		a.ID,
		a.SessionID,
		a.RunID,
		a.ContactID,
		a.UserID,
		a.From,
		a.To,
		a.Status,
		a.StartedAt,
	)
	return err
}

func (s *PostgresStore) Finish(ctx context.Context, sessionID string, status AttemptStatus, amdResult, hangupCause string, durationSeconds int, endedAt time.Time) error {
	const q = `
UPDATE call_attempts
SET status = $2,
    amd_result = NULLIF($3, ''),
    hangup_cause = NULLIF($4, ''),
    duration_seconds = $5,
    ended_at = $6
WHERE session_id = $1
`
	res, err := s.db.ExecContext(ctx, q, sessionID, status, amdResult, hangupCause, durationSeconds, endedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByRun(ctx context.Context, runID string) ([]Attempt, error) {
	const q = `
SELECT id, session_id, COALESCE(run_id, ''), contact_id, COALESCE(user_id, ''),
       from_number, to_number, status, COALESCE(amd_result, ''), COALESCE(hangup_cause, ''),
       duration_seconds, started_at, ended_at
FROM call_attempts
WHERE run_id = $1
ORDER BY started_at
`
	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.RunID,
			&a.ContactID,
			&a.UserID,
			&a.From,
			&a.To,
			&a.Status,
			&a.AMDResult,
			&a.HangupCause,
			&a.DurationSeconds,
			&a.StartedAt,
			&a.EndedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
