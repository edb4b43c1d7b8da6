package dialer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dialer-platform/pkg/utils"
)

// RunStore is the durable mirror of run state. The in-memory copy inside the
// controller is the fast path; this store is what survives restarts.
type RunStore interface {
	Create(ctx context.Context, r Run) error
	Get(ctx context.Context, id string) (Run, error)
	Update(ctx context.Context, r Run) error
	ListByStatus(ctx context.Context, status RunStatus) ([]Run, error)
}

// PostgresRunStore persists runs in the dialer_runs table.
type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

const runColumns = `
id, name, list_id, owner_user_id, status, max_lines, caller_ids, transfer_to,
COALESCE(voicemail_drop_url, ''), cursor,
attempted, answered, no_answer, voicemail, busy, failed, canceled, talk_time_seconds,
started_at, paused_at, completed_at, created_at, updated_at`

func (s *PostgresRunStore) Create(ctx context.Context, r Run) error {
	callerIDs, err := json.Marshal(r.CallerIDs)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO dialer_runs
	(id, name, list_id, owner_user_id, status, max_lines, caller_ids, transfer_to,
	 voicemail_drop_url, cursor,
	 attempted, answered, no_answer, voicemail, busy, failed, canceled, talk_time_seconds,
	 started_at, paused_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
`
	_, err = s.db.ExecContext(ctx, q,
		r.ID, r.Name, r.ListID, r.OwnerUserID, r.Status, r.MaxLines, string(callerIDs), r.TransferTo,
		r.VoicemailDropURL, r.Cursor,
		r.Stats.Attempted, r.Stats.Answered, r.Stats.NoAnswer, r.Stats.Voicemail,
		r.Stats.Busy, r.Stats.Failed, r.Stats.Canceled, r.Stats.TalkTimeSeconds,
		r.StartedAt, r.PausedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *PostgresRunStore) Get(ctx context.Context, id string) (Run, error) {
	q := `SELECT ` + runColumns + ` FROM dialer_runs WHERE id = $1`
	r, err := scanRun(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresRunStore) Update(ctx context.Context, r Run) error {
	callerIDs, err := json.Marshal(r.CallerIDs)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		const q = `
UPDATE dialer_runs
SET name = $2, status = $3, max_lines = $4, caller_ids = $5, transfer_to = $6,
    voicemail_drop_url = NULLIF($7, ''), cursor = $8,
    attempted = $9, answered = $10, no_answer = $11, voicemail = $12,
    busy = $13, failed = $14, canceled = $15, talk_time_seconds = $16,
    started_at = $17, paused_at = $18, completed_at = $19, updated_at = $20
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, q,
			r.ID, r.Name, r.Status, r.MaxLines, string(callerIDs), r.TransferTo,
			r.VoicemailDropURL, r.Cursor,
			r.Stats.Attempted, r.Stats.Answered, r.Stats.NoAnswer, r.Stats.Voicemail,
			r.Stats.Busy, r.Stats.Failed, r.Stats.Canceled, r.Stats.TalkTimeSeconds,
			r.StartedAt, r.PausedAt, r.CompletedAt, time.Now().UTC(),
		)
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
	})
}

func (s *PostgresRunStore) ListByStatus(ctx context.Context, status RunStatus) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM dialer_runs WHERE status = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var callerIDs string
	if err := row.Scan(
		&r.ID, &r.Name, &r.ListID, &r.OwnerUserID, &r.Status, &r.MaxLines, &callerIDs, &r.TransferTo,
		&r.VoicemailDropURL, &r.Cursor,
		&r.Stats.Attempted, &r.Stats.Answered, &r.Stats.NoAnswer, &r.Stats.Voicemail,
		&r.Stats.Busy, &r.Stats.Failed, &r.Stats.Canceled, &r.Stats.TalkTimeSeconds,
		&r.StartedAt, &r.PausedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return Run{}, err
	}
	if callerIDs != "" {
		if err := json.Unmarshal([]byte(callerIDs), &r.CallerIDs); err != nil {
			return Run{}, err
		}
	}
	return r, nil
}
