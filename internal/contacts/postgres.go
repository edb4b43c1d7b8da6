package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresStore reads call lists and writes disposition side effects against
// the CRM schema. It implements Source plus the collaborator interfaces
// declared by internal/disposition.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Next(ctx context.Context, listID string, cursor int) (Contact, int, error) {
	const q = `
SELECT c.id, c.name, c.phone, c.do_not_call, m.position
FROM list_members m
JOIN contacts c ON c.id = m.contact_id
WHERE m.list_id = $1 AND m.position >= $2
ORDER BY m.position
LIMIT 1
`
	var c Contact
	var position int
	err := s.db.QueryRowContext(ctx, q, listID, cursor).Scan(&c.ID, &c.Name, &c.Phone, &c.DoNotCall, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, cursor, ErrExhausted
	}
	if err != nil {
		return Contact{}, cursor, err
	}
	return c, position + 1, nil
}

func (s *PostgresStore) Remaining(ctx context.Context, listID string, cursor int) (int, error) {
	const q = `
SELECT COUNT(*)
FROM list_members
WHERE list_id = $1 AND position >= $2
`
	var n int
	if err := s.db.QueryRowContext(ctx, q, listID, cursor).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// SetDoNotCall flags the contact. Idempotent.
func (s *PostgresStore) SetDoNotCall(ctx context.Context, contactID, reason string) error {
	const q = `
UPDATE contacts
SET do_not_call = TRUE, dnc_reason = NULLIF($2, ''), updated_at = $3
WHERE id = $1
`
	_, err := s.db.ExecContext(ctx, q, contactID, reason, s.clock().UTC())
	return err
}

func (s *PostgresStore) AppendNote(ctx context.Context, contactID, body string) error {
	const q = `
INSERT INTO contact_notes (id, contact_id, body, created_at)
VALUES ($1, $2, $3, $4)
`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), contactID, body, s.clock().UTC())
	return err
}

func (s *PostgresStore) AddTag(ctx context.Context, contactID, tag string) error {
	const q = `
INSERT INTO contact_tags (contact_id, tag, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (contact_id, tag) DO NOTHING
`
	_, err := s.db.ExecContext(ctx, q, contactID, tag, s.clock().UTC())
	return err
}

func (s *PostgresStore) RemoveTag(ctx context.Context, contactID, tag string) error {
	const q = `DELETE FROM contact_tags WHERE contact_id = $1 AND tag = $2`
	_, err := s.db.ExecContext(ctx, q, contactID, tag)
	return err
}

func (s *PostgresStore) CreateTask(ctx context.Context, contactID, title string, dueAt *time.Time) error {
	const q = `
INSERT INTO tasks (id, contact_id, title, due_at, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), contactID, title, dueAt, s.clock().UTC())
	return err
}

func (s *PostgresStore) Enroll(ctx context.Context, contactID, sequenceID string) error {
	const q = `
INSERT INTO sequence_enrollments (id, contact_id, sequence_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (contact_id, sequence_id) DO NOTHING
`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), contactID, sequenceID, s.clock().UTC())
	return err
}

// QueueSMS and QueueEmail enqueue rows for the messaging workers; the blast
// schedulers that drain them are outside this core.
func (s *PostgresStore) QueueSMS(ctx context.Context, contactID, templateID string) error {
	return s.queueMessage(ctx, contactID, "sms", templateID)
}

func (s *PostgresStore) QueueEmail(ctx context.Context, contactID, templateID string) error {
	return s.queueMessage(ctx, contactID, "email", templateID)
}

func (s *PostgresStore) queueMessage(ctx context.Context, contactID, channel, templateID string) error {
	const q = `
INSERT INTO outbound_messages (id, contact_id, channel, template_id, status, created_at)
VALUES ($1, $2, $3, $4, 'queued', $5)
`
	_, err := s.db.ExecContext(ctx, q, uuid.NewString(), contactID, channel, templateID, s.clock().UTC())
	return err
}

func (s *PostgresStore) UpdateStage(ctx context.Context, contactID, stageID string) error {
	const q = `
UPDATE deals
SET stage_id = $2, updated_at = $3
WHERE contact_id = $1
`
	_, err := s.db.ExecContext(ctx, q, contactID, stageID, s.clock().UTC())
	return err
}
