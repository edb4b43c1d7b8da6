package disposition

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"dialer-platform/pkg/utils"
)

var (
	ErrNotFound          = errors.New("disposition: not found")
	ErrSystemDisposition = errors.New("disposition: system dispositions cannot be deleted")
)

// Repository is the persistence contract for dispositions and their actions.
type Repository interface {
	Get(ctx context.Context, id string) (Disposition, error)
	List(ctx context.Context) ([]Disposition, error)
	Create(ctx context.Context, d Disposition) error
	Update(ctx context.Context, d Disposition) error
	Delete(ctx context.Context, id string) error
}

// PostgresRepo persists dispositions across the dispositions and
// disposition_actions tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Disposition, error) {
	const q = `
SELECT id, name, is_system, active, marks_dnc
FROM dispositions
WHERE id = $1
`
	var d Disposition
	err := r.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.Name, &d.IsSystem, &d.Active, &d.MarksDoNotCall)
	if errors.Is(err, sql.ErrNoRows) {
		return Disposition{}, ErrNotFound
	}
	if err != nil {
		return Disposition{}, err
	}
	actions, err := r.actionsFor(ctx, id)
	if err != nil {
		return Disposition{}, err
	}
	d.Actions = actions
	return d, nil
}

func (r *PostgresRepo) actionsFor(ctx context.Context, dispositionID string) ([]Action, error) {
	const q = `
SELECT id, type, config, sort_order, active
FROM disposition_actions
WHERE disposition_id = $1
ORDER BY sort_order
`
	rows, err := r.db.QueryContext(ctx, q, dispositionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.Type, &a.Config, &a.SortOrder, &a.Active); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context) ([]Disposition, error) {
	const q = `
SELECT id, name, is_system, active, marks_dnc
FROM dispositions
ORDER BY name
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Disposition
	for rows.Next() {
		var d Disposition
		if err := rows.Scan(&d.ID, &d.Name, &d.IsSystem, &d.Active, &d.MarksDoNotCall); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		actions, err := r.actionsFor(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Actions = actions
	}
	return out, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d Disposition) error {
	return utils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const q = `
INSERT INTO dispositions (id, name, is_system, active, marks_dnc)
VALUES ($1, $2, $3, $4, $5)
`
		if _, err := tx.ExecContext(ctx, q, d.ID, d.Name, d.IsSystem, d.Active, d.MarksDoNotCall); err != nil {
			return err
		}
		return insertActions(ctx, tx, d.ID, d.Actions)
	})
}

func (r *PostgresRepo) Update(ctx context.Context, d Disposition) error {
	return utils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		const q = `
UPDATE dispositions
SET name = $2, active = $3, marks_dnc = $4
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, q, d.ID, d.Name, d.Active, d.MarksDoNotCall)
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
		if _, err := tx.ExecContext(ctx, `DELETE FROM disposition_actions WHERE disposition_id = $1`, d.ID); err != nil {
			return err
		}
		return insertActions(ctx, tx, d.ID, d.Actions)
	})
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	return utils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var isSystem bool
		err := tx.QueryRowContext(ctx, `SELECT is_system FROM dispositions WHERE id = $1`, id).Scan(&isSystem)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if isSystem {
			return ErrSystemDisposition
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM disposition_actions WHERE disposition_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM dispositions WHERE id = $1`, id)
		return err
	})
}

func insertActions(ctx context.Context, tx *sql.Tx, dispositionID string, actions []Action) error {
	const q = `
INSERT INTO disposition_actions (id, disposition_id, type, config, sort_order, active)
VALUES ($1, $2, $3, $4, $5, $6)
`
	for _, a := range actions {
		if _, err := tx.ExecContext(ctx, q, a.ID, dispositionID, a.Type, a.Config, a.SortOrder, a.Active); err != nil {
			return err
		}
	}
	return nil
}

// sortActions orders by ascending sort order, stable for equal keys.
func sortActions(actions []Action) []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out
}
