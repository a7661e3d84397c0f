package leads

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dialer-platform/pkg/utils"
)

const leadColumns = `id, name, email, phone, company, assigned_to, status, score, notes,
	last_call_date, next_follow_up, created_at, updated_at`

// SQLRepo stores leads in Postgres or SQLite.
type SQLRepo struct {
	db     *sql.DB
	driver string
}

func NewSQLRepo(db *sql.DB, driver string) *SQLRepo {
	return &SQLRepo{db: db, driver: driver}
}

func (r *SQLRepo) Create(ctx context.Context, l Lead) error {
	q := utils.Rebind(r.driver, `INSERT INTO leads (`+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	return utils.Retry(ctx, utils.DefaultRetry, func() error {
		_, err := r.db.ExecContext(ctx, q,
			l.ID, l.Name, l.Email, l.Phone, l.Company, l.AssignedTo, string(l.Status), l.Score, l.Notes,
			nullTime(l.LastCallDate), nullTime(l.NextFollowUp), l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
		)
		return err
	})
}

func (r *SQLRepo) List(ctx context.Context, f Filter) ([]Lead, error) {
	var (
		where []string
		args  []any
	)
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, utils.Rebind(r.driver, q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Get(ctx context.Context, id string) (Lead, error) {
	q := utils.Rebind(r.driver, `SELECT `+leadColumns+` FROM leads WHERE id = ?`)
	l, err := scanLead(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	return l, err
}

func (r *SQLRepo) Update(ctx context.Context, id string, p Patch, now time.Time) (Lead, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now.UTC()}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*p.Status))
	}
	if p.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *p.Notes)
	}
	if p.LastCallDate != nil {
		sets = append(sets, "last_call_date = ?")
		args = append(args, p.LastCallDate.UTC())
	}
	args = append(args, id)
	q := utils.Rebind(r.driver, `UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`)

	get := utils.Rebind(r.driver, `SELECT `+leadColumns+` FROM leads WHERE id = ?`)

	// Read back inside the transaction.
	var out Lead
	err := utils.Retry(ctx, utils.DefaultRetry, func() error {
		return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, q, args...)
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
			out, err = scanLead(tx.QueryRowContext(ctx, get, id))
			return err
		})
	})
	if err != nil {
		return Lead{}, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(s rowScanner) (Lead, error) {
	var (
		l              Lead
		status         string
		lastCall, next sql.NullTime
	)
	if err := s.Scan(
		&l.ID, &l.Name, &l.Email, &l.Phone, &l.Company, &l.AssignedTo, &status, &l.Score, &l.Notes,
		&lastCall, &next, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}
	l.Status = Status(status)
	l.LastCallDate = timePtr(lastCall)
	l.NextFollowUp = timePtr(next)
	return l, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
