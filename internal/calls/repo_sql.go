package calls

import (
	"context"
	"database/sql"
	"time"

	"dialer-platform/pkg/utils"
)

type SQLRepo struct {
	db     *sql.DB
	driver string
}

func NewSQLRepo(db *sql.DB, driver string) *SQLRepo {
	return &SQLRepo{db: db, driver: driver}
}

func (r *SQLRepo) Create(ctx context.Context, c Call) error {
	q := utils.Rebind(r.driver, `INSERT INTO calls
		(id, lead_id, agent_id, provider_call_sid, status, duration_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	return utils.Retry(ctx, utils.DefaultRetry, func() error {
		_, err := r.db.ExecContext(ctx, q,
			c.ID, c.LeadID, c.AgentID, c.ProviderCallSID, string(c.Status), c.DurationSeconds,
			c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
		)
		return err
	})
}

func (r *SQLRepo) UpdateByProviderSID(ctx context.Context, sid string, status CallStatus, durationSeconds int, now time.Time) error {
	q := utils.Rebind(r.driver, `UPDATE calls SET status = ?, duration_seconds = ?, updated_at = ?
		WHERE provider_call_sid = ?`)
	return utils.Retry(ctx, utils.DefaultRetry, func() error {
		res, err := r.db.ExecContext(ctx, q, string(status), durationSeconds, now.UTC(), sid)
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

// Get loads one row by ID.
func (r *SQLRepo) Get(ctx context.Context, id string) (Call, error) {
	q := utils.Rebind(r.driver, `SELECT id, lead_id, agent_id, provider_call_sid, status, duration_seconds, created_at, updated_at
		FROM calls WHERE id = ?`)
	var (
		c      Call
		status string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID, &c.LeadID, &c.AgentID, &c.ProviderCallSID, &status, &c.DurationSeconds, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, err
	}
	c.Status = CallStatus(status)
	return c, nil
}
