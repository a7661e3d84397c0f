package audit

import (
	"context"
	"database/sql"

	"dialer-platform/pkg/utils"
)

// SQLRepo appends events to the audit_events table.
type SQLRepo struct {
	db     *sql.DB
	driver string
}

func NewSQLRepo(db *sql.DB, driver string) *SQLRepo {
	return &SQLRepo{db: db, driver: driver}
}

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	q := utils.Rebind(r.driver, `INSERT INTO audit_events
		(id, type, actor_user_id, actor_role, ip_address, call_sid, lead_id, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	return utils.Retry(ctx, utils.DefaultRetry, func() error {
		_, err := r.db.ExecContext(ctx, q,
			e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress,
			e.CallSID, e.LeadID, e.Message, e.Metadata, e.CreatedAt.UTC(),
		)
		return err
	})
}
