package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS claim_records (
    session_id      TEXT PRIMARY KEY,
    order_number    TEXT NOT NULL,
    handle          TEXT NOT NULL,
    email           TEXT NOT NULL,
    user_id         BIGINT NOT NULL,
    username        TEXT NOT NULL DEFAULT '',
    display_name    TEXT NOT NULL DEFAULT '',
    avatar_ref      TEXT NOT NULL DEFAULT '',
    submitted_at    TIMESTAMPTZ NOT NULL
)`

const insertSQL = `INSERT INTO claim_records
    (session_id, order_number, handle, email, user_id, username, display_name, avatar_ref, submitted_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (session_id) DO NOTHING`

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ArchiveNotifier persists claim records in PostgreSQL.
type ArchiveNotifier struct {
	db  Execer
	now func() time.Time
}

// NewArchiveNotifier constructs a Postgres-backed archive.
func NewArchiveNotifier(db Execer) *ArchiveNotifier {
	return &ArchiveNotifier{db: db, now: time.Now}
}

// EnsureSchema creates the claim_records table when missing.
func (a *ArchiveNotifier) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create claim_records: %w", err)
	}
	return nil
}

// Send implements Notifier. Replays of the same session are ignored.
func (a *ArchiveNotifier) Send(ctx context.Context, record ClaimRecord) error {
	submitted := record.SubmittedAt
	if submitted.IsZero() {
		submitted = a.now()
	}
	_, err := a.db.Exec(ctx, insertSQL,
		record.SessionID,
		record.OrderNumber,
		record.Handle,
		record.Email,
		record.Identity.NumericID,
		record.Identity.Username,
		record.Identity.DisplayName,
		record.Identity.AvatarRef,
		submitted.UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive claim %s: %w", record.SessionID, err)
	}
	return nil
}
