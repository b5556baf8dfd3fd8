package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"apflow/internal/audit"
)

// AuditPostgres appends audit records to the audit_log table. Rows are
// never updated or deleted.
type AuditPostgres struct {
	db *sql.DB
}

// NewAuditPostgres creates a new AuditPostgres sink.
func NewAuditPostgres(db *sql.DB) *AuditPostgres {
	return &AuditPostgres{db: db}
}

var _ audit.Sink = (*AuditPostgres)(nil)

func (s *AuditPostgres) Append(ctx context.Context, invoiceID, action, actor, details string) error {
	const q = `
		INSERT INTO audit_log (id, invoice_id, action, actor, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.ExecContext(ctx, q,
		uuid.NewString(),
		invoiceID,
		action,
		actor,
		details,
		time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
