package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_extension_uuid_ossp",
		SQL:  `CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	},
	{
		Name: "create_table_invoices",
		SQL: `CREATE TABLE IF NOT EXISTS invoices (
  id           UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  status       TEXT        NOT NULL,
  po_number    TEXT        NOT NULL DEFAULT '',
  approver     TEXT        NOT NULL DEFAULT '',
  document_key TEXT        NOT NULL DEFAULT '',
  extracted    JSONB,
  validation   JSONB,
  match_result JSONB,
  workflow_log JSONB       NOT NULL DEFAULT '[]'::jsonb,
  received_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  processed_at TIMESTAMPTZ,
  approved_at  TIMESTAMPTZ,
  paid_at      TIMESTAMPTZ,
  updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_invoices_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices (status);`,
	},
	{
		Name: "create_index_invoices_received_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_invoices_received_at ON invoices (received_at);`,
	},
	{
		Name: "create_table_purchase_orders",
		SQL: `CREATE TABLE IF NOT EXISTS purchase_orders (
  id           UUID           PRIMARY KEY DEFAULT uuid_generate_v4(),
  po_number    TEXT           NOT NULL UNIQUE,
  vendor_id    TEXT           NOT NULL DEFAULT '',
  vendor_name  TEXT           NOT NULL,
  currency     TEXT           NOT NULL DEFAULT 'USD',
  total_amount NUMERIC(14, 2) NOT NULL CHECK (total_amount >= 0),
  line_items   JSONB          NOT NULL DEFAULT '[]'::jsonb,
  created_at   TIMESTAMPTZ    NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_goods_receipts",
		SQL: `CREATE TABLE IF NOT EXISTS goods_receipts (
  id         UUID        PRIMARY KEY DEFAULT uuid_generate_v4(),
  po_id      UUID        NOT NULL REFERENCES purchase_orders (id),
  items      JSONB       NOT NULL DEFAULT '[]'::jsonb,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_annexures",
		SQL: `CREATE TABLE IF NOT EXISTS annexures (
  id              UUID           PRIMARY KEY DEFAULT uuid_generate_v4(),
  po_id           UUID           NOT NULL REFERENCES purchase_orders (id),
  approved_amount NUMERIC(14, 2),
  created_at      TIMESTAMPTZ    NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_table_audit_log",
		SQL: `CREATE TABLE IF NOT EXISTS audit_log (
  id         UUID        PRIMARY KEY,
  invoice_id UUID        NOT NULL,
  action     TEXT        NOT NULL,
  actor      TEXT        NOT NULL DEFAULT '',
  details    TEXT        NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_audit_log_invoice_id",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_audit_log_invoice_id ON audit_log (invoice_id);`,
	},
}

// EnsureMigrated checks for the invoices table and runs the migration steps
// if it is missing. Steps are idempotent so a partial earlier run is safe.
func EnsureMigrated(ctx context.Context, db *sql.DB, logger *logrus.Logger) error {
	start := time.Now()
	log := logger.WithField("component", "database")

	var exists bool
	if err := db.QueryRowContext(ctx, "SELECT to_regclass('public.invoices') IS NOT NULL").Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}
	if exists {
		log.Debug("schema already exists, skipping migration")
		return nil
	}

	log.Info("running schema migration")
	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.WithFields(logrus.Fields{
				"migration_step": step.Name,
				"duration_ms":    time.Since(stepStart).Milliseconds(),
			}).WithError(err).Error("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.WithFields(logrus.Fields{
			"migration_step": step.Name,
			"duration_ms":    time.Since(stepStart).Milliseconds(),
		}).Debug("migration step applied")
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Info("schema migration complete")
	return nil
}
