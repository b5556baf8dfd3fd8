package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"apflow/internal/model"
	"apflow/internal/repository"
)

// InvoicePostgres is a PostgreSQL implementation of
// repository.InvoiceRepository. Extraction, validation, match and workflow
// log payloads are stored as JSONB; UpdateAtomic serializes per-invoice
// mutations with SELECT ... FOR UPDATE.
type InvoicePostgres struct {
	db *sql.DB
}

// NewInvoicePostgres creates a new InvoicePostgres repository.
func NewInvoicePostgres(db *sql.DB) *InvoicePostgres {
	return &InvoicePostgres{db: db}
}

var _ repository.InvoiceRepository = (*InvoicePostgres)(nil)

const invoiceColumns = `id, status, po_number, approver, document_key,
	extracted, validation, match_result, workflow_log,
	received_at, processed_at, approved_at, paid_at`

// Create inserts a new invoice row and returns the stored record.
func (r *InvoicePostgres) Create(ctx context.Context, inv *model.Invoice) (*model.Invoice, error) {
	extracted, validation, match, wlog, err := marshalPayloads(inv)
	if err != nil {
		return nil, err
	}
	const q = `
		INSERT INTO invoices (` + invoiceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + invoiceColumns + `
	`
	row := r.db.QueryRowContext(ctx, q,
		inv.ID,
		string(inv.Status),
		inv.PONumber,
		inv.Approver,
		inv.DocumentKey,
		extracted,
		validation,
		match,
		wlog,
		inv.ReceivedAt,
		inv.ProcessedAt,
		inv.ApprovedAt,
		inv.PaidAt,
	)
	return scanInvoice(row)
}

// FindByID fetches a single invoice by its id.
func (r *InvoicePostgres) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	const q = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return inv, err
}

// List returns invoices using LIMIT/OFFSET pagination and a total count,
// optionally filtered by status.
func (r *InvoicePostgres) List(ctx context.Context, f repository.Filter) (*repository.PageResult[model.Invoice], error) {
	where := ""
	countArgs := []any{}
	listArgs := []any{}
	if f.Status != "" {
		where = " WHERE status = $1"
		countArgs = append(countArgs, string(f.Status))
		listArgs = append(listArgs, string(f.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM invoices"+where, countArgs...).Scan(&total); err != nil {
		return nil, err
	}

	q := `SELECT ` + invoiceColumns + ` FROM invoices` + where +
		fmt.Sprintf(` ORDER BY received_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(listArgs)+1, len(listArgs)+2)
	listArgs = append(listArgs, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, listArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &repository.PageResult[model.Invoice]{Items: items, Total: total}, nil
}

// ListByStatus returns every invoice in one of the given statuses.
func (r *InvoicePostgres) ListByStatus(ctx context.Context, statuses []model.Status) ([]model.Invoice, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(s)
	}
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY received_at ASC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *inv)
	}
	return items, rows.Err()
}

// UpdateAtomic applies fn to the invoice under a transaction-held row lock,
// so no two transitions for the same invoice can interleave.
func (r *InvoicePostgres) UpdateAtomic(ctx context.Context, id string, fn func(inv *model.Invoice) error) (*model.Invoice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const sel = `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`
	inv, err := scanInvoice(tx.QueryRowContext(ctx, sel, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(inv); err != nil {
		return nil, err
	}

	extracted, validation, match, wlog, err := marshalPayloads(inv)
	if err != nil {
		return nil, err
	}
	const upd = `
		UPDATE invoices SET
			status = $2, po_number = $3, approver = $4, document_key = $5,
			extracted = $6, validation = $7, match_result = $8, workflow_log = $9,
			processed_at = $10, approved_at = $11, paid_at = $12, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, upd,
		inv.ID,
		string(inv.Status),
		inv.PONumber,
		inv.Approver,
		inv.DocumentKey,
		extracted,
		validation,
		match,
		wlog,
		inv.ProcessedAt,
		inv.ApprovedAt,
		inv.PaidAt,
	); err != nil {
		return nil, fmt.Errorf("persist update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return inv, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*model.Invoice, error) {
	var (
		inv        model.Invoice
		status     string
		extracted  []byte
		validation []byte
		match      []byte
		wlog       []byte
		processed  sql.NullTime
		approved   sql.NullTime
		paid       sql.NullTime
	)
	if err := row.Scan(
		&inv.ID,
		&status,
		&inv.PONumber,
		&inv.Approver,
		&inv.DocumentKey,
		&extracted,
		&validation,
		&match,
		&wlog,
		&inv.ReceivedAt,
		&processed,
		&approved,
		&paid,
	); err != nil {
		return nil, err
	}
	inv.Status = model.Status(status)
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &inv.Extracted); err != nil {
			return nil, fmt.Errorf("decode extracted payload: %w", err)
		}
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &inv.Validation); err != nil {
			return nil, fmt.Errorf("decode validation payload: %w", err)
		}
	}
	if len(match) > 0 {
		if err := json.Unmarshal(match, &inv.Match); err != nil {
			return nil, fmt.Errorf("decode match payload: %w", err)
		}
	}
	if len(wlog) > 0 {
		if err := json.Unmarshal(wlog, &inv.WorkflowLog); err != nil {
			return nil, fmt.Errorf("decode workflow log: %w", err)
		}
	}
	inv.ProcessedAt = nullTimePtr(processed)
	inv.ApprovedAt = nullTimePtr(approved)
	inv.PaidAt = nullTimePtr(paid)
	return &inv, nil
}

func marshalPayloads(inv *model.Invoice) (extracted, validation, match, wlog []byte, err error) {
	if inv.Extracted != nil {
		if extracted, err = json.Marshal(inv.Extracted); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode extracted payload: %w", err)
		}
	}
	if inv.Validation != nil {
		if validation, err = json.Marshal(inv.Validation); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode validation payload: %w", err)
		}
	}
	if inv.Match != nil {
		if match, err = json.Marshal(inv.Match); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode match payload: %w", err)
		}
	}
	if inv.WorkflowLog == nil {
		inv.WorkflowLog = []model.WorkflowLogEntry{}
	}
	if wlog, err = json.Marshal(inv.WorkflowLog); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode workflow log: %w", err)
	}
	return extracted, validation, match, wlog, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
