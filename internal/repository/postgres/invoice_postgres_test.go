package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apflow/internal/model"
	"apflow/internal/repository"
)

var invoiceCols = []string{
	"id", "status", "po_number", "approver", "document_key",
	"extracted", "validation", "match_result", "workflow_log",
	"received_at", "processed_at", "approved_at", "paid_at",
}

func newMock(t *testing.T) (*InvoicePostgres, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewInvoicePostgres(db), mock, func() { db.Close() }
}

func invoiceValues(t *testing.T, inv *model.Invoice) []driver.Value {
	t.Helper()
	wlog := inv.WorkflowLog
	if wlog == nil {
		wlog = []model.WorkflowLogEntry{}
	}
	wlogJSON, err := json.Marshal(wlog)
	require.NoError(t, err)
	var extracted []byte
	if inv.Extracted != nil {
		extracted, err = json.Marshal(inv.Extracted)
		require.NoError(t, err)
	}
	return []driver.Value{
		inv.ID, string(inv.Status), inv.PONumber, inv.Approver, inv.DocumentKey,
		extracted, nil, nil, wlogJSON,
		inv.ReceivedAt, nullTime(inv.ProcessedAt), nullTime(inv.ApprovedAt), nullTime(inv.PaidAt),
	}
}

func rowsFor(t *testing.T, invs ...*model.Invoice) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows(invoiceCols)
	for _, inv := range invs {
		rows.AddRow(invoiceValues(t, inv)...)
	}
	return rows
}

func nullTime(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return *t
}

func sampleInvoice() *model.Invoice {
	return &model.Invoice{
		ID:          "0a6e9a32-8a12-41d2-9f6e-0d6b0a2f9f10",
		Status:      model.StatusReceived,
		PONumber:    "PO-1001",
		Approver:    "alice",
		DocumentKey: "invoices/doc.pdf",
		ReceivedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		WorkflowLog: []model.WorkflowLogEntry{{
			From: model.StatusReceived, To: model.StatusReceived,
			Action: "RECEIVE", Actor: "ingestion",
			Timestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		}},
	}
}

func TestCreate(t *testing.T) {
	repo, mock, cleanup := newMock(t)
	defer cleanup()

	inv := sampleInvoice()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO invoices")).
		WithArgs(
			inv.ID, string(inv.Status), inv.PONumber, inv.Approver, inv.DocumentKey,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			inv.ReceivedAt, nil, nil, nil,
		).
		WillReturnRows(rowsFor(t, inv))

	got, err := repo.Create(context.Background(), inv)
	require.NoError(t, err)

	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, model.StatusReceived, got.Status)
	require.Len(t, got.WorkflowLog, 1)
	assert.Equal(t, "RECEIVE", got.WorkflowLog[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		inv := sampleInvoice()
		mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE id = $1")).
			WithArgs(inv.ID).
			WillReturnRows(rowsFor(t, inv))

		got, err := repo.FindByID(context.Background(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, inv.ID, got.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE id = $1")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		got, err := repo.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, got)
	})
}

func TestList(t *testing.T) {
	t.Run("with status filter", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		inv := sampleInvoice()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM invoices WHERE status = $1")).
			WithArgs(string(model.StatusReceived)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY received_at DESC, id DESC LIMIT $2 OFFSET $3")).
			WithArgs(string(model.StatusReceived), 10, 0).
			WillReturnRows(rowsFor(t, inv))

		got, err := repo.List(context.Background(), repository.Filter{Status: model.StatusReceived, Limit: 10, Offset: 0})
		require.NoError(t, err)
		assert.Equal(t, 1, got.Total)
		require.Len(t, got.Items, 1)
		assert.Equal(t, inv.ID, got.Items[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("without filter", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM invoices")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
			WithArgs(10, 20).
			WillReturnRows(sqlmock.NewRows(invoiceCols))

		got, err := repo.List(context.Background(), repository.Filter{Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Equal(t, 0, got.Total)
		assert.Empty(t, got.Items)
	})
}

func TestListByStatus(t *testing.T) {
	t.Run("builds the IN clause", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		inv := sampleInvoice()
		inv.Status = model.StatusVerified
		mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ($1, $2) ORDER BY received_at ASC")).
			WithArgs(string(model.StatusVerified), string(model.StatusPendingApproval)).
			WillReturnRows(rowsFor(t, inv))

		got, err := repo.ListByStatus(context.Background(), []model.Status{model.StatusVerified, model.StatusPendingApproval})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, model.StatusVerified, got[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no statuses queries nothing", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		got, err := repo.ListByStatus(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateAtomic(t *testing.T) {
	t.Run("applies the mutation in a row-locked transaction", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		inv := sampleInvoice()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 FOR UPDATE")).
			WithArgs(inv.ID).
			WillReturnRows(rowsFor(t, inv))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET")).
			WithArgs(
				inv.ID, string(model.StatusDigitizing), inv.PONumber, inv.Approver, inv.DocumentKey,
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := repo.UpdateAtomic(context.Background(), inv.ID, func(in *model.Invoice) error {
			in.Status = model.StatusDigitizing
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusDigitizing, got.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		got, err := repo.UpdateAtomic(context.Background(), "missing", func(in *model.Invoice) error { return nil })
		assert.ErrorIs(t, err, repository.ErrNotFound)
		assert.Nil(t, got)
	})

	t.Run("mutation error rolls back without writing", func(t *testing.T) {
		repo, mock, cleanup := newMock(t)
		defer cleanup()

		inv := sampleInvoice()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
			WithArgs(inv.ID).
			WillReturnRows(rowsFor(t, inv))
		mock.ExpectRollback()

		wantErr := errors.New("transition rejected")
		got, err := repo.UpdateAtomic(context.Background(), inv.ID, func(in *model.Invoice) error { return wantErr })
		assert.ErrorIs(t, err, wantErr)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
