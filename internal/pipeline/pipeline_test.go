package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"apflow/internal/audit"
	extractionmocks "apflow/internal/extraction/mocks"
	"apflow/internal/locker"
	"apflow/internal/model"
	notifymocks "apflow/internal/notify/mocks"
	"apflow/internal/reconcile"
	refdatamocks "apflow/internal/refdata/mocks"
	repomocks "apflow/internal/repository/mocks"
	"apflow/internal/validation"
	"apflow/internal/workflow"
)

type failLocker struct{}

func (failLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (locker.Lock, error) {
	return nil, locker.ErrNotObtained
}

type pipelineMocks struct {
	repo      *repomocks.MockInvoiceRepository
	lookup    *refdatamocks.MockLookup
	extractor *extractionmocks.MockExtractor
	notifier  *notifymocks.MockDispatcher
}

func newTestPipeline(t *testing.T, locks locker.Locker) (*Pipeline, *pipelineMocks) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := &pipelineMocks{
		repo:      new(repomocks.MockInvoiceRepository),
		lookup:    new(refdatamocks.MockLookup),
		extractor: new(extractionmocks.MockExtractor),
		notifier:  new(notifymocks.MockDispatcher),
	}
	m.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Maybe()

	p := New(
		m.repo, m.lookup, m.extractor,
		validation.New(),
		reconcile.NewEngine(reconcile.DefaultTolerance),
		workflow.NewMachine(workflow.RolePolicy{}),
		m.notifier,
		audit.Noop{},
		locks,
		logger,
		Timeouts{},
		nil,
	)
	return p, m
}

// expectUpdates makes UpdateAtomic apply the transition callback to inv, so
// the mock behaves like the real repository's read-modify-write.
func expectUpdates(m *repomocks.MockInvoiceRepository, inv *model.Invoice) {
	m.On("UpdateAtomic", mock.Anything, inv.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(*model.Invoice) error)
			_ = fn(inv)
		}).
		Return(inv, nil)
}

func extractedFields() *model.ExtractedFields {
	return &model.ExtractedFields{
		InvoiceNumber: "INV-2024-001",
		VendorName:    "Acme Industrial Supplies",
		InvoiceDate:   "2024-03-01",
		TotalAmount:   decimal.NewFromFloat(6200.00),
		Currency:      "USD",
		Confidence:    0.97,
	}
}

func TestProcess_CleanRunEndsVerified(t *testing.T) {
	p, m := newTestPipeline(t, locker.Noop{})
	inv := &model.Invoice{ID: "inv-1", Status: model.StatusReceived, PONumber: "PO-1001", DocumentKey: "invoices/doc.pdf"}
	expectUpdates(m.repo, inv)

	po := &model.PurchaseOrder{
		ID:          "po-id-1",
		PONumber:    "PO-1001",
		VendorName:  "Acme Industrial Supplies",
		TotalAmount: decimal.NewFromFloat(6200.00),
	}
	m.extractor.On("Extract", mock.Anything, "invoices/doc.pdf").Return(extractedFields(), nil)
	m.lookup.On("GetPurchaseOrder", mock.Anything, "PO-1001").Return(po, nil)
	m.lookup.On("GetGoodsReceipt", mock.Anything, "PO-1001").Return(&model.GoodsReceipt{ID: "gr-1"}, nil)
	m.lookup.On("GetAnnexure", mock.Anything, "po-id-1").Return(nil, nil)

	got, err := p.Process(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusVerified, got.Status)
	require.NotNil(t, got.Extracted)
	require.NotNil(t, got.Validation)
	assert.True(t, got.Validation.IsValid)
	require.NotNil(t, got.Match)
	assert.True(t, got.Match.IsMatched)
	require.NotNil(t, got.ProcessedAt)
	require.Len(t, got.WorkflowLog, 2)
	assert.Equal(t, "EXTRACT", got.WorkflowLog[0].Action)
	assert.Equal(t, "PROCESS", got.WorkflowLog[1].Action)

	m.repo.AssertNumberOfCalls(t, "UpdateAtomic", 2)
	m.extractor.AssertExpectations(t)
	m.lookup.AssertExpectations(t)
}

func TestProcess_MissingPOIsADiscrepancyNotAFailure(t *testing.T) {
	p, m := newTestPipeline(t, locker.Noop{})
	inv := &model.Invoice{ID: "inv-1", Status: model.StatusReceived, PONumber: "PO-9999", DocumentKey: "invoices/doc.pdf"}
	expectUpdates(m.repo, inv)

	m.extractor.On("Extract", mock.Anything, "invoices/doc.pdf").Return(extractedFields(), nil)
	m.lookup.On("GetPurchaseOrder", mock.Anything, "PO-9999").Return(nil, nil)
	m.lookup.On("GetGoodsReceipt", mock.Anything, "PO-9999").Return(nil, nil)

	got, err := p.Process(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, model.StatusMatchDiscrepancy, got.Status)
	require.NotNil(t, got.Match)
	require.Len(t, got.Match.Discrepancies, 1)
	assert.Contains(t, got.Match.Discrepancies[0], "PO PO-9999 not found")
	m.lookup.AssertNotCalled(t, "GetAnnexure", mock.Anything, mock.Anything)
}

func TestProcess_ExtractionFailure(t *testing.T) {
	p, m := newTestPipeline(t, locker.Noop{})
	inv := &model.Invoice{ID: "inv-1", Status: model.StatusReceived, PONumber: "PO-1001", DocumentKey: "invoices/doc.pdf"}
	expectUpdates(m.repo, inv)

	m.extractor.On("Extract", mock.Anything, "invoices/doc.pdf").
		Return(nil, errors.New("ocr service unavailable"))

	got, err := p.Process(context.Background(), "inv-1")
	require.NoError(t, err, "an extraction failure completes the run, it does not abort it")

	assert.Equal(t, model.StatusValidationRequired, got.Status)
	require.NotNil(t, got.Validation)
	require.Len(t, got.Validation.Errors, 1)
	assert.Contains(t, got.Validation.Errors[0], "document extraction failed")
	require.NotNil(t, got.Match)
	assert.Contains(t, got.Match.Discrepancies[0], "ERROR")
	m.lookup.AssertNotCalled(t, "GetPurchaseOrder", mock.Anything, mock.Anything)
}

func TestProcess_LookupFailure(t *testing.T) {
	p, m := newTestPipeline(t, locker.Noop{})
	inv := &model.Invoice{ID: "inv-1", Status: model.StatusReceived, PONumber: "PO-1001", DocumentKey: "invoices/doc.pdf"}
	expectUpdates(m.repo, inv)

	m.extractor.On("Extract", mock.Anything, "invoices/doc.pdf").Return(extractedFields(), nil)
	m.lookup.On("GetPurchaseOrder", mock.Anything, "PO-1001").Return(nil, errors.New("connection refused"))
	m.lookup.On("GetGoodsReceipt", mock.Anything, "PO-1001").Return(&model.GoodsReceipt{ID: "gr-1"}, nil)

	got, err := p.Process(context.Background(), "inv-1")
	require.NoError(t, err)

	// Validation still reflects the extracted data; only the match is aborted.
	assert.Equal(t, model.StatusMatchDiscrepancy, got.Status)
	assert.True(t, got.Validation.IsValid)
	require.Len(t, got.Match.Discrepancies, 1)
	assert.Contains(t, got.Match.Discrepancies[0], "ERROR")
	assert.Contains(t, got.Match.Discrepancies[0], "purchase order lookup")
}

func TestProcess_LockNotObtained(t *testing.T) {
	p, m := newTestPipeline(t, failLocker{})

	got, err := p.Process(context.Background(), "inv-1")

	assert.ErrorIs(t, err, locker.ErrNotObtained)
	assert.Nil(t, got)
	m.repo.AssertNotCalled(t, "UpdateAtomic", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_WrongStartingState(t *testing.T) {
	p, m := newTestPipeline(t, locker.Noop{})
	inv := &model.Invoice{ID: "inv-1", Status: model.StatusPaid}
	m.repo.On("UpdateAtomic", mock.Anything, "inv-1", mock.Anything).
		Run(func(args mock.Arguments) {
			fn := args.Get(2).(func(*model.Invoice) error)
			_ = fn(inv)
		}).
		Return(nil, workflow.ErrInvalidTransition)

	got, err := p.Process(context.Background(), "inv-1")

	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Nil(t, got)
	m.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestTimeoutsWithDefaults(t *testing.T) {
	got := Timeouts{}.withDefaults()

	assert.Equal(t, defaultExtractionTimeout, got.Extraction)
	assert.Equal(t, defaultLookupTimeout, got.Lookup)
	assert.Equal(t, defaultLockTTL, got.LockTTL)

	custom := Timeouts{Extraction: time.Second, Lookup: time.Second, LockTTL: time.Second}.withDefaults()
	assert.Equal(t, time.Second, custom.Extraction)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "invoice-lock:inv-1", LockKey("inv-1"))
}
