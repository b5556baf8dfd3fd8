package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"apflow/internal/audit"
	"apflow/internal/locker"
	"apflow/internal/model"
	"apflow/internal/notify"
	"apflow/internal/pipeline"
	"apflow/internal/repository"
	"apflow/internal/storage"
	"apflow/internal/workflow"
)

var (
	ErrIDRequired     = errors.New("id is required")
	ErrNotFound       = errors.New("invoice not found")
	ErrReaderNil      = errors.New("reader is nil")
	ErrInvoiceLocked  = errors.New("invoice is being processed, retry shortly")
	ErrActionRequired = errors.New("action is required")
)

// actionLockTTL bounds how long an explicit workflow action may hold the
// per-invoice lock.
const actionLockTTL = 30 * time.Second

// InvoiceListResult is the service-level DTO for paginated invoices.
type InvoiceListResult struct {
	Items []model.Invoice `json:"data"`
	Total int             `json:"total"`
}

// ActionRequest carries an explicit workflow action against an invoice.
type ActionRequest struct {
	Action   model.Action
	Actor    string
	Role     model.Role
	Comments string
}

// Scheduler runs an invoice pipeline asynchronously. Ingestion never blocks
// on pipeline completion.
type Scheduler interface {
	Schedule(invoiceID string)
}

// InvoiceService defines the use cases around invoice intake and workflow.
type InvoiceService interface {
	// Ingest stores the uploaded document, creates the invoice in Received
	// state and schedules its processing pipeline.
	Ingest(ctx context.Context, r io.Reader, originalFilename, contentType string, size int64, poNumber, approver string) (*model.Invoice, error)

	// Get returns a single invoice by its ID.
	Get(ctx context.Context, id string) (*model.Invoice, error)

	// List returns invoices filtered by status with limit/offset paging.
	List(ctx context.Context, status model.Status, limit, offset int) (*InvoiceListResult, error)

	// Act applies an explicit workflow action (APPROVE, REJECT, RESET).
	Act(ctx context.Context, id string, req ActionRequest) (*model.Invoice, error)

	// Reprocess resets the invoice and schedules a fresh pipeline run.
	Reprocess(ctx context.Context, id, actor string, role model.Role) (*model.Invoice, error)
}

type invoiceService struct {
	store     storage.Storage
	repo      repository.InvoiceRepository
	machine   *workflow.Machine
	notifier  notify.Dispatcher
	auditor   audit.Sink
	locks     locker.Locker
	scheduler Scheduler
	logger    *logrus.Logger
}

// NewInvoiceService constructs the invoice service.
func NewInvoiceService(
	store storage.Storage,
	repo repository.InvoiceRepository,
	machine *workflow.Machine,
	notifier notify.Dispatcher,
	auditor audit.Sink,
	locks locker.Locker,
	scheduler Scheduler,
	logger *logrus.Logger,
) InvoiceService {
	return &invoiceService{
		store:     store,
		repo:      repo,
		machine:   machine,
		notifier:  notifier,
		auditor:   auditor,
		locks:     locks,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (s *invoiceService) Ingest(ctx context.Context, r io.Reader, originalFilename, contentType string, size int64, poNumber, approver string) (*model.Invoice, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	ext := filepath.Ext(originalFilename)
	key := filepath.ToSlash(filepath.Join("invoices", uuid.New().String()+ext))

	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": originalFilename,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	now := time.Now().UTC()
	inv := &model.Invoice{
		ID:          uuid.New().String(),
		Status:      model.StatusReceived,
		PONumber:    poNumber,
		Approver:    approver,
		DocumentKey: objInfo.Key,
		ReceivedAt:  now,
		WorkflowLog: []model.WorkflowLogEntry{{
			From:      model.StatusReceived,
			To:        model.StatusReceived,
			Action:    "RECEIVE",
			Actor:     "ingestion",
			Timestamp: now,
		}},
	}

	stored, err := s.repo.Create(ctx, inv)
	if err != nil {
		// Rollback the stored object so DB and storage stay consistent.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	if err := s.auditor.Append(ctx, stored.ID, "RECEIVE", "ingestion", "invoice received"); err != nil {
		s.logger.WithError(err).WithField("invoice_id", stored.ID).Warn("audit append failed")
	}

	// Schedule and return; processing is fully asynchronous.
	s.scheduler.Schedule(stored.ID)
	return stored, nil
}

func (s *invoiceService) Get(ctx context.Context, id string) (*model.Invoice, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	inv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) List(ctx context.Context, status model.Status, limit, offset int) (*InvoiceListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	res, err := s.repo.List(ctx, repository.Filter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &InvoiceListResult{Items: res.Items, Total: res.Total}, nil
}

// Act applies a workflow action under the invoice's lock. The state machine
// validates the transition and authorization before any mutation; a
// rejected action leaves the invoice untouched and appends nothing.
func (s *invoiceService) Act(ctx context.Context, id string, req ActionRequest) (*model.Invoice, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if req.Action == "" {
		return nil, ErrActionRequired
	}

	lock, err := s.locks.Obtain(ctx, pipeline.LockKey(id), actionLockTTL)
	if err != nil {
		if errors.Is(err, locker.ErrNotObtained) {
			return nil, ErrInvoiceLocked
		}
		return nil, err
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logger.WithError(relErr).WithField("invoice_id", id).Warn("could not release invoice lock")
		}
	}()

	actor := workflow.Actor{Name: req.Actor, Role: req.Role}
	now := time.Now().UTC()
	inv, err := s.repo.UpdateAtomic(ctx, id, func(inv *model.Invoice) error {
		return s.machine.Apply(inv, req.Action, actor, req.Comments, now)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := s.auditor.Append(ctx, inv.ID, string(req.Action), req.Actor, req.Comments); err != nil {
		s.logger.WithError(err).WithField("invoice_id", inv.ID).Warn("audit append failed")
	}
	status := inv.Status
	snapshot := *inv
	go s.notifier.Notify(context.WithoutCancel(ctx), &snapshot, status)

	return inv, nil
}

func (s *invoiceService) Reprocess(ctx context.Context, id, actor string, role model.Role) (*model.Invoice, error) {
	inv, err := s.Act(ctx, id, ActionRequest{
		Action:   model.ActionReset,
		Actor:    actor,
		Role:     role,
		Comments: "reprocessing requested",
	})
	if err != nil {
		return nil, err
	}
	s.scheduler.Schedule(inv.ID)
	return inv, nil
}
