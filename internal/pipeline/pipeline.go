package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"apflow/internal/audit"
	"apflow/internal/extraction"
	"apflow/internal/locker"
	"apflow/internal/model"
	"apflow/internal/notify"
	"apflow/internal/reconcile"
	"apflow/internal/refdata"
	"apflow/internal/repository"
	"apflow/internal/validation"
	"apflow/internal/workflow"
)

// Timeouts bound the external calls a pipeline run makes. Zero values fall
// back to the defaults below.
type Timeouts struct {
	Extraction time.Duration
	Lookup     time.Duration
	LockTTL    time.Duration
}

const (
	defaultExtractionTimeout = 30 * time.Second
	defaultLookupTimeout     = 5 * time.Second
	defaultLockTTL           = 2 * time.Minute
)

func (t Timeouts) withDefaults() Timeouts {
	if t.Extraction <= 0 {
		t.Extraction = defaultExtractionTimeout
	}
	if t.Lookup <= 0 {
		t.Lookup = defaultLookupTimeout
	}
	if t.LockTTL <= 0 {
		t.LockTTL = defaultLockTTL
	}
	return t
}

// Pipeline drives one invoice through extraction, validation, three-way
// matching and the completion transition. Each invoice is processed as an
// independent unit of work; a failure in one run never affects another
// invoice.
type Pipeline struct {
	repo      repository.InvoiceRepository
	lookup    refdata.Lookup
	extractor extraction.Extractor
	validator *validation.Validator
	engine    *reconcile.Engine
	machine   *workflow.Machine
	notifier  notify.Dispatcher
	auditor   audit.Sink
	locks     locker.Locker
	logger    *logrus.Logger
	timeouts  Timeouts

	outcomes *prometheus.CounterVec
}

// New wires a Pipeline. reg may be nil to skip metric registration.
func New(
	repo repository.InvoiceRepository,
	lookup refdata.Lookup,
	extractor extraction.Extractor,
	validator *validation.Validator,
	engine *reconcile.Engine,
	machine *workflow.Machine,
	notifier notify.Dispatcher,
	auditor audit.Sink,
	locks locker.Locker,
	logger *logrus.Logger,
	timeouts Timeouts,
	reg prometheus.Registerer,
) *Pipeline {
	p := &Pipeline{
		repo:      repo,
		lookup:    lookup,
		extractor: extractor,
		validator: validator,
		engine:    engine,
		machine:   machine,
		notifier:  notifier,
		auditor:   auditor,
		locks:     locks,
		logger:    logger,
		timeouts:  timeouts.withDefaults(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoice_pipeline_outcomes_total",
				Help: "Pipeline completions by resulting invoice status.",
			},
			[]string{"status"},
		),
	}
	if reg != nil {
		if err := reg.Register(p.outcomes); err != nil {
			logger.WithError(err).Warn("pipeline metrics already registered")
		}
	}
	return p
}

// LockKey is the per-invoice serialization key shared with workflow actions.
func LockKey(invoiceID string) string {
	return "invoice-lock:" + invoiceID
}

// Process runs the full pipeline for one invoice. The invoice must be in
// Received state. The per-invoice lock is held for the whole run so a
// concurrent workflow action cannot interleave with the completion
// transition.
func (p *Pipeline) Process(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	log := p.logger.WithFields(logrus.Fields{
		"component":  "pipeline",
		"invoice_id": invoiceID,
	})

	lock, err := p.locks.Obtain(ctx, LockKey(invoiceID), p.timeouts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("serialize pipeline run: %w", err)
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			log.WithError(relErr).Warn("could not release invoice lock")
		}
	}()

	now := time.Now().UTC()
	inv, err := p.repo.UpdateAtomic(ctx, invoiceID, func(inv *model.Invoice) error {
		return p.machine.Begin(inv, now)
	})
	if err != nil {
		return nil, fmt.Errorf("enter digitizing: %w", err)
	}
	p.record(ctx, inv, "EXTRACT", "document extraction started")

	fields, valRes, matchRes := p.reconcileInvoice(ctx, inv, log)

	completedAt := time.Now().UTC()
	inv, err = p.repo.UpdateAtomic(ctx, invoiceID, func(inv *model.Invoice) error {
		inv.Extracted = fields
		return p.machine.Complete(inv, valRes, matchRes, completedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("complete pipeline: %w", err)
	}

	p.outcomes.WithLabelValues(string(inv.Status)).Inc()
	p.record(ctx, inv, "PROCESS", fmt.Sprintf("pipeline completed with status %s", inv.Status))
	log.WithField("status", inv.Status).Info("pipeline completed")
	return inv, nil
}

// reconcileInvoice performs the external-facing middle of the run:
// extraction, validation and the three-way match. It never returns an
// error; failures resolve to ERROR-category results per the propagation
// policy.
func (p *Pipeline) reconcileInvoice(ctx context.Context, inv *model.Invoice, log *logrus.Entry) (*model.ExtractedFields, model.ValidationResult, model.MatchResult) {
	exCtx, cancel := context.WithTimeout(ctx, p.timeouts.Extraction)
	defer cancel()

	fields, err := p.extractor.Extract(exCtx, inv.DocumentKey)
	if err != nil {
		log.WithError(err).Error("extraction failed")
		msg := fmt.Errorf("document extraction failed: %w", err)
		return nil, validation.Failure(msg.Error()), reconcile.Failure(msg)
	}

	valRes := p.validator.Validate(fields)

	// The invoice carries the freshly extracted fields into the match.
	scratch := *inv
	scratch.Extracted = fields

	po, gr, err := p.fetchReferences(ctx, inv.PONumber)
	if err != nil {
		log.WithError(err).Error("reference data lookup failed")
		return fields, valRes, reconcile.Failure(err)
	}

	var ax *model.Annexure
	if po != nil {
		axCtx, axCancel := context.WithTimeout(ctx, p.timeouts.Lookup)
		defer axCancel()
		if ax, err = p.lookup.GetAnnexure(axCtx, po.ID); err != nil {
			log.WithError(err).Error("annexure lookup failed")
			return fields, valRes, reconcile.Failure(err)
		}
	}

	return fields, valRes, p.engine.Match(&scratch, po, gr, ax)
}

// fetchReferences issues the PO and GR lookups concurrently and joins them;
// the two reads are independent.
func (p *Pipeline) fetchReferences(ctx context.Context, poNumber string) (*model.PurchaseOrder, *model.GoodsReceipt, error) {
	if poNumber == "" {
		return nil, nil, nil
	}
	lkCtx, cancel := context.WithTimeout(ctx, p.timeouts.Lookup)
	defer cancel()

	var (
		wg    sync.WaitGroup
		po    *model.PurchaseOrder
		gr    *model.GoodsReceipt
		poErr error
		grErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		po, poErr = p.lookup.GetPurchaseOrder(lkCtx, poNumber)
	}()
	go func() {
		defer wg.Done()
		gr, grErr = p.lookup.GetGoodsReceipt(lkCtx, poNumber)
	}()
	wg.Wait()

	if poErr != nil {
		return nil, nil, fmt.Errorf("purchase order lookup: %w", poErr)
	}
	if grErr != nil {
		return nil, nil, fmt.Errorf("goods receipt lookup: %w", grErr)
	}
	return po, gr, nil
}

// record persists the audit trail entry and fires the status notification
// for a transition that has already been committed.
func (p *Pipeline) record(ctx context.Context, inv *model.Invoice, action, details string) {
	if err := p.auditor.Append(ctx, inv.ID, action, "pipeline", details); err != nil {
		p.logger.WithError(err).WithField("invoice_id", inv.ID).Warn("audit append failed")
	}
	status := inv.Status
	snapshot := *inv
	go p.notifier.Notify(context.WithoutCancel(ctx), &snapshot, status)
}
