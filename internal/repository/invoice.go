package repository

import (
	"context"
	"errors"

	"apflow/internal/model"
)

// ErrNotFound is returned when no invoice exists for the given id.
var ErrNotFound = errors.New("invoice not found")

// ErrConflict is returned when an atomic update could not be applied.
var ErrConflict = errors.New("concurrent update conflict")

// InvoiceRepository defines persistence for invoices. No business logic
// here; strictly storage operations.
type InvoiceRepository interface {
	// Create inserts a new invoice record and returns the stored row.
	Create(ctx context.Context, inv *model.Invoice) (*model.Invoice, error)

	// FindByID returns an invoice by id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Invoice, error)

	// List returns a page of invoices matching the filter plus the total count.
	List(ctx context.Context, f Filter) (*PageResult[model.Invoice], error)

	// ListByStatus returns all invoices currently in one of the given
	// statuses, ordered by received time.
	ListByStatus(ctx context.Context, statuses []model.Status) ([]model.Invoice, error)

	// UpdateAtomic loads the invoice under a row lock, applies fn, and
	// persists the mutated invoice in the same transaction. fn returning an
	// error aborts the update and the invoice is left unchanged.
	UpdateAtomic(ctx context.Context, id string, fn func(inv *model.Invoice) error) (*model.Invoice, error)
}

// Filter restricts List output.
type Filter struct {
	Status model.Status
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
