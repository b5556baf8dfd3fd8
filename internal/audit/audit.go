package audit

import "context"

// Sink receives one record per successful state mutation. Records are
// append-only.
type Sink interface {
	Append(ctx context.Context, invoiceID, action, actor, details string) error
}

// Noop discards audit records; useful in tests.
type Noop struct{}

func (Noop) Append(ctx context.Context, invoiceID, action, actor, details string) error {
	return nil
}
