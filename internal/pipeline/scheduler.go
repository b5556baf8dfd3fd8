package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// runTimeout bounds one complete pipeline run end to end.
const runTimeout = 5 * time.Minute

// Runner schedules pipeline runs as independent goroutines. Each invoice is
// its own unit of work; a failed run only marks that one invoice.
type Runner struct {
	pipeline *Pipeline
	logger   *logrus.Logger
}

// NewRunner builds a Runner around the pipeline.
func NewRunner(p *Pipeline, logger *logrus.Logger) *Runner {
	return &Runner{pipeline: p, logger: logger}
}

// Schedule starts processing the invoice in the background and returns
// immediately.
func (r *Runner) Schedule(invoiceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := r.pipeline.Process(ctx, invoiceID); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"component":  "pipeline",
				"invoice_id": invoiceID,
			}).Error("pipeline run failed")
		}
	}()
}
