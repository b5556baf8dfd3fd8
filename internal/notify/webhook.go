package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"apflow/internal/model"
)

// Endpoints maps each recipient group to its webhook URL. Empty URLs
// disable delivery for that group (the event is still logged).
type Endpoints struct {
	Approver string
	Vendor   string
	Finance  string
}

// WebhookDispatcher posts JSON notifications to per-recipient webhooks.
// Failures are logged and swallowed; notification delivery never gates a
// workflow transition.
type WebhookDispatcher struct {
	endpoints Endpoints
	client    *http.Client
	logger    *logrus.Logger
}

// NewWebhookDispatcher builds a dispatcher with an instrumented HTTP client
// and the given delivery timeout.
func NewWebhookDispatcher(endpoints Endpoints, timeout time.Duration, logger *logrus.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		endpoints: endpoints,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

var _ Dispatcher = (*WebhookDispatcher)(nil)

func (d *WebhookDispatcher) Notify(ctx context.Context, inv *model.Invoice, newStatus model.Status) {
	recipient := RouteForStatus(newStatus)
	payload := map[string]any{
		"event":      "invoice_status_changed",
		"invoice_id": inv.ID,
		"po_number":  inv.PONumber,
		"status":     newStatus,
		"recipient":  recipient,
	}
	d.post(ctx, recipient, payload)
}

func (d *WebhookDispatcher) Remind(ctx context.Context, alert StaleAlert) {
	payload := map[string]any{
		"event": "invoice_stale",
		"alert": alert,
	}
	d.post(ctx, RecipientApprover, payload)
}

func (d *WebhookDispatcher) post(ctx context.Context, recipient Recipient, payload map[string]any) {
	url := d.urlFor(recipient)
	log := d.logger.WithFields(logrus.Fields{
		"component": "notify",
		"recipient": recipient,
		"event":     payload["event"],
	})
	if url == "" {
		log.Debug("no webhook configured; notification dropped")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("could not encode notification")
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Warn("could not build notification request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("notification delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Warn("notification rejected by receiver")
		return
	}
	log.Info("notification delivered")
}

func (d *WebhookDispatcher) urlFor(r Recipient) string {
	switch r {
	case RecipientApprover:
		return d.endpoints.Approver
	case RecipientVendor:
		return d.endpoints.Vendor
	default:
		return d.endpoints.Finance
	}
}
