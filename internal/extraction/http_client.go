package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"apflow/internal/model"
	"apflow/internal/storage"
)

// presignExpiry bounds how long the OCR service can fetch the document.
const presignExpiry = 15 * time.Minute

// HTTPExtractor calls an external OCR/extraction service over HTTP. The
// stored document is handed over as a pre-signed object-storage URL so the
// document bytes never pass through this process.
type HTTPExtractor struct {
	endpoint string
	store    storage.Storage
	client   *http.Client
}

// NewHTTPExtractor builds an extractor that posts to the given endpoint.
func NewHTTPExtractor(endpoint string, store storage.Storage) *HTTPExtractor {
	return &HTTPExtractor{
		endpoint: endpoint,
		store:    store,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

var _ Extractor = (*HTTPExtractor)(nil)

type extractRequest struct {
	DocumentURL string `json:"document_url"`
}

// Extract posts the document reference and decodes the structured fields.
func (e *HTTPExtractor) Extract(ctx context.Context, documentRef string) (*model.ExtractedFields, error) {
	url, err := e.store.PresignGet(ctx, documentRef, presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign document: %w", err)
	}

	body, err := json.Marshal(extractRequest{DocumentURL: url})
	if err != nil {
		return nil, fmt.Errorf("encode extraction request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction service returned status %d", resp.StatusCode)
	}

	var fields model.ExtractedFields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return &fields, nil
}
