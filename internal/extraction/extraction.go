package extraction

import (
	"context"

	"apflow/internal/model"
)

// Extractor converts a stored invoice document into structured fields.
// Implementations may be slow (seconds); callers bound them with a context
// deadline.
type Extractor interface {
	Extract(ctx context.Context, documentRef string) (*model.ExtractedFields, error)
}
