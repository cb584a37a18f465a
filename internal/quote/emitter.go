package quote

import (
	"context"

	"travel-inquiry-agent/internal/model"
)

// Emitter hands a freshly extracted inquiry to quote generation. Emission
// must be durable before it returns: once Emit succeeds the pipeline marks
// the source message processed, so a lost emission would never be retried.
type Emitter interface {
	Emit(ctx context.Context, inquiry *model.TravelInquiry) (*model.QuoteDocument, error)
}
