package dedup

import "context"

// Cache records which messages have already been fully processed. Entries
// expire after the configured TTL window, after which a redelivered message
// is processed again as if new.
type Cache interface {
	// IsProcessed reports whether the message id has a live processed mark.
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed records the message id with the cache TTL. The mark is
	// written only after every processing step, including quote emission,
	// has succeeded.
	MarkProcessed(ctx context.Context, messageID string) error
	// Close releases the underlying connection.
	Close() error
}
