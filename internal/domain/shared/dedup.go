package shared

import (
	"context"
	"time"
)

// DedupStore records provider-issued event identifiers so that redelivered
// webhooks are applied at most once. Channel providers are allowed to deliver
// the same call leg or message more than once; the gateway must not
// double-charge quota or double-advance session state when they do.
type DedupStore interface {
	// MarkProcessed atomically records the event ID with a TTL.
	// Returns true if the ID was newly recorded, false if it was already seen.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether the event ID has already been recorded.
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// Forget removes a recorded event ID so a provider retry can be
	// accepted after the first delivery failed mid-processing.
	Forget(ctx context.Context, eventID string) error

	// Close releases any resources held by the store.
	Close() error
}
