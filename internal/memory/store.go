package memory

import "context"

// Store persists one visitor memory record as a whole.
type Store interface {
	// Load returns the persisted memory, or a fresh empty one when nothing
	// usable is stored. It never fails the caller.
	Load(ctx context.Context, visitorID string) Memory
	// Save serializes the full memory. Last writer wins.
	Save(ctx context.Context, m Memory) error
	// Clear removes the persisted record. Explicit operation only.
	Clear(ctx context.Context, visitorID string) error
	Close() error
}
