package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise the
// single-file blob store.
func NewStore(ctx context.Context, databaseURL, dataDir, filename string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewFileStore(dataDir, filename)
	}
	return NewPostgresStore(ctx, databaseURL)
}
