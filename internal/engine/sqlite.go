package engine

import (
	"context"

	"github.com/quillnote/core/internal/store"
	"github.com/quillnote/core/internal/store/sqlitestore"
)

// openSQLite is the default persistence factory.
func openSQLite(ctx context.Context, path string) (store.Persistence, error) {
	return sqlitestore.Open(ctx, path)
}
