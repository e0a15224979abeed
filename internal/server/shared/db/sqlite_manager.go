package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
	_ "modernc.org/sqlite"
)

// NewSQLiteRepositoryManager opens the sqlite database file at dsn. Writes
// are serialized over a single connection.
func NewSQLiteRepositoryManager(ctx context.Context, dsn string) (RepositoryManager, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLRepositoryManager(ctx, db, objects.DialectSQLite)
}
