package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
)

type RepositoryManager interface {
	RunMigrations(context.Context) error
	Conn() *sql.DB
	Objects() objects.Repository
	Close() error
}

// Backends accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Open builds the manager for backend and applies migrations.
func Open(ctx context.Context, backend, dsn string) (RepositoryManager, error) {
	switch backend {
	case BackendMemory, "":
		return NewInMemoryRepositoryManager(), nil
	case BackendPostgres:
		return NewPostgresRepositoryManager(ctx, dsn)
	case BackendSQLite:
		return NewSQLiteRepositoryManager(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
