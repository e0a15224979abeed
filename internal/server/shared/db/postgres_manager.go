package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLRepositoryManager serves both SQL backends; only the driver and the
// dialect differ.
type SQLRepositoryManager struct {
	db      *sql.DB
	dialect objects.Dialect
	objects objects.Repository
}

func (m *SQLRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *SQLRepositoryManager) Objects() objects.Repository {
	return m.objects
}

func (m *SQLRepositoryManager) RunMigrations(ctx context.Context) error {
	return objects.Migrate(ctx, m.db, m.dialect)
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}

func NewPostgresRepositoryManager(ctx context.Context, dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return newSQLRepositoryManager(ctx, db, objects.DialectPostgres)
}

func newSQLRepositoryManager(ctx context.Context, db *sql.DB, dialect objects.Dialect) (RepositoryManager, error) {
	m := &SQLRepositoryManager{
		db:      db,
		dialect: dialect,
		objects: objects.NewSQLRepository(db, dialect),
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
