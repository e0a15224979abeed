package db

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docsync/internal/server/repositories/objects"
)

type InMemoryRepositoryManager struct {
	objects objects.Repository
}

func (m InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m InMemoryRepositoryManager) Objects() objects.Repository {
	return m.objects
}

func (m InMemoryRepositoryManager) Close() error {
	return nil
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return InMemoryRepositoryManager{objects: objects.NewMemoryRepository()}
}
