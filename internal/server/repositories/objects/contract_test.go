package objects

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func newSQLiteRepo(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "store.db")+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db, DialectSQLite))
	return NewSQLRepository(db, DialectSQLite)
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": newSQLiteRepo(t),
	}
}

func TestRepository_Objects(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			empty := models.NewObject(models.KindBlob, nil)
			doc := models.NewObject(models.KindBlob, []byte(`[{"id":"a"}]`))

			require.NoError(t, repo.PutObjects(ctx, empty, doc))
			require.NoError(t, repo.PutObjects(ctx, doc), "storing twice is a no-op")

			got, err := repo.GetObject(ctx, doc.SHA)
			require.NoError(t, err)
			assert.Equal(t, models.KindBlob, got.Kind)
			assert.Equal(t, doc.Data, got.Data)

			got, err = repo.GetObject(ctx, empty.SHA)
			require.NoError(t, err)
			assert.Empty(t, got.Data)

			_, err = repo.GetObject(ctx, "0000")
			assert.ErrorIs(t, err, common.ErrObjectNotFound)
		})
	}
}

func TestRepository_SwapHead(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref := models.BranchRef("main")

			_, err := repo.GetHead(ctx, ref)
			assert.ErrorIs(t, err, common.ErrObjectNotFound)

			require.NoError(t, repo.SwapHead(ctx, ref, "", "c1"))
			assert.ErrorIs(t, repo.SwapHead(ctx, ref, "", "c1"), common.ErrVersionConflict)

			require.NoError(t, repo.SwapHead(ctx, ref, "c1", "c2"))
			assert.ErrorIs(t, repo.SwapHead(ctx, ref, "c1", "c3"), common.ErrVersionConflict)

			head, err := repo.GetHead(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, "c2", head)

			assert.ErrorIs(t, repo.SwapHead(ctx, models.BranchRef("other"), "c2", "c3"), common.ErrVersionConflict)
		})
	}
}

func TestRepository_SwapHeadRace(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ref := models.BranchRef("main")
			require.NoError(t, repo.SwapHead(ctx, ref, "", "base"))

			const writers = 8
			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				won []string
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					next := string(rune('a' + i))
					if err := repo.SwapHead(ctx, ref, "base", next); err == nil {
						mu.Lock()
						won = append(won, next)
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()

			require.Len(t, won, 1, "exactly one swap from the same head may win")
			head, err := repo.GetHead(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, won[0], head)
		})
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	repo := newSQLiteRepo(t)
	require.NoError(t, Migrate(context.Background(), repo.db, DialectSQLite))
}
