package objects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/dbx"
	"github.com/dmitrijs2005/docsync/internal/server/migrations"
	"github.com/dmitrijs2005/docsync/internal/server/models"
	"github.com/pressly/goose/v3"
)

// Dialect selects placeholder syntax and migrations.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// SQLRepository implements Repository over database/sql. The same queries
// serve postgres (pgx) and sqlite.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// putAttempts bounds the retries of a PutObjects batch that hits a busy
// or serialization failure.
const putAttempts = 3

// PutObjects inserts objs in one transaction.
func (r *SQLRepository) PutObjects(ctx context.Context, objs ...models.Object) error {
	query := r.rebind(`INSERT INTO objects (sha, kind, data) VALUES (?, ?, ?) ON CONFLICT (sha) DO NOTHING`)
	return dbx.WithRetryTx(ctx, r.db, putAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		for _, o := range objs {
			data := o.Data
			if data == nil {
				data = []byte{}
			}
			if _, err := tx.ExecContext(ctx, query, o.SHA, string(o.Kind), data); err != nil {
				return fmt.Errorf("insert object %s: %w", o.SHA, err)
			}
		}
		return nil
	})
}

func (r *SQLRepository) GetObject(ctx context.Context, sha string) (models.Object, error) {
	var (
		kind string
		data []byte
	)
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT kind, data FROM objects WHERE sha = ?`), sha).Scan(&kind, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Object{}, common.ErrObjectNotFound
	}
	if err != nil {
		return models.Object{}, fmt.Errorf("select object %s: %w", sha, err)
	}
	return models.Object{SHA: sha, Kind: models.ObjectKind(kind), Data: data}, nil
}

func (r *SQLRepository) GetHead(ctx context.Context, ref string) (string, error) {
	var sha string
	err := r.db.QueryRowContext(ctx, r.rebind(`SELECT sha FROM refs WHERE name = ?`), ref).Scan(&sha)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrObjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select ref %s: %w", ref, err)
	}
	return sha, nil
}

// SwapHead relies on the row count of a conditional statement, so two
// concurrent swaps from the same old value cannot both succeed.
func (r *SQLRepository) SwapHead(ctx context.Context, ref, old, new string) error {
	var (
		res sql.Result
		err error
	)
	if old == "" {
		res, err = r.db.ExecContext(ctx,
			r.rebind(`INSERT INTO refs (name, sha) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`), ref, new)
	} else {
		res, err = r.db.ExecContext(ctx,
			r.rebind(`UPDATE refs SET sha = ?, version = version + 1 WHERE name = ? AND sha = ?`), new, ref, old)
	}
	if err != nil {
		return fmt.Errorf("swap ref %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrVersionConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

var gooseMu sync.Mutex

// Migrate applies the embedded migrations for dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(goose.NopLogger())

	gooseDialect := "sqlite3"
	if dialect == DialectPostgres {
		gooseDialect = "postgres"
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, string(dialect))
}
