// Package objects stores the git-like objects and refs of the document
// store. Objects are immutable and keyed by sha; a ref moves only by
// compare-and-swap.
package objects

import (
	"context"

	"github.com/dmitrijs2005/docsync/internal/server/models"
)

type Repository interface {
	// PutObjects stores objs. Storing an object that already exists is a
	// no-op.
	PutObjects(ctx context.Context, objs ...models.Object) error
	// GetObject returns common.ErrObjectNotFound for an unknown sha.
	GetObject(ctx context.Context, sha string) (models.Object, error)
	// GetHead returns the sha ref points at, or common.ErrObjectNotFound.
	GetHead(ctx context.Context, ref string) (string, error)
	// SwapHead moves ref from old to new. An empty old creates the ref.
	// It returns common.ErrVersionConflict when ref is not at old.
	SwapHead(ctx context.Context, ref, old, new string) error
}
