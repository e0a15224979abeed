package objects

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/server/models"
)

// MemoryRepository keeps everything in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	objects map[string]models.Object
	refs    map[string]string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		objects: make(map[string]models.Object),
		refs:    make(map[string]string),
	}
}

func (r *MemoryRepository) PutObjects(ctx context.Context, objs ...models.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range objs {
		if _, ok := r.objects[o.SHA]; ok {
			continue
		}
		o.Data = append([]byte(nil), o.Data...)
		r.objects[o.SHA] = o
	}
	return nil
}

func (r *MemoryRepository) GetObject(ctx context.Context, sha string) (models.Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[sha]
	if !ok {
		return models.Object{}, common.ErrObjectNotFound
	}
	o.Data = append([]byte(nil), o.Data...)
	return o, nil
}

func (r *MemoryRepository) GetHead(ctx context.Context, ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sha, ok := r.refs[ref]
	if !ok {
		return "", common.ErrObjectNotFound
	}
	return sha, nil
}

func (r *MemoryRepository) SwapHead(ctx context.Context, ref, old, new string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.refs[ref]
	if old == "" {
		if ok {
			return common.ErrVersionConflict
		}
	} else if !ok || cur != old {
		return common.ErrVersionConflict
	}
	r.refs[ref] = new
	return nil
}
