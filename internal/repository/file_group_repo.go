package repository

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/storage"
)

// FileGroupRepository keeps groups as one JSON array [{"name": ...}, ...]
// in insertion order and rewrites it on every mutation.
type FileGroupRepository struct {
	doc    document
	mu     sync.RWMutex
	groups []domain.Group
}

// NewFileGroupRepository loads the group document stored under key.
func NewFileGroupRepository(ctx context.Context, store storage.Storage, key string) (*FileGroupRepository, error) {
	r := &FileGroupRepository{doc: document{store: store, key: key}}
	if err := r.doc.load(ctx, &r.groups); err != nil {
		return nil, err
	}
	l := log.Ctx(ctx)
	l.Debug().Int("groups", len(r.groups)).Str("key", key).Msg("groups loaded")
	return r, nil
}

func (r *FileGroupRepository) List(ctx context.Context) ([]domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Group, len(r.groups))
	copy(out, r.groups)
	return out, nil
}

func (r *FileGroupRepository) Add(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := append(append([]domain.Group(nil), r.groups...), domain.Group{Name: name})
	if err := r.doc.save(ctx, next); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGroup, name).Msg("failed to persist groups")
		return err
	}
	r.groups = next
	return nil
}

func (r *FileGroupRepository) Remove(ctx context.Context, name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]domain.Group, 0, len(r.groups))
	for _, g := range r.groups {
		if g.Name != name {
			next = append(next, g)
		}
	}
	removed := len(r.groups) - len(next)
	if removed == 0 {
		return 0, ErrGroupNotFound
	}

	if err := r.doc.save(ctx, next); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldGroup, name).Msg("failed to persist groups")
		return 0, err
	}
	r.groups = next
	return removed, nil
}
