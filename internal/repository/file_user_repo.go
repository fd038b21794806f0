package repository

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/storage"
)

// FileUserRepository keeps credentials as one JSON object
// {"username": "digest", ...} and rewrites it on every mutation.
type FileUserRepository struct {
	doc   document
	mu    sync.RWMutex
	users map[string]string
}

// NewFileUserRepository loads the credential document stored under key.
func NewFileUserRepository(ctx context.Context, store storage.Storage, key string) (*FileUserRepository, error) {
	r := &FileUserRepository{
		doc:   document{store: store, key: key},
		users: make(map[string]string),
	}
	if err := r.doc.load(ctx, &r.users); err != nil {
		return nil, err
	}
	l := log.Ctx(ctx)
	l.Debug().Int("users", len(r.users)).Str("key", key).Msg("credentials loaded")
	return r, nil
}

func (r *FileUserRepository) Get(ctx context.Context, username string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	digest, ok := r.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &domain.User{Username: username, PasswordDigest: digest}, nil
}

func (r *FileUserRepository) Put(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.users[user.Username]
	r.users[user.Username] = user.PasswordDigest

	if err := r.doc.save(ctx, r.users); err != nil {
		if existed {
			r.users[user.Username] = prev
		} else {
			delete(r.users, user.Username)
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUsername, user.Username).Msg("failed to persist credentials")
		return err
	}
	return nil
}

func (r *FileUserRepository) Delete(ctx context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.users[username]
	if !ok {
		return nil
	}
	delete(r.users, username)

	if err := r.doc.save(ctx, r.users); err != nil {
		r.users[username] = prev
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to persist credentials")
		return err
	}
	return nil
}
