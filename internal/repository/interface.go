package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")
)

// UserRepository stores username → password digest.
// Put overwrites an existing user; Delete of a missing user is a no-op.
type UserRepository interface {
	Get(ctx context.Context, username string) (*domain.User, error)
	Put(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, username string) error
}

// GroupRepository is an ordered, non-deduplicated list of groups.
// Remove deletes every entry with the given name and reports how many went.
type GroupRepository interface {
	List(ctx context.Context) ([]domain.Group, error)
	Add(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) (int, error)
}
