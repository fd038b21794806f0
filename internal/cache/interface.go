package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// GroupCache holds the group list between registry writes. Any write to the
// registry must call Invalidate.
type GroupCache interface {
	// Groups returns ErrCacheMiss when nothing is cached.
	Groups(ctx context.Context) ([]domain.Group, error)
	StoreGroups(ctx context.Context, groups []domain.Group, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}
