package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-groupchat/internal/cache"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange/exchangetest"
	"github.com/weiawesome/wes-io-groupchat/internal/repository"
)

type memoryCache struct {
	mu     sync.Mutex
	groups []domain.Group
	cached bool
	hits   int
}

func newMemoryCache() *memoryCache { return &memoryCache{} }

func (c *memoryCache) Groups(ctx context.Context) ([]domain.Group, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cached {
		return nil, cache.ErrCacheMiss
	}
	c.hits++
	return append([]domain.Group(nil), c.groups...), nil
}

func (c *memoryCache) StoreGroups(ctx context.Context, groups []domain.Group, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = append([]domain.Group(nil), groups...)
	c.cached = true
	return nil
}

func (c *memoryCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups, c.cached = nil, false
	return nil
}

// failingGroups lists from an inner repository but refuses to add.
type failingGroups struct {
	repository.GroupRepository
}

func (failingGroups) Add(ctx context.Context, name string) error {
	return errors.New("disk full")
}

func newGroups(t *testing.T) repository.GroupRepository {
	t.Helper()
	store, key, err := repository.NewLocalDocumentStore(filepath.Join(t.TempDir(), "groups.json"))
	require.NoError(t, err)
	groups, err := repository.NewFileGroupRepository(context.Background(), store, key)
	require.NoError(t, err)
	return groups
}

func names(groups []domain.Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Name)
	}
	return out
}

func TestCreateAndDeleteGroup(t *testing.T) {
	ctx := context.Background()
	rec := exchangetest.NewRecorder()
	svc := NewGroupService(newGroups(t), rec, nil, 0)

	require.NoError(t, svc.Create(ctx, "alice", "rust"))
	require.NoError(t, svc.Create(ctx, "alice", "go"))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust", "go"}, names(list))
	assert.True(t, rec.Live("rust"))
	assert.True(t, rec.Live("go"))

	require.NoError(t, svc.Delete(ctx, "alice", "rust"))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, names(list))
	assert.Equal(t, []string{"rust"}, rec.Destroyed())
	assert.False(t, rec.Live("rust"))

	assert.ErrorIs(t, svc.Delete(ctx, "alice", "rust"), ErrGroupNotFound)
	assert.Equal(t, []string{"rust"}, rec.Destroyed())
}

func TestCreateGroupRejections(t *testing.T) {
	ctx := context.Background()
	rec := exchangetest.NewRecorder()
	svc := NewGroupService(newGroups(t), rec, nil, 0)
	require.NoError(t, svc.Create(ctx, "alice", "go"))

	assert.ErrorIs(t, svc.Create(ctx, "bob", "go"), ErrGroupExists)
	assert.ErrorIs(t, svc.Create(ctx, "bob", ""), ErrInvalidGroupName)
	assert.ErrorIs(t, svc.Create(ctx, "bob", " padded "), ErrInvalidGroupName)
	assert.ErrorIs(t, svc.Create(ctx, "bob", "tab\there"), ErrInvalidGroupName)

	assert.Equal(t, []string{"go"}, rec.Created())
}

func TestCreateGroupBrokerFailure(t *testing.T) {
	ctx := context.Background()
	rec := exchangetest.NewRecorder()
	rec.CreateErr = errors.New("connection refused")
	svc := NewGroupService(newGroups(t), rec, nil, 0)

	err := svc.Create(ctx, "alice", "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, rec.CreateErr)

	exists, err := svc.Exists(ctx, "go")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateGroupRollsBackChannel(t *testing.T) {
	ctx := context.Background()
	rec := exchangetest.NewRecorder()
	svc := NewGroupService(failingGroups{newGroups(t)}, rec, nil, 0)

	require.Error(t, svc.Create(ctx, "alice", "go"))
	assert.Equal(t, []string{"go"}, rec.Created())
	assert.Equal(t, []string{"go"}, rec.Destroyed())
	assert.False(t, rec.Live("go"))
}

func TestDeleteGroupBrokerFailureKeepsGroup(t *testing.T) {
	ctx := context.Background()
	rec := exchangetest.NewRecorder()
	svc := NewGroupService(newGroups(t), rec, nil, 0)
	require.NoError(t, svc.Create(ctx, "alice", "go"))

	rec.DestroyErr = errors.New("connection refused")
	require.Error(t, svc.Delete(ctx, "alice", "go"))

	exists, err := svc.Exists(ctx, "go")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeleteRemovesDuplicates(t *testing.T) {
	ctx := context.Background()
	groups := newGroups(t)
	require.NoError(t, groups.Add(ctx, "go"))
	require.NoError(t, groups.Add(ctx, "go"))
	require.NoError(t, groups.Add(ctx, "rust"))

	rec := exchangetest.NewRecorder()
	svc := NewGroupService(groups, rec, nil, 0)
	require.NoError(t, svc.Delete(ctx, "alice", "go"))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, names(list))
	assert.Equal(t, []string{"go"}, rec.Destroyed())
}

func TestGroupListCache(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCache()
	svc := NewGroupService(newGroups(t), exchangetest.NewRecorder(), c, time.Minute)
	require.NoError(t, svc.Create(ctx, "alice", "go"))

	first, err := svc.List(ctx)
	require.NoError(t, err)
	second, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.hits)

	require.NoError(t, svc.Create(ctx, "alice", "rust"))
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rust"}, names(list))

	require.NoError(t, svc.Delete(ctx, "alice", "go"))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, names(list))
}
