package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/weiawesome/wes-io-groupchat/internal/audit"
	"github.com/weiawesome/wes-io-groupchat/internal/cache"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/exchange"
	"github.com/weiawesome/wes-io-groupchat/internal/repository"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

const maxGroupNameLen = 200

// ValidateGroupName rejects empty, oversized or control-character names.
func ValidateGroupName(name string) error {
	if name == "" || name != strings.TrimSpace(name) || len(name) > maxGroupNameLen {
		return ErrInvalidGroupName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return ErrInvalidGroupName
		}
	}
	return nil
}

type groupService struct {
	groups   repository.GroupRepository
	exchange exchange.Manager
	cache    cache.GroupCache // optional
	cacheTTL time.Duration

	// Serialises create/delete so the existence check and the broker call
	// see a consistent list.
	mu sync.Mutex
}

func NewGroupService(groups repository.GroupRepository, ex exchange.Manager, c cache.GroupCache, cacheTTL time.Duration) GroupService {
	return &groupService{
		groups:   groups,
		exchange: ex,
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

func (s *groupService) List(ctx context.Context) ([]domain.Group, error) {
	l := log.Ctx(ctx)

	if s.cache != nil {
		cached, err := s.cache.Groups(ctx)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Msg("group cache read failed")
		}
	}

	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.StoreGroups(ctx, groups, s.cacheTTL); err != nil {
			l.Warn().Err(err).Msg("group cache write failed")
		}
	}
	return groups, nil
}

func (s *groupService) Exists(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	groups, err := s.groups.List(ctx)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Create provisions the broadcast channel first and then lists the group.
// If listing fails the channel is torn down again.
func (s *groupService) Create(ctx context.Context, actor, name string) error {
	l := log.Ctx(ctx).With().Str(log.FieldGroup, name).Logger()

	if err := ValidateGroupName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return ErrGroupExists
	}

	if err := s.exchange.CreateBroadcastChannel(ctx, name); err != nil {
		l.Error().Err(err).Msg("failed to create broadcast channel")
		return fmt.Errorf("create broadcast channel: %w", err)
	}

	if err := s.groups.Add(ctx, name); err != nil {
		if cerr := s.exchange.DestroyBroadcastChannel(context.WithoutCancel(ctx), name); cerr != nil {
			l.Error().Err(cerr).Msg("failed to roll back broadcast channel")
		}
		return fmt.Errorf("store group: %w", err)
	}

	s.invalidate(ctx)
	audit.LogWithTarget(ctx, audit.ActionCreateGroup, actor, name, "group created")
	return nil
}

// Delete tears the broadcast channel down first; the group stays listed if
// that fails.
func (s *groupService) Delete(ctx context.Context, actor, name string) error {
	l := log.Ctx(ctx).With().Str(log.FieldGroup, name).Logger()

	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.Exists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return ErrGroupNotFound
	}

	if err := s.exchange.DestroyBroadcastChannel(ctx, name); err != nil {
		l.Error().Err(err).Msg("failed to destroy broadcast channel")
		return fmt.Errorf("destroy broadcast channel: %w", err)
	}

	removed, err := s.groups.Remove(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return ErrGroupNotFound
		}
		return fmt.Errorf("remove group: %w", err)
	}

	s.invalidate(ctx)
	audit.LogWithDetail(ctx, audit.ActionDeleteGroup, actor, fmt.Sprintf("%s (%d entries)", name, removed), "group deleted")
	return nil
}

func (s *groupService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("group cache invalidation failed")
	}
}
