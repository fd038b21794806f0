package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/hub"
	"github.com/weiawesome/wes-io-groupchat/pkg/pubsub"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordRequired   = errors.New("password is required")
	ErrPasswordTooLong    = errors.New("password is too long")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrUsernameTaken      = errors.New("username already registered")
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupExists        = errors.New("group already exists")
	ErrInvalidGroupName   = errors.New("invalid group name")
	ErrInvalidRoom        = errors.New("room is required")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNotInRoom          = errors.New("not in room")
)

// AccountService defines signup, signin, lookup and account removal.
type AccountService interface {
	Signup(ctx context.Context, username, password, retypePassword string) error
	Signin(ctx context.Context, username, password string) (*domain.User, error)
	DeleteAccount(ctx context.Context, username string) error
	Exists(ctx context.Context, username string) (bool, error)
}

// GroupService defines group lifecycle. Every group owns one broker
// broadcast channel for as long as it is listed.
type GroupService interface {
	List(ctx context.Context) ([]domain.Group, error)
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, actor, name string) error
	Delete(ctx context.Context, actor, name string) error
}

// ChatService is the real-time room relay.
type ChatService interface {
	HandleMessage(ctx context.Context, c *hub.Client, raw []byte)
	Join(ctx context.Context, c *hub.Client, room, username string) error
	Leave(ctx context.Context, c *hub.Client, room, username string) error
	Send(ctx context.Context, c *hub.Client, room, username, body string) error
	HandleDisconnect(c *hub.Client, left []hub.Membership)
	RunRelay(ctx context.Context, sub pubsub.Subscriber)
	Stop()
}

// AvatarRemover deletes a user's avatar; a missing avatar is not an error.
type AvatarRemover interface {
	DeleteAvatar(ctx context.Context, username string) error
}
