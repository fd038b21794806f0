package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/weiawesome/wes-io-groupchat/internal/audit"
	"github.com/weiawesome/wes-io-groupchat/internal/domain"
	"github.com/weiawesome/wes-io-groupchat/internal/repository"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
)

// Usernames double as avatar file names, so path characters are excluded.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

// ValidateUsername rejects names unusable as identities or file names.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) || username == "." || username == ".." {
		return ErrInvalidUsername
	}
	if username == domain.GuestUsername || username == domain.SystemUsername {
		return ErrInvalidUsername
	}
	return nil
}

type accountService struct {
	users   repository.UserRepository
	avatars AvatarRemover
}

func NewAccountService(users repository.UserRepository, avatars AvatarRemover) AccountService {
	return &accountService{users: users, avatars: avatars}
}

func (s *accountService) Signup(ctx context.Context, username, password, retypePassword string) error {
	l := log.Ctx(ctx)

	if err := ValidateUsername(username); err != nil {
		audit.LogWithDetail(ctx, audit.ActionSignupFailed, username, "invalid username", "signup rejected")
		return err
	}
	if password == "" {
		audit.LogWithDetail(ctx, audit.ActionSignupFailed, username, "empty password", "signup rejected")
		return ErrPasswordRequired
	}
	if len(password) > MaxPasswordBytes {
		audit.LogWithDetail(ctx, audit.ActionSignupFailed, username, "password too long", "signup rejected")
		return ErrPasswordTooLong
	}
	if password != retypePassword {
		audit.LogWithDetail(ctx, audit.ActionSignupFailed, username, "password mismatch", "signup rejected")
		return ErrPasswordMismatch
	}

	_, err := s.users.Get(ctx, username)
	switch {
	case err == nil:
		audit.LogWithDetail(ctx, audit.ActionSignupFailed, username, "username taken", "signup rejected")
		return ErrUsernameTaken
	case !errors.Is(err, repository.ErrUserNotFound):
		return err
	}

	digest, err := HashPassword(password)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return err
	}

	if err := s.users.Put(ctx, &domain.User{Username: username, PasswordDigest: digest}); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	audit.Log(ctx, audit.ActionSignup, username, "user signed up")
	return nil
}

func (s *accountService) Signin(ctx context.Context, username, password string) (*domain.User, error) {
	l := log.Ctx(ctx)

	user, err := s.users.Get(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionSigninFailed, username, "unknown user", "signin failed")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, rehash := VerifyPassword(user.PasswordDigest, password)
	if !ok {
		audit.LogWithDetail(ctx, audit.ActionSigninFailed, username, "wrong password", "signin failed")
		return nil, ErrInvalidCredentials
	}

	if rehash {
		if digest, err := HashPassword(password); err == nil {
			user.PasswordDigest = digest
			if err := s.users.Put(ctx, user); err != nil {
				l.Warn().Err(err).Str(log.FieldUsername, username).Msg("failed to upgrade legacy password digest")
			}
		}
	}

	audit.Log(ctx, audit.ActionSignin, username, "user signed in")
	return user, nil
}

// Exists reports whether username is still registered.
func (s *accountService) Exists(ctx context.Context, username string) (bool, error) {
	if _, err := s.users.Get(ctx, username); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *accountService) DeleteAccount(ctx context.Context, username string) error {
	if _, err := s.users.Get(ctx, username); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	if err := s.users.Delete(ctx, username); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := s.avatars.DeleteAvatar(ctx, username); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldUsername, username).Msg("failed to delete avatar")
	}

	audit.Log(ctx, audit.ActionDeleteProfile, username, "profile deleted")
	return nil
}
