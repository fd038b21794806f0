// Package profile stores one avatar image per user.
package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/weiawesome/wes-io-groupchat/internal/audit"
	"github.com/weiawesome/wes-io-groupchat/pkg/log"
	"github.com/weiawesome/wes-io-groupchat/pkg/storage"
)

var (
	ErrInvalidAvatar  = errors.New("file is not a supported image")
	ErrAvatarTooLarge = errors.New("image exceeds the upload limit")
	ErrAvatarNotFound = errors.New("avatar not found")
)

const (
	avatarExt         = ".png"
	avatarContentType = "image/png"
	urlExpiry         = time.Hour

	// DefaultMaxPixels bounds the decoded size of an upload.
	DefaultMaxPixels = 4096 * 4096
)

// Config controls where avatars live and what uploads are accepted.
type Config struct {
	Prefix    string // key prefix, e.g. "profile_images/"
	MaxBytes  int64
	Dimension int // longest side after normalising
	MaxPixels int // width*height accepted before decoding; 0 means DefaultMaxPixels
}

type Service struct {
	store storage.Storage
	cfg   Config
}

func NewService(store storage.Storage, cfg Config) *Service {
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	return &Service{store: store, cfg: cfg}
}

// Key returns the storage key of username's avatar.
func (s *Service) Key(username string) string {
	return s.cfg.Prefix + username + avatarExt
}

// SetAvatar validates the upload and stores it as the user's PNG avatar,
// replacing any previous one. PNGs already within the size limit are stored
// as uploaded; anything else is decoded, fitted and re-encoded.
func (s *Service) SetAvatar(ctx context.Context, username string, r io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxBytes+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return ErrAvatarTooLarge
	}

	out, err := s.normalise(data)
	if err != nil {
		return err
	}

	key := s.Key(username)
	if err := s.store.Write(ctx, key, bytes.NewReader(out), int64(len(out)), avatarContentType); err != nil {
		return fmt.Errorf("store avatar: %w", err)
	}

	l := log.Ctx(ctx)
	l.Info().Str(log.FieldUsername, username).Str("key", key).Int("bytes", len(out)).Msg("avatar stored")
	audit.LogWithTarget(ctx, audit.ActionUploadAvatar, username, key, "avatar uploaded")
	return nil
}

func (s *Service) normalise(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidAvatar
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(s.cfg.MaxPixels) {
		return nil, ErrInvalidAvatar
	}
	if format == "png" && cfg.Width <= s.cfg.Dimension && cfg.Height <= s.cfg.Dimension {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrInvalidAvatar
	}
	fitted := imaging.Fit(img, s.cfg.Dimension, s.cfg.Dimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// GetAvatar returns the stored avatar bytes.
func (s *Service) GetAvatar(ctx context.Context, username string) ([]byte, error) {
	return s.read(ctx, s.Key(username))
}

// OpenFile reads an avatar by its file name, as served under /profile_images/.
func (s *Service) OpenFile(ctx context.Context, file string) ([]byte, error) {
	if file == "" || strings.ContainsAny(file, `/\`) || !strings.HasSuffix(file, avatarExt) {
		return nil, ErrAvatarNotFound
	}
	return s.read(ctx, s.cfg.Prefix+file)
}

func (s *Service) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Read(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAvatarNotFound
		}
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DeleteAvatar removes username's avatar. A missing avatar is not an error.
func (s *Service) DeleteAvatar(ctx context.Context, username string) error {
	key := s.Key(username)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete avatar: %w", err)
	}
	audit.LogWithTarget(ctx, audit.ActionDeleteAvatar, username, key, "avatar deleted")
	return nil
}

// AvatarURL returns where the avatar can be fetched, or "" when the user has
// none.
func (s *Service) AvatarURL(ctx context.Context, username string) string {
	url, err := s.store.GetURL(ctx, s.Key(username), urlExpiry)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldUsername, username).Msg("failed to resolve avatar url")
		}
		return ""
	}
	return url
}
