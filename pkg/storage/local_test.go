package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), URLBase: "/profile_images"})
	require.NoError(t, err)
	return s
}

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	data := []byte("\x89PNG fake bytes")
	require.NoError(t, s.Write(ctx, "avatars/alice.png", bytes.NewReader(data), int64(len(data)), "image/png"))

	ok, err := s.Exists(ctx, "avatars/alice.png")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Read(ctx, "avatars/alice.png")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	url, err := s.GetURL(ctx, "avatars/alice.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/profile_images/avatars/alice.png", url)
}

func TestLocalStorageOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	require.NoError(t, s.Write(ctx, "k", bytes.NewReader([]byte("one")), 3, ""))
	require.NoError(t, s.Write(ctx, "k", bytes.NewReader([]byte("two")), 3, ""))

	rc, err := s.Read(ctx, "k")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "two", string(got))
}

func TestLocalStorageMissing(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	_, err := s.Read(ctx, "nope.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetURL(ctx, "nope.png", time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "nope.png"))
}

func TestLocalStorageDelete(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	for _, k := range []string{"avatars/a.png", "avatars/b.png", "other/c.txt"} {
		require.NoError(t, s.Write(ctx, k, bytes.NewReader([]byte(k)), -1, ""))
	}

	require.NoError(t, s.Delete(ctx, "avatars/a.png"))
	ok, err := s.Exists(ctx, "avatars/a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Exists(ctx, "avatars/b.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	assert.Error(t, s.Write(ctx, "../escape", bytes.NewReader(nil), 0, ""))
	assert.Error(t, s.Write(ctx, ".", bytes.NewReader(nil), 0, ""))

	_, err := s.Read(ctx, "../../etc/passwd")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = s.Exists(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorageNestedKeys(t *testing.T) {
	ctx := context.Background()
	s := newLocal(t)

	require.NoError(t, s.Write(ctx, "a/b/c.png", bytes.NewReader([]byte("x")), 1, "image/png"))

	// A directory is not an object.
	ok, err := s.Exists(ctx, "a/b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "ftp"})
	assert.ErrorContains(t, err, "unsupported storage driver")
}
