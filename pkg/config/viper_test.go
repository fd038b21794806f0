package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLayers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.yaml"), []byte("server:\n  port: 7000\n  host: file\n"), 0o644))
	t.Setenv("APP_LISTEN_HOST", "env")

	v, err := Read(Source{
		Dir:      dir,
		Name:     "app",
		Defaults: map[string]interface{}{"server.port": 5000, "server.host": "default", "log.level": "info"},
		Env:      map[string]string{"server.host": "APP_LISTEN_HOST"},
	})
	require.NoError(t, err)

	assert.Equal(t, 7000, v.GetInt("server.port"))
	assert.Equal(t, "env", v.GetString("server.host"))
	assert.Equal(t, "info", v.GetString("log.level"))
}

func TestReadMissingFile(t *testing.T) {
	v, err := Read(Source{Dir: t.TempDir(), Name: "absent", Defaults: map[string]interface{}{"a": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1, v.GetInt("a"))
}

func TestReadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("a: [unclosed"), 0o644))
	_, err := Read(Source{Dir: dir, Name: "bad"})
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	v, err := Read(Source{Dir: t.TempDir(), Name: "none", Defaults: map[string]interface{}{
		"ok":  "90s",
		"bad": "soon",
		"neg": "-1s",
	}})
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, Duration(v, "ok", time.Second))
	assert.Equal(t, time.Second, Duration(v, "bad", time.Second))
	assert.Equal(t, time.Second, Duration(v, "neg", time.Second))
	assert.Equal(t, time.Second, Duration(v, "missing", time.Second))
}
