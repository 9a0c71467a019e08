package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("TINYOPDS_LIBRARY_PATH", "/books")

	cfg, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "/books", cfg.LibraryPath)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "0.0.0.0", cfg.InterfaceIP)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 3, cfg.WrongAttemptsCount)
	assert.Equal(t, "tinyopds", cfg.CredentialsKey)
	assert.True(t, cfg.RememberClients)
	assert.True(t, cfg.WatchLibrary)
	assert.Equal(t, 480, cfg.CoverWidth)
	assert.Equal(t, 48, cfg.ThumbnailWidth)
	assert.False(t, cfg.RussianLanguage())
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyopds.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
library_path: /mnt/books
server_port: 9090
language: ru
page_size: 25
`), 0644))

	cfg, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/books", cfg.LibraryPath)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 25, cfg.PageSize)
	assert.True(t, cfg.RussianLanguage())
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyopds.yml")
	require.NoError(t, os.WriteFile(path, []byte("library_path: /mnt/books\nserver_port: 9090\n"), 0644))
	t.Setenv("TINYOPDS_SERVER_PORT", "7070")

	cfg, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.ServerPort)
}

func TestMissingLibraryPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestInvalidPort(t *testing.T) {
	t.Setenv("TINYOPDS_LIBRARY_PATH", "/books")
	t.Setenv("TINYOPDS_SERVER_PORT", "99999")

	_, err := New("")
	assert.Error(t, err)
}
