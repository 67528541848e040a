package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tworate/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, Settings{
		StoreKind:  "memory",
		DBPath:     "tworate.db",
		RunsDir:    "runs",
		ExportsDir: "exports",
		LogLevel:   "info",
		LogFormat:  "console",
	}, s)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tworate.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: sqlite\ndb_path: runs.db\nlog_level: debug\n"), 0o644))
	t.Setenv("TWORATE_LOG_LEVEL", "warn")
	t.Setenv("TWORATE_RUNS_DIR", "/tmp/tworate-runs")

	s, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.StoreKind)
	assert.Equal(t, "runs.db", s.DBPath)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "/tmp/tworate-runs", s.RunsDir)
}

func TestLoadExplicitOverride(t *testing.T) {
	v := NewViper()
	v.Set("store", "postgres")
	v.Set("db_path", "postgres://localhost/tworate?sslmode=disable")

	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.StoreKind)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	v := NewViper()
	v.Set("store", "redis")
	_, err := Load(v, "")
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))

	v = NewViper()
	v.Set("store", "sqlite")
	v.Set("db_path", " ")
	_, err = Load(v, "")
	require.Error(t, err)
	assert.True(t, model.IsConfigError(err))

	_, err = Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
