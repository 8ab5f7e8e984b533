package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage.yaml")
	data := []byte("store:\n  backend: memory\n  cache_size: 8\nlog:\n  mode: production\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.Store.Backend)
	require.Equal(t, 8, cfg.Store.CacheSize)
	require.Equal(t, "production", cfg.Log.Mode)
	require.Equal(t, ".", cfg.Project.Root)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineage.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: s3\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid store.backend")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Config{
		Project: ProjectConfig{Root: ""},
		Store:   StoreConfig{Backend: BackendFile, CacheSize: -1},
	}
	err := cfg.Validate()
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 3)
}
