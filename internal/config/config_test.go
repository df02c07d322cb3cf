package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parloop.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[engine]
workers = 4
fault_policy = "isolate"

[checkpoint]
enabled = true
interval = 5

[database]
conn_max_lifetime = "10m"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Engine.Workers)
	require.Equal(t, "isolate", cfg.Engine.FaultPolicy)
	require.Equal(t, 256, cfg.Engine.BlockSize)
	require.Equal(t, CrossBlockLastWins, cfg.Engine.CrossBlockWrites)
	require.True(t, cfg.Checkpoint.Enabled)
	require.Equal(t, 5, cfg.Checkpoint.Interval)
	require.Equal(t, 10*time.Minute, cfg.Database.ConnMaxLifetime)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative block size", "[engine]\nblock_size = -1\n"},
		{"bad policy", "[engine]\nfault_policy = \"retry\"\n"},
		{"bad cross block", "[engine]\ncross_block_writes = \"first\"\n"},
		{"checkpoint without interval", "[checkpoint]\nenabled = true\ninterval = 0\n"},
		{"bad profile", "[profiling]\nmode = \"heap\"\n"},
		{"syntax", "[engine\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoad_ZeroBlockSize(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[engine]\nblock_size = 0\nworkers = 3\n"))
	require.NoError(t, err)
	require.Zero(t, cfg.Engine.BlockSize)
	require.Equal(t, 3, cfg.Engine.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().validate())
}
