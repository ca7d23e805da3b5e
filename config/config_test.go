package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultServer, cfg.Server)
	assert.Empty(t, cfg.Engine.Address)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vxbroker.toml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		`server = "https://voice.example.com"`,
		``,
		`[engine]`,
		`event_buffer_size = 0`,
		``,
		`[log]`,
		`level = "debug"`,
		`format = "text"`,
		``,
		`[debug]`,
		`rethrow = true`,
	}, "\n")), 0o600))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://voice.example.com", cfg.Server)
	assert.Equal(t, 0, cfg.Engine.EventBufferSize)
	assert.True(t, cfg.Engine.Ready)
	assert.Equal(t, logging.LogLevelDebug, cfg.LogLevel())
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Debug.Rethrow)
	assert.Equal(t, uint(core.MaxArchivePageSize), cfg.Archive.DefaultPageSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vxbroker.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o600))
	t.Setenv("VXBROKER_LOG_LEVEL", "error")
	t.Setenv("VXBROKER_ENGINE_EVENT_BUFFER_SIZE", "16")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevelError, cfg.LogLevel())
	assert.Equal(t, 16, cfg.Engine.EventBufferSize)
}

func TestLoad_InvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vxbroker.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"loud\"\n"), 0o600))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.True(t, core.IsArgumentError(err))
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vxbroker.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log\n"), 0o600))

	_, err := Load(viper.New(), path)
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		param  string
	}{
		{"empty server", func(c *Config) { c.Server = "" }, "server"},
		{"negative buffer", func(c *Config) { c.Engine.EventBufferSize = -1 }, "engine.event_buffer_size"},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero page", func(c *Config) { c.Archive.DefaultPageSize = 0 }, "archive.default_page_size"},
		{"page too large", func(c *Config) { c.Archive.DefaultPageSize = core.MaxArchivePageSize + 1 }, "archive.default_page_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var argErr *core.ArgumentError
			require.ErrorAs(t, err, &argErr)
			assert.Equal(t, tt.param, argErr.Param)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vxbroker.toml")

	want := Default()
	want.Server = "https://voice.example.com"
	want.Engine.Address = "127.0.0.1:7070"
	want.Archive.DefaultPageSize = 20
	require.NoError(t, Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(fileMode), info.Mode().Perm())

	got, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	path := filepath.Join(t.TempDir(), "vxbroker.toml")
	assert.Error(t, Save(path, cfg))
	assert.NoFileExists(t, path)
}
