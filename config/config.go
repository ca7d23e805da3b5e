// Package config loads broker settings from a TOML file with environment
// overrides (prefix VXBROKER_).
//
//	server = "https://voice.example.com"
//
//	[engine]
//	event_buffer_size = 256
//	address = "127.0.0.1:7070"
//
//	[log]
//	level = "info"
//	format = "json"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "vxbroker"
	configType = "toml"
	envPrefix  = "VXBROKER"
	configDir  = ".vxbroker"
	fileMode   = 0o600
	dirMode    = 0o700
	tempPrefix = ".vxbroker-*.toml.tmp"
)

// DefaultServer is the login server of the built-in simulator.
const DefaultServer = "https://vxsim.local"

// Config is the complete broker configuration.
type Config struct {
	// Server is the voice service every login targets.
	Server  string        `mapstructure:"server" toml:"server"`
	Engine  EngineConfig  `mapstructure:"engine" toml:"engine"`
	Log     LogConfig     `mapstructure:"log" toml:"log"`
	Debug   DebugConfig   `mapstructure:"debug" toml:"debug"`
	Archive ArchiveConfig `mapstructure:"archive" toml:"archive"`
}

// EngineConfig selects and tunes the engine bridge.
type EngineConfig struct {
	// EventBufferSize > 0 moves event delivery onto a runner goroutine.
	EventBufferSize int `mapstructure:"event_buffer_size" toml:"event_buffer_size"`
	// Ready starts the simulator initialized.
	Ready bool `mapstructure:"ready" toml:"ready"`
	// Address of an out-of-process engine reached over a CBOR stream;
	// empty uses the in-process simulator.
	Address string `mapstructure:"address" toml:"address,omitempty"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// DebugConfig holds developer switches.
type DebugConfig struct {
	// Rethrow re-panics callback panics instead of logging them.
	Rethrow bool `mapstructure:"rethrow" toml:"rethrow"`
}

// ArchiveConfig holds archive query defaults.
type ArchiveConfig struct {
	DefaultPageSize uint `mapstructure:"default_page_size" toml:"default_page_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:  DefaultServer,
		Engine:  EngineConfig{EventBufferSize: 256, Ready: true},
		Log:     LogConfig{Level: "info", Format: "json"},
		Archive: ArchiveConfig{DefaultPageSize: core.MaxArchivePageSize},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server", d.Server)
	v.SetDefault("engine.event_buffer_size", d.Engine.EventBufferSize)
	v.SetDefault("engine.ready", d.Engine.Ready)
	v.SetDefault("engine.address", d.Engine.Address)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("debug.rethrow", d.Debug.Rethrow)
	v.SetDefault("archive.default_page_size", d.Archive.DefaultPageSize)
}

// Load reads the configuration. An empty path searches the working directory
// and ~/.vxbroker for vxbroker.toml. A missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, configDir))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting as an ArgumentError.
func (c Config) Validate() error {
	if c.Server == "" {
		return core.NewArgumentError("server", "must not be empty")
	}
	if c.Engine.EventBufferSize < 0 {
		return core.NewArgumentError("engine.event_buffer_size", "must not be negative")
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return core.NewArgumentError("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text", "console":
	default:
		return core.NewArgumentError("log.format", fmt.Sprintf("unknown format %q", c.Log.Format))
	}
	if c.Archive.DefaultPageSize == 0 || c.Archive.DefaultPageSize > core.MaxArchivePageSize {
		return core.NewArgumentError("archive.default_page_size", fmt.Sprintf("must be in 1..%d", core.MaxArchivePageSize))
	}
	return nil
}

// LogLevel returns the configured level, falling back to info.
func (c Config) LogLevel() logging.LogLevel {
	l, _ := logging.ParseLevel(c.Log.Level)
	return l
}

// Save writes cfg to path as TOML, replacing the file atomically.
func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempPrefix)
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
