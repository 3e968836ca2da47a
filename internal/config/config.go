// Package config holds the configuration fields shared by both
// sledctl binaries (cmd/nexus and cmd/sled-agent): viper with
// environment variable overrides and an optional TOML file,
// mapstructure-tagged.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/viper"
)

// Base holds the fields every sledctl process needs regardless of
// role. Each binary's own Config struct embeds this.
type Base struct {
	// Host is the address this process listens on for its own RPC
	// traffic (NATS client-side addressing is separate, see NATS).
	Host string `mapstructure:"host"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `mapstructure:"log_level"`

	// DataDir names a directory for on-disk state. No component in this
	// repository reads or writes it; the bootstrap identity and shares
	// are generated in memory.
	DataDir string `mapstructure:"data_dir"`

	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig holds the NATS client configuration.
type NATSConfig struct {
	Host  string `mapstructure:"host"`
	Token string `mapstructure:"token"`
}

// Load populates base defaults into viper and reads an optional TOML
// config file plus environment variables under the given prefix. It
// does not call viper.Unmarshal itself — each binary's cmd package
// does that into its own embedding Config struct, after calling Load
// to seed defaults and the file/env sources.
func Load(envPrefix, configPath string) error {
	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("data_dir", "/var/lib/sledctl")
	viper.SetDefault("nats.host", "nats://127.0.0.1:4222")

	if configPath == "" {
		return nil
	}
	if _, err := os.Stat(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "config file not found: %s, using environment variables and defaults\n", configPath)
		return nil
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("toml")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "using config file: %s\n", viper.ConfigFileUsed())
	return nil
}

// SlogLevel parses Base.LogLevel into a slog.Level, defaulting to Info
// for an unrecognized value rather than failing startup over it.
func (b Base) SlogLevel() slog.Level {
	switch b.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
