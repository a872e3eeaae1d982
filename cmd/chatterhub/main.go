package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.chatterhub/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Chat    ConfigChat    `toml:"chat"`
}

// ConfigDefault holds general connection settings.
type ConfigDefault struct {
	ServerURL string `toml:"server_url"`
	Username  string `toml:"username"`
}

// ConfigChat holds chat behavior settings.
type ConfigChat struct {
	DefaultRoom   string `toml:"default_room"`
	AutoReconnect bool   `toml:"auto_reconnect"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.chatterhub, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatterhub")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// storeDir returns the path to the local durable store.
func storeDir() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "store"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a Config with defaults applied.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Chat: ConfigChat{AutoReconnect: true}}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.username").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.username)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "server_url":
			cfg.Default.ServerURL = value
		case "username":
			cfg.Default.Username = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "chat":
		switch field {
		case "default_room":
			cfg.Chat.DefaultRoom = value
		case "auto_reconnect":
			cfg.Chat.AutoReconnect = value == "true"
		default:
			return fmt.Errorf("unknown field %q in section [chat]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, chat)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var rootCmd = &cobra.Command{
	Use:   "chatterhub",
	Short: "ChatterHub chat client",
	Long:  "Command-line client for ChatterHub.\nManage rooms, chat in real time, and review queued offline messages.",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
