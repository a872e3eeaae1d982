package main

import (
	"fmt"
	"os"

	chatterhub "github.com/chatterhub/chatterhub-go"
)

// getClient creates a ChatterHub client from the stored configuration.
func getClient() (*chatterhub.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return chatterhub.NewClient(cfg.Default.ServerURL), cfg
}

// requireUsername returns the configured username, from the flag when
// given, falling back to config.
func requireUsername(flagValue string, cfg *Config) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg.Default.Username != "" {
		return cfg.Default.Username
	}
	fmt.Fprintln(os.Stderr, "No username. Pass --user or run 'chatterhub config set default.username <name>'.")
	os.Exit(1)
	return ""
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
