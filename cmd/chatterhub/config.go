package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// configKeys enumerates every settable key with its meaning. Keep in
// sync with the Config struct and setConfigValue.
var configKeys = []struct {
	key  string
	desc string
}{
	{"default.server_url", "base URL of the ChatterHub server"},
	{"default.username", "username used when --user is not given"},
	{"chat.default_room", "room joined when --room is not given"},
	{"chat.auto_reconnect", "reconnect automatically after a drop (true/false)"},
}

func configKeyHelp() string {
	var b strings.Builder
	b.WriteString("Keys:\n")
	for _, k := range configKeys {
		fmt.Fprintf(&b, "  %-22s %s\n", k.key, k.desc)
	}
	return b.String()
}

func knownConfigKey(key string) bool {
	for _, k := range configKeys {
		if k.key == key {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ChatterHub configuration",
	Long: "View or modify the ChatterHub CLI configuration stored in ~/.chatterhub/config.toml.\n\n" +
		configKeyHelp(),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("No configuration file found. Run 'chatterhub config set default.username <name>' to create one.")
				return nil
			}
			return fmt.Errorf("cannot read config file: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value using dot notation.\n" +
		"Example: chatterhub config set default.username alice\n\n" +
		configKeyHelp(),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, value); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Set %s = %s\n", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Clear a configuration value",
	Long: "Reset a configuration value to its zero value.\n" +
		"Example: chatterhub config unset chat.default_room\n\n" +
		configKeyHelp(),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !knownConfigKey(key) {
			return fmt.Errorf("unknown key %q\n\n%s", key, configKeyHelp())
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := setConfigValue(cfg, key, ""); err != nil {
			return err
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Cleared %s\n", key)
		return nil
	},
}
