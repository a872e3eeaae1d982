package main

import (
	"fmt"

	chatterhub "github.com/chatterhub/chatterhub-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and queued offline messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Server:   %s\n", valueOrDefault(cfg.Default.ServerURL, chatterhub.DefaultBaseURL))
		fmt.Printf("  Username: %s\n", valueOrDefault(cfg.Default.Username, "(not set)"))
		if cfg.Chat.DefaultRoom != "" {
			fmt.Printf("  Room:     %s\n", cfg.Chat.DefaultRoom)
		}

		dir, err := storeDir()
		if err != nil {
			return err
		}
		store, err := chatterhub.OpenStore(dir)
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		defer store.Close()

		pending, err := store.ListAll()
		if err != nil {
			return fmt.Errorf("failed to read queue: %w", err)
		}

		fmt.Println()
		if len(pending) == 0 {
			fmt.Println("Outbox: empty")
			return nil
		}
		fmt.Printf("Outbox: %d message(s) waiting for a connection\n", len(pending))
		for _, m := range pending {
			target := m.Context.Name
			if m.Context.IsDirect() {
				target = "@" + target
			}
			body := m.Body
			if m.File != nil {
				body = "[file] " + m.File.Name
			}
			if len(body) > 60 {
				body = body[:60] + "..."
			}
			fmt.Printf("  %-20s %s\n", target, body)
		}
		return nil
	},
}
