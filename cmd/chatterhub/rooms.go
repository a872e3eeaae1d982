package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var createPrivate bool
var createKey string

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsCreateCmd)
	roomsCmd.AddCommand(roomsCheckCmd)

	roomsCreateCmd.Flags().BoolVar(&createPrivate, "private", false, "create a private room")
	roomsCreateCmd.Flags().StringVar(&createKey, "key", "", "access key for a private room")
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List, create, and inspect chat rooms",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rooms on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		rooms, err := client.Rooms(ctx)
		if err != nil {
			return fmt.Errorf("failed to list rooms: %w", err)
		}
		if len(rooms) == 0 {
			fmt.Println("No rooms.")
			return nil
		}
		for _, r := range rooms {
			access := "public"
			if r.Private {
				access = "private"
			}
			fmt.Printf("  %-24s %s\n", r.Name, access)
		}
		return nil
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a room",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if createPrivate && createKey == "" {
			return fmt.Errorf("a private room needs --key")
		}
		client, _ := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.CreateRoom(ctx, args[0], createPrivate, createKey); err != nil {
			return fmt.Errorf("failed to create room: %w", err)
		}
		fmt.Printf("Created room %s\n", args[0])
		return nil
	},
}

var roomsCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Show a room's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := client.CheckRoom(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to check room: %w", err)
		}
		if !status.Exists {
			fmt.Printf("Room %s does not exist.\n", args[0])
			return nil
		}
		access := "public"
		if status.Private {
			access = "private"
		}
		fmt.Printf("Room:    %s\n", args[0])
		fmt.Printf("Access:  %s\n", access)
		fmt.Printf("Users:   %d\n", status.UserCount)
		return nil
	},
}
