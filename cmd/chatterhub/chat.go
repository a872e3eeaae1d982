package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	chatterhub "github.com/chatterhub/chatterhub-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var chatUser string
var chatRoom string
var chatVerbose bool

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUser, "user", "", "username (overrides config)")
	chatCmd.Flags().StringVar(&chatRoom, "room", "", "room to join (overrides config)")
	chatCmd.Flags().BoolVarP(&chatVerbose, "verbose", "v", false, "log connection events")
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a room and chat interactively",
	Long: `Join a room and chat from the terminal.

While chatting:
  /dm <user> <text>     send a direct message
  /react <id> <emoji>   toggle a reaction on a message
  /stare <user>         stare at someone
  /room <name>          switch rooms
  /who                  list online users
  /quit                 leave and exit

Messages typed while offline are queued locally and sent in order
once the connection comes back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()
		username := requireUsername(chatUser, cfg)
		room := chatRoom
		if room == "" {
			room = cfg.Chat.DefaultRoom
		}
		if room == "" {
			return fmt.Errorf("no room. Pass --room or set chat.default_room")
		}

		logger := zerolog.Nop()
		if chatVerbose {
			logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				With().Timestamp().Logger()
		}

		dir, err := storeDir()
		if err != nil {
			return err
		}
		store, err := chatterhub.OpenStore(dir)
		var queue chatterhub.QueueStore
		if err != nil {
			// Chatting still works without the durable store, queued
			// messages just will not survive a restart.
			fmt.Fprintf(os.Stderr, "warning: local store unavailable (%v), offline queue is in-memory only\n", err)
			queue = chatterhub.NewMemoryQueue()
			store = nil
		} else {
			defer store.Close()
			queue = chatterhub.NewFallbackQueue(store, func(err error) {
				fmt.Fprintf(os.Stderr, "warning: local store failing (%v), falling back to in-memory queue\n", err)
			})
		}

		rt := client.Realtime(&chatterhub.RealtimeConfig{
			AutoReconnect: cfg.Chat.AutoReconnect,
			Logger:        logger,
		})

		session := chatterhub.NewSession(rt, queue, store, &chatterhub.SessionConfig{
			Logger: logger,
			OnMessage: func(m *chatterhub.Message) {
				printMessage(m)
			},
			OnNotification: func(text string) {
				fmt.Printf("* %s\n", text)
			},
			OnTypingChanged: func(text string) {
				if text != "" {
					fmt.Printf("* %s\n", text)
				}
			},
		})
		session.Bind(rt)
		chatterhub.NewSyncCoordinator(queue, rt, session, logger).Bind(rt)

		rt.OnDisconnect(func(reason string, serverInitiated bool) {
			fmt.Printf("* disconnected: %s\n", reason)
		})
		rt.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Printf("* reconnecting in %s (attempt %d)\n", delay, attempt)
		})
		rt.OnFailed(func() {
			fmt.Println("* gave up reconnecting; messages will queue until you restart")
		})

		ctx := context.Background()
		if err := rt.Connect(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: not connected (%v), messages will be queued\n", err)
		}
		defer rt.Disconnect()

		if err := session.SetIdentity(ctx, username); err != nil {
			return err
		}
		if err := session.JoinRoom(ctx, room); err != nil && !errors.Is(err, chatterhub.ErrNotConnected) {
			return err
		}
		fmt.Printf("Joined %s as %s. Type /quit to exit.\n", room, username)

		if draft, err := session.Draft(); err == nil && draft != "" {
			fmt.Printf("* draft restored: %s\n", draft)
		}

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				break
			}
			if err := handleLine(ctx, session, line); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		_ = session.LeaveContext(ctx)
		return scanner.Err()
	},
}

func handleLine(ctx context.Context, session *chatterhub.Session, line string) error {
	if !strings.HasPrefix(line, "/") {
		return composeLine(ctx, session, line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/dm":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /dm <user> <text>")
		}
		if err := session.StartDirectMessage(ctx, fields[1]); err != nil && !errors.Is(err, chatterhub.ErrNotConnected) {
			return err
		}
		return composeLine(ctx, session, strings.Join(fields[2:], " "))
	case "/react":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /react <message-id> <emoji>")
		}
		return session.React(ctx, fields[1], fields[2])
	case "/stare":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /stare <user>")
		}
		return session.Stare(ctx, fields[1])
	case "/room":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /room <name>")
		}
		err := session.JoinRoom(ctx, fields[1])
		if errors.Is(err, chatterhub.ErrNotConnected) {
			fmt.Println("* offline, will join on reconnect")
			return nil
		}
		return err
	case "/who":
		for _, u := range session.Presence() {
			fmt.Printf("  %s\n", u)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}

// composeLine sends one line of input. Text rejected by the session
// (rate limited, too long) is kept as the context's draft so it is not
// lost; a successful send clears it.
func composeLine(ctx context.Context, session *chatterhub.Session, line string) error {
	msg, err := session.ComposeMessage(ctx, line)
	if err != nil {
		if saveErr := session.SaveDraft(line); saveErr == nil {
			fmt.Println("* message kept as draft")
		}
		return err
	}
	_ = session.SaveDraft("")
	if msg.Status == chatterhub.StatusQueued {
		fmt.Println("* offline, message queued")
	}
	return nil
}

func printMessage(m *chatterhub.Message) {
	at := time.Unix(m.CreatedAt, 0).Format("15:04")
	body := m.Body
	if m.File != nil {
		body = fmt.Sprintf("[file] %s (%d bytes)", m.File.Name, m.File.Size)
	}
	if m.ReplyTo != nil {
		body = fmt.Sprintf("(re: %s) %s", m.ReplyTo.Preview, body)
	}
	if m.Context.IsDirect() {
		fmt.Printf("[%s] %s -> you: %s\n", at, m.Author, body)
		return
	}
	fmt.Printf("[%s] %s: %s\n", at, m.Author, body)
}
