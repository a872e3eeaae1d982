package main

import (
	"context"
	"errors"
	"testing"

	chatterhub "github.com/chatterhub/chatterhub-go"
)

// stubConn is an always-connected Sender that accepts every command.
type stubConn struct{}

func (stubConn) Send(ctx context.Context, event string, payload any) error { return nil }
func (stubConn) State() chatterhub.ConnState                               { return chatterhub.StateConnected }

func draftSession(t *testing.T, cfg *chatterhub.SessionConfig) *chatterhub.Session {
	t.Helper()
	store, err := chatterhub.OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s := chatterhub.NewSession(stubConn{}, chatterhub.NewMemoryQueue(), store, cfg)
	ctx := context.Background()
	if err := s.SetIdentity(ctx, "alice"); err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}
	if err := s.JoinRoom(ctx, "general"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	return s
}

func TestRejectedLineKeptAsDraft(t *testing.T) {
	s := draftSession(t, &chatterhub.SessionConfig{RateLimitMax: 1})
	ctx := context.Background()

	if err := composeLine(ctx, s, "first"); err != nil {
		t.Fatalf("composeLine: %v", err)
	}
	err := composeLine(ctx, s, "second, over the limit")
	if !errors.Is(err, chatterhub.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	draft, err := s.Draft()
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if draft != "second, over the limit" {
		t.Errorf("rejected text not kept as draft, got %q", draft)
	}
}

func TestSentLineClearsDraft(t *testing.T) {
	s := draftSession(t, nil)
	ctx := context.Background()

	if err := s.SaveDraft("half-typed thought"); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if err := composeLine(ctx, s, "hello"); err != nil {
		t.Fatalf("composeLine: %v", err)
	}

	draft, err := s.Draft()
	if err != nil {
		t.Fatalf("Draft: %v", err)
	}
	if draft != "" {
		t.Errorf("draft should clear after a successful send, got %q", draft)
	}
}
