package chatterhub

import (
	"fmt"
	"testing"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	return s
}

func TestStoreQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	for i := 0; i < 5; i++ {
		if err := s.Enqueue(queuedMessage(fmt.Sprintf("m%d", i), fmt.Sprintf("body %d", i))); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s = openTestStore(t, dir)
	defer s.Close()

	got, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll after reopen: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 messages after reopen, got %d", len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("m%d", i); m.ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, m.ID)
		}
	}

	// The restored sequence counter keeps new entries after old ones.
	if err := s.Enqueue(queuedMessage("m5", "body 5")); err != nil {
		t.Fatalf("enqueue after reopen: %v", err)
	}
	got, _ = s.ListAll()
	if got[len(got)-1].ID != "m5" {
		t.Errorf("expected m5 last, got %s", got[len(got)-1].ID)
	}
}

func TestStoreEnqueueSameIDKeepsPosition(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	s.Enqueue(queuedMessage("a", "first"))
	s.Enqueue(queuedMessage("b", "second"))
	s.Enqueue(queuedMessage("a", "first updated"))

	got, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Body != "first updated" {
		t.Errorf("expected overwritten entry in original position, got %s %q", got[0].ID, got[0].Body)
	}
}

func TestStoreRemoveIdempotent(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	s.Enqueue(queuedMessage("a", "x"))
	if err := s.Remove("a"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	got, _ := s.ListAll()
	if len(got) != 0 {
		t.Errorf("expected empty queue, got %d", len(got))
	}
}

func TestStoreDrafts(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	if err := s.SetDraft("general", "half-typed thought"); err != nil {
		t.Fatalf("SetDraft: %v", err)
	}
	if err := s.SetDraft("dm_alice_bob", "hey bob"); err != nil {
		t.Fatalf("SetDraft dm: %v", err)
	}

	got, err := s.Draft("general")
	if err != nil || got != "half-typed thought" {
		t.Errorf("Draft(general) = %q, %v", got, err)
	}
	got, _ = s.Draft("dm_alice_bob")
	if got != "hey bob" {
		t.Errorf("Draft(dm) = %q", got)
	}

	// Empty text clears.
	if err := s.SetDraft("general", ""); err != nil {
		t.Fatalf("clear draft: %v", err)
	}
	got, _ = s.Draft("general")
	if got != "" {
		t.Errorf("expected cleared draft, got %q", got)
	}

	got, _ = s.Draft("never-set")
	if got != "" {
		t.Errorf("expected empty draft for unknown key, got %q", got)
	}
}

func TestStoreRecentEmojis(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	for i := 0; i < maxRecentEmojis+6; i++ {
		if err := s.PushRecentEmoji(fmt.Sprintf("e%d", i)); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	got, err := s.RecentEmojis()
	if err != nil {
		t.Fatalf("RecentEmojis: %v", err)
	}
	if len(got) != maxRecentEmojis {
		t.Fatalf("expected list trimmed to %d, got %d", maxRecentEmojis, len(got))
	}
	if got[0] != fmt.Sprintf("e%d", maxRecentEmojis+5) {
		t.Errorf("expected most recent first, got %s", got[0])
	}

	// Re-pushing moves to front without duplicating.
	s.PushRecentEmoji(got[3])
	moved := got[3]
	got, _ = s.RecentEmojis()
	if got[0] != moved {
		t.Errorf("expected %s moved to front, got %s", moved, got[0])
	}
	seen := map[string]int{}
	for _, e := range got {
		seen[e]++
	}
	if seen[moved] != 1 {
		t.Errorf("expected exactly one %s entry, got %d", moved, seen[moved])
	}
}

func TestStoreProfileImage(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	got, err := s.ProfileImage()
	if err != nil || got != nil {
		t.Fatalf("expected no image initially, got %v, %v", got, err)
	}

	blob := []byte{0x89, 'P', 'N', 'G'}
	if err := s.SetProfileImage(blob); err != nil {
		t.Fatalf("SetProfileImage: %v", err)
	}
	got, _ = s.ProfileImage()
	if string(got) != string(blob) {
		t.Errorf("round-trip mismatch: %v", got)
	}
}
