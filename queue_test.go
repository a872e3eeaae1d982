package chatterhub

import (
	"errors"
	"testing"
)

func queuedMessage(id, body string) *Message {
	return &Message{
		ID:      id,
		Context: RoomContext("general"),
		Author:  "alice",
		Body:    body,
		Status:  StatusQueued,
	}
}

func TestMemoryQueueOrder(t *testing.T) {
	q := NewMemoryQueue()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(queuedMessage(id, "msg "+id)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	got, err := q.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestMemoryQueueEnqueueSameIDKeepsPosition(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue(queuedMessage("a", "first"))
	q.Enqueue(queuedMessage("b", "second"))
	q.Enqueue(queuedMessage("a", "first updated"))

	got, _ := q.ListAll()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Body != "first updated" {
		t.Errorf("expected updated entry in original position, got %s %q", got[0].ID, got[0].Body)
	}
	if got[1].ID != "b" {
		t.Errorf("expected b second, got %s", got[1].ID)
	}
}

func TestMemoryQueueRemoveIdempotent(t *testing.T) {
	q := NewMemoryQueue()
	q.Enqueue(queuedMessage("a", "x"))

	if err := q.Remove("a"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := q.Remove("a"); err != nil {
		t.Fatalf("second remove should be a no-op: %v", err)
	}
	if err := q.Remove("never-existed"); err != nil {
		t.Fatalf("removing absent id should be a no-op: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

// failingStore rejects every write after being tripped.
type failingStore struct {
	*MemoryQueue
	broken bool
}

var errDiskGone = errors.New("disk gone")

func (f *failingStore) Enqueue(msg *Message) error {
	if f.broken {
		return &PersistenceError{Op: "enqueue", Err: errDiskGone}
	}
	return f.MemoryQueue.Enqueue(msg)
}

func TestFallbackQueueDegrades(t *testing.T) {
	durable := &failingStore{MemoryQueue: NewMemoryQueue()}
	var degradeErr error
	q := NewFallbackQueue(durable, func(err error) { degradeErr = err })

	if err := q.Enqueue(queuedMessage("a", "durable")); err != nil {
		t.Fatalf("healthy enqueue: %v", err)
	}
	if q.Degraded() {
		t.Fatal("queue should not be degraded yet")
	}

	durable.broken = true
	if err := q.Enqueue(queuedMessage("b", "memory")); err != nil {
		t.Fatalf("degraded enqueue should still succeed: %v", err)
	}
	if !q.Degraded() {
		t.Fatal("queue should report degraded")
	}
	if degradeErr == nil || !errors.Is(degradeErr, errDiskGone) {
		t.Errorf("expected degrade callback with underlying error, got %v", degradeErr)
	}

	got, err := q.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected merged view of 2 messages, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("expected durable entries before memory entries, got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestFallbackQueueRemoveBothSides(t *testing.T) {
	durable := &failingStore{MemoryQueue: NewMemoryQueue()}
	q := NewFallbackQueue(durable, nil)

	q.Enqueue(queuedMessage("a", "durable"))
	durable.broken = true
	q.Enqueue(queuedMessage("b", "memory"))

	if err := q.Remove("a"); err != nil {
		t.Fatalf("remove durable entry: %v", err)
	}
	if err := q.Remove("b"); err != nil {
		t.Fatalf("remove memory entry: %v", err)
	}
	got, _ := q.ListAll()
	if len(got) != 0 {
		t.Errorf("expected empty merged view, got %d entries", len(got))
	}
}
