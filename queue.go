package chatterhub

import "sync"

// QueueStore is the durable outbound queue: messages that could not be
// sent immediately wait here until the next connected transition. Entries
// are keyed by message id; enqueuing an existing id overwrites in place.
// Listing preserves original enqueue order, which is also the retry order.
type QueueStore interface {
	Enqueue(msg *Message) error
	ListAll() ([]*Message, error)
	Remove(id string) error
	Close() error
}

// ============================================================================
// MemoryQueue
// ============================================================================

// MemoryQueue is a goroutine-safe in-memory QueueStore. It backs tests and
// the degraded mode entered after a durable-store write failure.
type MemoryQueue struct {
	mu    sync.Mutex
	byID  map[string]*Message
	order []string
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byID: make(map[string]*Message)}
}

func (q *MemoryQueue) Enqueue(msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[msg.ID]; !ok {
		q.order = append(q.order, msg.ID)
	}
	q.byID[msg.ID] = msg
	return nil
}

func (q *MemoryQueue) ListAll() ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.byID[id])
	}
	return out, nil
}

func (q *MemoryQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.byID[id]; !ok {
		return nil
	}
	delete(q.byID, id)
	for i, qid := range q.order {
		if qid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryQueue) Close() error { return nil }

// Len returns the number of queued entries.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// ============================================================================
// FallbackQueue
// ============================================================================

// FallbackQueue wraps a durable QueueStore and degrades to memory-only
// queuing when durable writes start failing. A message held only in memory
// is lost on restart, so the first failure is surfaced through onDegrade
// as a data-loss risk; queuing itself keeps working.
type FallbackQueue struct {
	mu        sync.Mutex
	durable   QueueStore
	mem       *MemoryQueue
	onDegrade func(error)
	degraded  bool
}

// NewFallbackQueue wraps durable. onDegrade may be nil; when set it is
// called once, on the first durable write failure.
func NewFallbackQueue(durable QueueStore, onDegrade func(error)) *FallbackQueue {
	return &FallbackQueue{
		durable:   durable,
		mem:       NewMemoryQueue(),
		onDegrade: onDegrade,
	}
}

// Degraded reports whether a durable write has failed since creation.
func (q *FallbackQueue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}

func (q *FallbackQueue) Enqueue(msg *Message) error {
	if err := q.durable.Enqueue(msg); err != nil {
		q.mem.Enqueue(msg)
		q.mu.Lock()
		first := !q.degraded
		q.degraded = true
		q.mu.Unlock()
		if first && q.onDegrade != nil {
			q.onDegrade(err)
		}
	}
	return nil
}

// ListAll returns durable entries first, then memory-only entries,
// skipping memory duplicates of ids already listed durably.
func (q *FallbackQueue) ListAll() ([]*Message, error) {
	out, err := q.durable.ListAll()
	if err != nil {
		out = nil
	}
	seen := make(map[string]bool, len(out))
	for _, m := range out {
		seen[m.ID] = true
	}
	memEntries, _ := q.mem.ListAll()
	for _, m := range memEntries {
		if !seen[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (q *FallbackQueue) Remove(id string) error {
	err := q.durable.Remove(id)
	q.mem.Remove(id)
	return err
}

func (q *FallbackQueue) Close() error {
	return q.durable.Close()
}
