package chatterhub

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"
)

// Key layout inside the pebble store. Queue entries are written under a
// monotonically increasing sequence so key order is enqueue order; a
// second index maps message id to its sequence key for idempotent
// overwrite and removal.
const (
	keyQueuePrefix   = "outbox/"
	keyQueueIDPrefix = "outbox-id/"
	keyDraftPrefix   = "draft/"
	keyRecentEmojis  = "recent-emojis"
	keyProfileImage  = "profile-image"
)

// maxRecentEmojis caps the persisted recently-used reaction list.
const maxRecentEmojis = 24

// Store is the durable local state backing the client: the outbound
// message queue, per-context message drafts, recently used reaction
// emojis, and the cached profile image. It survives process restarts.
//
// Store implements QueueStore.
type Store struct {
	db *pebble.DB

	mu      sync.Mutex
	nextSeq uint64
}

// OpenStore opens (or creates) the store at dir.
func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	s := &Store{db: db, nextSeq: 1}

	// Restore the sequence counter past any existing queue entries.
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyQueuePrefix),
		UpperBound: []byte(keyQueuePrefix + "~"),
	})
	if err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var seq uint64
		if _, err := fmt.Sscanf(string(iter.Key()), keyQueuePrefix+"%016x", &seq); err == nil && seq >= s.nextSeq {
			s.nextSeq = seq + 1
		}
	}
	if err := iter.Close(); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func queueKey(seq uint64) []byte {
	return []byte(fmt.Sprintf(keyQueuePrefix+"%016x", seq))
}

func queueIDKey(id string) []byte {
	return []byte(keyQueueIDPrefix + id)
}

// get reads a key, mapping pebble.ErrNotFound to (nil, false).
func (s *Store) get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	out := append([]byte(nil), val...)
	closer.Close()
	return out, true, nil
}

// ============================================================================
// Queue
// ============================================================================

// Enqueue persists a message keyed by its id. Enqueuing an id that is
// already queued overwrites the entry in place, keeping its position.
func (s *Store) Enqueue(msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return &PersistenceError{Op: "enqueue", Err: err}
	}

	key, found, err := s.get(queueIDKey(msg.ID))
	if err != nil {
		return &PersistenceError{Op: "enqueue", Err: err}
	}
	if !found {
		key = queueKey(s.nextSeq)
		s.nextSeq++
	}

	batch := s.db.NewBatch()
	batch.Set(key, data, nil)
	batch.Set(queueIDKey(msg.ID), key, nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		return &PersistenceError{Op: "enqueue", Err: err}
	}
	return nil
}

// ListAll returns all queued messages in original enqueue order.
func (s *Store) ListAll() ([]*Message, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyQueuePrefix),
		UpperBound: []byte(keyQueuePrefix + "~"),
	})
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	defer iter.Close()

	var out []*Message
	for iter.First(); iter.Valid(); iter.Next() {
		var msg Message
		if err := json.Unmarshal(iter.Value(), &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}
	if err := iter.Error(); err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return out, nil
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, found, err := s.get(queueIDKey(id))
	if err != nil {
		return &PersistenceError{Op: "remove", Err: err}
	}
	if !found {
		return nil
	}

	batch := s.db.NewBatch()
	batch.Delete(key, nil)
	batch.Delete(queueIDKey(id), nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		return &PersistenceError{Op: "remove", Err: err}
	}
	return nil
}

// ============================================================================
// Drafts
// ============================================================================

// SetDraft stores the unsent input text for a context key. An empty text
// clears the draft.
func (s *Store) SetDraft(contextKey, text string) error {
	key := []byte(keyDraftPrefix + contextKey)
	if text == "" {
		if err := s.db.Delete(key, pebble.Sync); err != nil {
			return &PersistenceError{Op: "draft", Err: err}
		}
		return nil
	}
	if err := s.db.Set(key, []byte(text), pebble.Sync); err != nil {
		return &PersistenceError{Op: "draft", Err: err}
	}
	return nil
}

// Draft returns the stored draft for a context key, or "" when none.
func (s *Store) Draft(contextKey string) (string, error) {
	val, found, err := s.get([]byte(keyDraftPrefix + contextKey))
	if err != nil {
		return "", &PersistenceError{Op: "draft", Err: err}
	}
	if !found {
		return "", nil
	}
	return string(val), nil
}

// ============================================================================
// Recent emojis
// ============================================================================

// RecentEmojis returns the recently used reaction emojis, most recent
// first.
func (s *Store) RecentEmojis() ([]string, error) {
	val, found, err := s.get([]byte(keyRecentEmojis))
	if err != nil {
		return nil, &PersistenceError{Op: "emojis", Err: err}
	}
	if !found {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, nil
	}
	return out, nil
}

// PushRecentEmoji moves emoji to the front of the recent list, trimming
// the list to its cap.
func (s *Store) PushRecentEmoji(emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent, err := s.RecentEmojis()
	if err != nil {
		return err
	}
	next := make([]string, 0, len(recent)+1)
	next = append(next, emoji)
	for _, e := range recent {
		if e != emoji {
			next = append(next, e)
		}
	}
	if len(next) > maxRecentEmojis {
		next = next[:maxRecentEmojis]
	}
	data, _ := json.Marshal(next)
	if err := s.db.Set([]byte(keyRecentEmojis), data, pebble.Sync); err != nil {
		return &PersistenceError{Op: "emojis", Err: err}
	}
	return nil
}

// ============================================================================
// Profile image
// ============================================================================

// SetProfileImage caches the user's profile image blob.
func (s *Store) SetProfileImage(data []byte) error {
	if err := s.db.Set([]byte(keyProfileImage), data, pebble.Sync); err != nil {
		return &PersistenceError{Op: "profile", Err: err}
	}
	return nil
}

// ProfileImage returns the cached profile image, or nil when none.
func (s *Store) ProfileImage() ([]byte, error) {
	val, _, err := s.get([]byte(keyProfileImage))
	if err != nil {
		return nil, &PersistenceError{Op: "profile", Err: err}
	}
	return val, nil
}
