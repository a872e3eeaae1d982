package chatterhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Configuration
// ============================================================================

// SessionConfig tunes the session state machine. Zero values take the
// defaults below.
type SessionConfig struct {
	// TypingTimeout is how long a peer stays in the typing set after
	// their last typing signal.
	TypingTimeout time.Duration
	// RetentionCap bounds the in-memory message log; the oldest entries
	// are evicted past it.
	RetentionCap int
	// RateLimitMax and RateLimitWindow form the outbound sliding-window
	// rate limit. RateLimitMax <= 0 disables limiting.
	RateLimitMax    int
	RateLimitWindow time.Duration
	// HistoryPageSize is the page size for direct-message history fetches.
	HistoryPageSize int
	// MaxMessageLen caps outbound message body length in runes.
	MaxMessageLen int

	Logger zerolog.Logger

	// Clock returns the current time. Tests inject a fake.
	Clock func() time.Time

	// OnNotification receives human-readable session notices (joins,
	// departures, room errors).
	OnNotification func(text string)
	// OnMessage fires for every message appended to the log.
	OnMessage func(msg *Message)
	// OnTypingChanged fires whenever the typing indicator text changes.
	OnTypingChanged func(text string)
}

func (c *SessionConfig) defaults() {
	if c.TypingTimeout == 0 {
		c.TypingTimeout = 2 * time.Second
	}
	if c.RetentionCap == 0 {
		c.RetentionCap = 500
	}
	if c.RateLimitMax == 0 {
		c.RateLimitMax = 10
	}
	if c.RateLimitWindow == 0 {
		c.RateLimitWindow = 60 * time.Second
	}
	if c.HistoryPageSize == 0 {
		c.HistoryPageSize = 50
	}
	if c.MaxMessageLen == 0 {
		c.MaxMessageLen = 1000
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// replyPreviewLen caps the quoted text carried on a reply reference.
const replyPreviewLen = 50

// ============================================================================
// Session
// ============================================================================

// Session holds the client-side chat state: identity, the active
// context, the message log, presence, the typing set and the outbound
// rate limiter. All methods are safe for concurrent use.
type Session struct {
	conn  Sender
	queue QueueStore
	store *Store
	cfg   SessionConfig
	log   zerolog.Logger

	mu          sync.Mutex
	identity    string
	active      ChatContext
	historyPage int

	messages []*Message
	byID     map[string]*Message

	online map[string]bool

	typing      map[string]time.Time
	typingTimer *time.Timer

	sendTimes []time.Time
}

// NewSession creates a session bound to a connection and a durable
// queue. store may be nil when draft and emoji persistence is not
// wanted.
func NewSession(conn Sender, queue QueueStore, store *Store, cfg *SessionConfig) *Session {
	if cfg == nil {
		cfg = &SessionConfig{}
	}
	cfg.defaults()
	return &Session{
		conn:   conn,
		queue:  queue,
		store:  store,
		cfg:    *cfg,
		log:    cfg.Logger.With().Str("component", "session").Logger(),
		byID:   make(map[string]*Message),
		online: make(map[string]bool),
		typing: make(map[string]time.Time),
	}
}

// ============================================================================
// Identity
// ============================================================================

// SetIdentity sets the username announced to the server. It must be
// non-empty and is required before joining a context.
func (s *Session) SetIdentity(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidIdentity
	}
	s.mu.Lock()
	s.identity = username
	s.mu.Unlock()

	if s.conn.State() == StateConnected {
		return s.conn.Send(ctx, CmdRegisterUser, &RegisterPayload{Username: username})
	}
	return nil
}

// Identity returns the current username, or "".
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// ============================================================================
// Context
// ============================================================================

// JoinRoom switches the active context to a room. Joining a new room
// leaves the previous room first. When offline, the context is still
// switched locally and ErrNotConnected is reported; the join is
// re-issued on reconnect.
func (s *Session) JoinRoom(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return ErrInvalidRoom
	}
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return ErrInvalidIdentity
	}
	user := s.identity
	prev := s.active
	s.active = RoomContext(room)
	s.typing = make(map[string]time.Time)
	s.mu.Unlock()
	s.notifyTyping("")

	if s.conn.State() != StateConnected {
		return ErrNotConnected
	}
	if prev.IsRoom() && prev.Name != room {
		if err := s.conn.Send(ctx, CmdLeave, &JoinPayload{Username: user, Room: prev.Name}); err != nil {
			return err
		}
	}
	return s.conn.Send(ctx, CmdJoin, &JoinPayload{Username: user, Room: room})
}

// StartDirectMessage switches the active context to a private
// conversation with peer and requests the first page of history.
func (s *Session) StartDirectMessage(ctx context.Context, peer string) error {
	peer = strings.TrimSpace(peer)
	if peer == "" {
		return ErrInvalidIdentity
	}
	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return ErrInvalidIdentity
	}
	user := s.identity
	prev := s.active
	s.active = DirectContext(peer)
	s.typing = make(map[string]time.Time)
	s.historyPage = 1
	pageSize := s.cfg.HistoryPageSize
	s.mu.Unlock()
	s.notifyTyping("")

	if s.conn.State() != StateConnected {
		return ErrNotConnected
	}
	if prev.IsRoom() {
		if err := s.conn.Send(ctx, CmdLeave, &JoinPayload{Username: user, Room: prev.Name}); err != nil {
			return err
		}
	}
	if err := s.conn.Send(ctx, CmdGetDMHistory, &DMHistoryRequest{
		User1: user, User2: peer, Page: 1, Limit: pageSize,
	}); err != nil {
		return err
	}
	return s.conn.Send(ctx, CmdGetOnlineUsers, struct{}{})
}

// LoadOlderHistory requests the next page of direct-message history for
// the active conversation. Pages restart at one on every context switch.
func (s *Session) LoadOlderHistory(ctx context.Context) error {
	s.mu.Lock()
	if !s.active.IsDirect() {
		s.mu.Unlock()
		return ErrNoContext
	}
	user, peer := s.identity, s.active.Name
	s.historyPage++
	page := s.historyPage
	pageSize := s.cfg.HistoryPageSize
	s.mu.Unlock()

	if s.conn.State() != StateConnected {
		return ErrNotConnected
	}
	return s.conn.Send(ctx, CmdGetDMHistory, &DMHistoryRequest{
		User1: user, User2: peer, Page: page, Limit: pageSize,
	})
}

// LeaveContext returns to the no-context state, leaving the current
// room if one is active.
func (s *Session) LeaveContext(ctx context.Context) error {
	s.mu.Lock()
	prev := s.active
	user := s.identity
	s.active = ChatContext{}
	s.typing = make(map[string]time.Time)
	s.mu.Unlock()
	s.notifyTyping("")

	if prev.IsRoom() && s.conn.State() == StateConnected {
		return s.conn.Send(ctx, CmdLeave, &JoinPayload{Username: user, Room: prev.Name})
	}
	return nil
}

// ActiveContext returns the current chat context.
func (s *Session) ActiveContext() ChatContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ============================================================================
// Composing
// ============================================================================

// ComposeMessage creates and sends a message in the active context.
// The returned message already carries its final id and an initial
// delivery status: Sent when the wire accepted it, Queued when the
// client is offline and the message went to the durable queue instead.
// Being offline is not an error here; send failures other than
// ErrNotConnected are returned alongside the queued message.
func (s *Session) ComposeMessage(ctx context.Context, body string) (*Message, error) {
	return s.compose(ctx, body, nil, nil)
}

// ComposeReply is ComposeMessage with a back-reference to an earlier
// message; the reference carries a short preview of the quoted text.
func (s *Session) ComposeReply(ctx context.Context, body, replyToID string) (*Message, error) {
	s.mu.Lock()
	target := s.byID[replyToID]
	var ref *ReplyRef
	if target != nil {
		preview := target.Body
		if runes := []rune(preview); len(runes) > replyPreviewLen {
			preview = string(runes[:replyPreviewLen]) + "..."
		}
		ref = &ReplyRef{ID: target.ID, Preview: preview}
	}
	s.mu.Unlock()
	return s.compose(ctx, body, ref, nil)
}

// SendFile sends a file attachment in the active context.
func (s *Session) SendFile(ctx context.Context, file *FileInfo) (*Message, error) {
	if file == nil || file.Name == "" {
		return nil, ErrEmptyMessage
	}
	return s.compose(ctx, "", nil, file)
}

func (s *Session) compose(ctx context.Context, body string, reply *ReplyRef, file *FileInfo) (*Message, error) {
	body = strings.TrimSpace(body)
	if file == nil {
		if body == "" {
			return nil, ErrEmptyMessage
		}
		if len([]rune(body)) > s.cfg.MaxMessageLen {
			return nil, ErrMessageTooLong
		}
	}

	s.mu.Lock()
	if s.identity == "" {
		s.mu.Unlock()
		return nil, ErrInvalidIdentity
	}
	if s.active.IsNone() {
		s.mu.Unlock()
		return nil, ErrNoContext
	}
	now := s.cfg.Clock()
	if !s.allowSendLocked(now) {
		s.mu.Unlock()
		return nil, ErrRateLimited
	}

	msg := &Message{
		ID:        uuid.NewString(),
		Context:   s.active,
		Author:    s.identity,
		Body:      body,
		File:      file,
		ReplyTo:   reply,
		CreatedAt: now.Unix(),
		Status:    StatusComposing,
	}
	s.appendLocked(msg)
	s.mu.Unlock()

	event, payload := wireCommand(msg)
	err := ErrNotConnected
	if s.conn.State() == StateConnected {
		err = s.conn.Send(ctx, event, payload)
	}
	if err == nil {
		s.advanceStatus(msg.ID, StatusSent)
		return msg, nil
	}

	s.advanceStatus(msg.ID, StatusQueued)
	if qerr := s.queue.Enqueue(msg); qerr != nil {
		return msg, qerr
	}
	if errors.Is(err, ErrNotConnected) {
		s.log.Debug().Str("id", msg.ID).Msg("offline, message queued")
		return msg, nil
	}
	return msg, err
}

// allowSendLocked applies the sliding-window rate limit and records the
// send time when allowed.
func (s *Session) allowSendLocked(now time.Time) bool {
	if s.cfg.RateLimitMax <= 0 {
		return true
	}
	cutoff := now.Add(-s.cfg.RateLimitWindow)
	kept := s.sendTimes[:0]
	for _, t := range s.sendTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.sendTimes = kept
	if len(s.sendTimes) >= s.cfg.RateLimitMax {
		return false
	}
	s.sendTimes = append(s.sendTimes, now)
	return true
}

// ============================================================================
// Typing, reactions, staring
// ============================================================================

// Typing signals the server that the local user is composing. It is a
// best-effort fire-and-forget.
func (s *Session) Typing(ctx context.Context) {
	s.mu.Lock()
	user := s.identity
	active := s.active
	s.mu.Unlock()
	if user == "" || !active.IsRoom() || s.conn.State() != StateConnected {
		return
	}
	_ = s.conn.Send(ctx, CmdTyping, &TypingPayload{Username: user, Room: active.Name})
}

// React toggles an emoji reaction on a message and records the emoji
// as recently used.
func (s *Session) React(ctx context.Context, messageID, emoji string) error {
	s.mu.Lock()
	user := s.identity
	active := s.active
	s.mu.Unlock()
	if user == "" {
		return ErrInvalidIdentity
	}
	if s.store != nil {
		if err := s.store.PushRecentEmoji(emoji); err != nil {
			s.log.Warn().Err(err).Msg("recent emoji not persisted")
		}
	}
	s.applyReaction(messageID, emoji, user)
	if s.conn.State() != StateConnected {
		return ErrNotConnected
	}
	p := &ReactionPayload{MessageID: messageID, Emoji: emoji, Username: user}
	if active.IsRoom() {
		p.Room = active.Name
	}
	return s.conn.Send(ctx, CmdMessageReaction, p)
}

// Stare sends the staring easter egg at target.
func (s *Session) Stare(ctx context.Context, target string) error {
	s.mu.Lock()
	user := s.identity
	active := s.active
	s.mu.Unlock()
	if user == "" {
		return ErrInvalidIdentity
	}
	if s.conn.State() != StateConnected {
		return ErrNotConnected
	}
	return s.conn.Send(ctx, CmdStaring, &StaringPayload{
		Username: user, Target: target, Room: active.Name,
	})
}

// ============================================================================
// Delivery status
// ============================================================================

// MarkSent advances a message to Sent.
func (s *Session) MarkSent(id string) { s.advanceStatus(id, StatusSent) }

// MarkRead advances a message to Read.
func (s *Session) MarkRead(id string) { s.advanceStatus(id, StatusRead) }

// advanceStatus moves a message's delivery status forward. Status never
// regresses: a Delivered message stays Delivered when a late Sent
// arrives.
func (s *Session) advanceStatus(id string, status DeliveryStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.byID[id]; msg != nil && status > msg.Status {
		msg.Status = status
	}
}

// ============================================================================
// Message log
// ============================================================================

// appendLocked adds a message to the log, evicting the oldest entries
// past the retention cap. Caller holds s.mu.
func (s *Session) appendLocked(msg *Message) {
	s.messages = append(s.messages, msg)
	s.byID[msg.ID] = msg
	for len(s.messages) > s.cfg.RetentionCap {
		evicted := s.messages[0]
		s.messages = s.messages[1:]
		delete(s.byID, evicted.ID)
	}
}

// recordIncoming appends an inbound message, deduplicating by id: a
// message whose id is already in the log (a queue-replay echo) only
// advances the existing entry to Delivered.
func (s *Session) recordIncoming(msg *Message) {
	s.mu.Lock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if existing := s.byID[msg.ID]; existing != nil {
		if StatusDelivered > existing.Status {
			existing.Status = StatusDelivered
		}
		s.mu.Unlock()
		return
	}
	msg.Status = StatusDelivered
	s.appendLocked(msg)
	cb := s.cfg.OnMessage
	s.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// Messages returns a snapshot of the full message log in arrival order.
func (s *Session) Messages() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.messages...)
}

// MessagesIn returns the log entries that belong to a context.
func (s *Session) MessagesIn(c ChatContext) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.messages {
		if m.Context == c {
			out = append(out, m)
		}
	}
	return out
}

// MessageByID returns the logged message with the given id, or nil.
func (s *Session) MessageByID(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// ============================================================================
// Presence
// ============================================================================

// Presence returns the known-online usernames, sorted.
func (s *Session) Presence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.online))
	for u := range s.online {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsOnline reports whether a user is currently known online.
func (s *Session) IsOnline(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online[username]
}

// ============================================================================
// Typing set
// ============================================================================

// RecordTyping notes that a peer is typing, refreshing their expiry.
// The local user's own signals are ignored.
func (s *Session) RecordTyping(username string) {
	s.mu.Lock()
	if username == "" || username == s.identity {
		s.mu.Unlock()
		return
	}
	s.typing[username] = s.cfg.Clock()
	s.armTypingTimerLocked()
	text := s.typingTextLocked()
	s.mu.Unlock()
	s.notifyTyping(text)
}

// armTypingTimerLocked schedules the purge for the earliest pending
// expiry. Each entry expires on its own clock: one user refreshing must
// not keep another user's stale entry alive. Caller holds s.mu.
func (s *Session) armTypingTimerLocked() {
	if len(s.typing) == 0 {
		return
	}
	var earliest time.Time
	for _, at := range s.typing {
		if earliest.IsZero() || at.Before(earliest) {
			earliest = at
		}
	}
	delay := earliest.Add(s.cfg.TypingTimeout).Sub(s.cfg.Clock())
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(delay, s.purgeTyping)
}

// purgeTyping drops expired typing entries and re-arms for the next
// pending expiry.
func (s *Session) purgeTyping() {
	s.mu.Lock()
	cutoff := s.cfg.Clock().Add(-s.cfg.TypingTimeout)
	for user, at := range s.typing {
		if !at.After(cutoff) {
			delete(s.typing, user)
		}
	}
	s.armTypingTimerLocked()
	text := s.typingTextLocked()
	s.mu.Unlock()
	s.notifyTyping(text)
}

// TypingText renders the typing indicator for the current typing set.
func (s *Session) TypingText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingTextLocked()
}

func (s *Session) typingTextLocked() string {
	cutoff := s.cfg.Clock().Add(-s.cfg.TypingTimeout)
	users := make([]string, 0, len(s.typing))
	for u, at := range s.typing {
		if at.After(cutoff) {
			users = append(users, u)
		}
	}
	if len(users) == 0 {
		return ""
	}
	sort.Strings(users)
	switch len(users) {
	case 1:
		return users[0] + " is typing..."
	case 2:
		return users[0] + " and " + users[1] + " are typing..."
	default:
		return fmt.Sprintf("%d people are typing...", len(users))
	}
}

func (s *Session) notifyTyping(text string) {
	if s.cfg.OnTypingChanged != nil {
		s.cfg.OnTypingChanged(text)
	}
}

// ============================================================================
// Drafts
// ============================================================================

// draftKey derives the draft storage key for the active context.
func (s *Session) draftKey() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.active.IsRoom():
		return s.active.Name, true
	case s.active.IsDirect():
		return "dm_" + s.identity + "_" + s.active.Name, true
	}
	return "", false
}

// SaveDraft persists the unsent input for the active context. Empty
// text clears the draft.
func (s *Session) SaveDraft(text string) error {
	if s.store == nil {
		return nil
	}
	key, ok := s.draftKey()
	if !ok {
		return ErrNoContext
	}
	return s.store.SetDraft(key, text)
}

// Draft returns the stored draft for the active context, if any.
func (s *Session) Draft() (string, error) {
	if s.store == nil {
		return "", nil
	}
	key, ok := s.draftKey()
	if !ok {
		return "", ErrNoContext
	}
	return s.store.Draft(key)
}

// ============================================================================
// Inbound event wiring
// ============================================================================

// Bind subscribes the session to the connection's inbound events and
// its lifecycle. On every reconnect the session re-registers its
// identity and re-joins the active room so server-side state is
// rebuilt.
func (s *Session) Bind(rt *Realtime) {
	rt.On(EventMessage, s.onRoomMessage)
	rt.On(EventDirectMessage, s.onDirectMessage)
	rt.On(EventFileMessage, s.onFileMessage)
	rt.On(EventDMHistory, s.onDMHistory)
	rt.On(EventUserTyping, s.onUserTyping)
	rt.On(EventMessageReaction, s.onReaction)
	rt.On(EventStaringAlert, s.onStaringAlert)
	rt.On(EventUserJoined, s.onUserJoined)
	rt.On(EventUserLeft, s.onUserLeft)
	rt.On(EventUserOnline, s.onUserOnline)
	rt.On(EventUserOffline, s.onUserOffline)
	rt.On(EventUsersList, s.onUsersList)
	rt.On(EventOnlineUsers, s.onUsersList)
	rt.On(EventRoomFull, s.onRoomRejected("room is full"))
	rt.On(EventRoomNotFound, s.onRoomRejected("room not found"))
	rt.On(EventRoomDeleted, s.onRoomDeleted)
	rt.On(EventError, s.onServerError)

	rt.OnConnect(func() {
		ctx := context.Background()
		s.mu.Lock()
		user := s.identity
		active := s.active
		s.mu.Unlock()
		if user == "" {
			return
		}
		if err := s.conn.Send(ctx, CmdRegisterUser, &RegisterPayload{Username: user}); err != nil {
			s.log.Warn().Err(err).Msg("identity registration failed")
			return
		}
		if active.IsRoom() {
			if err := s.conn.Send(ctx, CmdJoin, &JoinPayload{Username: user, Room: active.Name}); err != nil {
				s.log.Warn().Err(err).Str("room", active.Name).Msg("room rejoin failed")
			}
		}
	})
}

func (s *Session) onRoomMessage(raw json.RawMessage) {
	var p RoomMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.recordIncoming(&Message{
		ID:        p.ID,
		Context:   RoomContext(p.Room),
		Author:    p.Username,
		Body:      p.Message,
		ReplyTo:   p.ReplyTo,
		CreatedAt: p.Timestamp,
	})
}

func (s *Session) onDirectMessage(raw json.RawMessage) {
	var p DirectMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.recordIncoming(s.directToMessage(p))
}

// directToMessage maps a DM payload into the log. The context peer is
// whichever side is not the local user, so both echoes of our own sends
// and inbound messages land in the same conversation.
func (s *Session) directToMessage(p DirectMessagePayload) *Message {
	s.mu.Lock()
	me := s.identity
	s.mu.Unlock()
	peer := p.Sender
	if p.Sender == me {
		peer = p.Recipient
	}
	return &Message{
		ID:        p.ID,
		Context:   DirectContext(peer),
		Author:    p.Sender,
		Body:      p.Message,
		CreatedAt: p.Timestamp,
	}
}

func (s *Session) onFileMessage(raw json.RawMessage) {
	var p FileMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	me := s.identity
	s.mu.Unlock()
	msg := &Message{
		ID:        p.ID,
		CreatedAt: p.Timestamp,
		File: &FileInfo{
			Name: p.FileName,
			Size: p.FileSize,
			Mime: p.MimeType,
			Data: p.Data,
		},
	}
	if p.IsDM {
		peer := p.Sender
		if p.Sender == me {
			peer = p.Recipient
		}
		msg.Context = DirectContext(peer)
		msg.Author = p.Sender
	} else {
		msg.Context = RoomContext(p.Room)
		msg.Author = p.Username
	}
	s.recordIncoming(msg)
}

func (s *Session) onDMHistory(raw json.RawMessage) {
	var p DMHistoryPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	for _, dm := range p.History {
		s.recordIncoming(s.directToMessage(dm))
	}
}

func (s *Session) onUserTyping(raw json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.RecordTyping(p.Username)
}

// applyReaction toggles username on the emoji's reactor list for a
// logged message.
func (s *Session) applyReaction(messageID, emoji, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.byID[messageID]
	if msg == nil {
		return
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}
	users := msg.Reactions[emoji]
	for i, u := range users {
		if u == username {
			users = append(users[:i], users[i+1:]...)
			if len(users) == 0 {
				delete(msg.Reactions, emoji)
			} else {
				msg.Reactions[emoji] = users
			}
			return
		}
	}
	msg.Reactions[emoji] = append(users, username)
}

func (s *Session) onReaction(raw json.RawMessage) {
	var p ReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	me := s.identity
	s.mu.Unlock()
	if p.Username == me {
		// Echo of our own toggle, already applied locally.
		return
	}
	s.applyReaction(p.MessageID, p.Emoji, p.Username)
}

func (s *Session) onStaringAlert(raw json.RawMessage) {
	var p StaringPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	me := s.identity
	s.mu.Unlock()
	if p.Target == me {
		s.notify(p.Username + " is staring at you")
	}
}

func (s *Session) onUserJoined(raw json.RawMessage) {
	var p RoomEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.setOnline(p.Username, true)
	s.notify(p.Username + " joined the room")
}

func (s *Session) onUserLeft(raw json.RawMessage) {
	var p RoomEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.typing, p.Username)
	text := s.typingTextLocked()
	s.mu.Unlock()
	s.notifyTyping(text)
	s.notify(p.Username + " left the room")
}

func (s *Session) onUserOnline(raw json.RawMessage) {
	var p PresencePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.setOnline(p.Username, true)
}

func (s *Session) onUserOffline(raw json.RawMessage) {
	var p PresencePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.setOnline(p.Username, false)
}

func (s *Session) onUsersList(raw json.RawMessage) {
	var p UsersListPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	s.online = make(map[string]bool, len(p.Users))
	for _, u := range p.Users {
		s.online[u] = true
	}
	s.mu.Unlock()
}

// onRoomRejected handles the server refusing a join. The active context
// reverts to none so the client is not left believing it is in a room
// the server never admitted it to.
func (s *Session) onRoomRejected(reason string) EventHandler {
	return func(raw json.RawMessage) {
		var p RoomEventPayload
		_ = json.Unmarshal(raw, &p)
		s.mu.Lock()
		room := s.active.Name
		if p.Room != "" {
			room = p.Room
		}
		if s.active.IsRoom() && (p.Room == "" || s.active.Name == p.Room) {
			s.active = ChatContext{}
		}
		s.mu.Unlock()
		s.notify("could not join " + room + ": " + reason)
	}
}

func (s *Session) onRoomDeleted(raw json.RawMessage) {
	var p RoomEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.mu.Lock()
	if s.active.IsRoom() && s.active.Name == p.Room {
		s.active = ChatContext{}
	}
	s.mu.Unlock()
	s.notify("room " + p.Room + " was deleted")
}

func (s *Session) onServerError(raw json.RawMessage) {
	var p ErrorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	s.log.Warn().Str("message", p.Message).Msg("server error")
	s.notify(p.Message)
}

func (s *Session) setOnline(username string, online bool) {
	if username == "" {
		return
	}
	s.mu.Lock()
	if online {
		s.online[username] = true
	} else {
		delete(s.online, username)
	}
	s.mu.Unlock()
}

func (s *Session) notify(text string) {
	if s.cfg.OnNotification != nil {
		s.cfg.OnNotification(text)
	}
}
