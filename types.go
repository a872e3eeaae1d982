package chatterhub

import "encoding/json"

// ============================================================================
// Wire Envelope
// ============================================================================

// Envelope is the wire format for all server-pushed events.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server command.
type Command struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Outbound command types.
const (
	CmdRegisterUser    = "register_user"
	CmdJoin            = "join"
	CmdLeave           = "leave"
	CmdMessage         = "message"
	CmdDirectMessage   = "direct_message"
	CmdTyping          = "typing"
	CmdFileMessage     = "file_message"
	CmdMessageReaction = "message_reaction"
	CmdGetDMHistory    = "get_dm_history"
	CmdGetOnlineUsers  = "get_online_users"
	CmdStaring         = "staring"
)

// Inbound event types.
const (
	EventConnectionEstablished = "connection_established"
	EventMessage               = "message"
	EventUserJoined            = "user_joined"
	EventUserLeft              = "user_left"
	EventUserOnline            = "user_online"
	EventUserOffline           = "user_offline"
	EventRoomFull              = "room_full"
	EventRoomNotFound          = "room_not_found"
	EventRoomDeleted           = "room_deleted"
	EventUsersList             = "users_list"
	EventOnlineUsers           = "online_users"
	EventUserTyping            = "user_typing"
	EventDirectMessage         = "direct_message"
	EventDMHistory             = "dm_history"
	EventFileMessage           = "file_message"
	EventMessageReaction       = "message_reaction"
	EventStaringAlert          = "staring_alert"
	EventError                 = "error"
)

// ============================================================================
// Event Payload Types
// ============================================================================

// ReplyRef is a display back-reference to an earlier message.
type ReplyRef struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
}

// RoomMessagePayload carries a room broadcast message.
type RoomMessagePayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Room      string    `json:"room"`
	Message   string    `json:"message"`
	ReplyTo   *ReplyRef `json:"replyTo,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
}

// DirectMessagePayload carries a two-party private message.
type DirectMessagePayload struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// FileMessagePayload carries a file or image attachment. Data is the
// base64-encoded file content.
type FileMessagePayload struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	Room      string `json:"room,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	MimeType  string `json:"mimeType"`
	Data      string `json:"data"`
	IsDM      bool   `json:"isDm"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TypingPayload is sent while a user is composing in a room.
type TypingPayload struct {
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}

// ReactionPayload toggles an emoji reaction on a message.
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	Username  string `json:"username"`
	Room      string `json:"room,omitempty"`
}

// StaringPayload is the "staring" easter egg, both directions.
type StaringPayload struct {
	Username string `json:"username"`
	Target   string `json:"target"`
	Room     string `json:"room"`
}

// JoinPayload joins or leaves a room.
type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// RegisterPayload announces the user's identity after connecting.
type RegisterPayload struct {
	Username string `json:"username"`
}

// PresencePayload reports one user going online or offline.
type PresencePayload struct {
	Username string `json:"username"`
}

// UsersListPayload replaces the full online-users view.
type UsersListPayload struct {
	Users []string `json:"users"`
}

// RoomEventPayload is sent for room_full, room_not_found, room_deleted,
// user_joined and user_left.
type RoomEventPayload struct {
	Room     string `json:"room,omitempty"`
	Username string `json:"username,omitempty"`
}

// DMHistoryRequest pages through the direct-message history of two users.
type DMHistoryRequest struct {
	User1 string `json:"user1"`
	User2 string `json:"user2"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// DMHistoryPayload is the server's reply to a get_dm_history request.
type DMHistoryPayload struct {
	History []DirectMessagePayload `json:"history"`
}

// ErrorPayload is a server-side error surfaced as an event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ============================================================================
// Session Model
// ============================================================================

// ContextKind discriminates the active chat context.
type ContextKind int

const (
	ContextNone ContextKind = iota
	ContextRoom
	ContextDirect
)

// ChatContext is the tagged union {None | Room(name) | DirectMessage(peer)}.
// Exactly one context is active at a time.
type ChatContext struct {
	Kind ContextKind `json:"kind"`
	Name string      `json:"name,omitempty"`
}

// RoomContext returns a room context.
func RoomContext(name string) ChatContext {
	return ChatContext{Kind: ContextRoom, Name: name}
}

// DirectContext returns a direct-message context with the given peer.
func DirectContext(peer string) ChatContext {
	return ChatContext{Kind: ContextDirect, Name: peer}
}

func (c ChatContext) IsRoom() bool   { return c.Kind == ContextRoom }
func (c ChatContext) IsDirect() bool { return c.Kind == ContextDirect }
func (c ChatContext) IsNone() bool   { return c.Kind == ContextNone }

// DeliveryStatus tracks a message through the send pipeline. Transitions
// are monotonically non-decreasing; Queued is only entered from Composing
// while offline.
type DeliveryStatus int

const (
	StatusComposing DeliveryStatus = iota
	StatusQueued
	StatusSent
	StatusDelivered
	StatusRead
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusComposing:
		return "composing"
	case StatusQueued:
		return "queued"
	case StatusSent:
		return "sent"
	case StatusDelivered:
		return "delivered"
	case StatusRead:
		return "read"
	default:
		return "unknown"
	}
}

// FileInfo describes an attachment carried by a message.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
	Data string `json:"data,omitempty"` // base64
}

// Message is one chat message or file attachment as tracked by the session.
// ID is client-generated, assigned once at creation, and stable across
// retries: it is the dedup key for queue-replay echoes.
type Message struct {
	ID        string              `json:"id"`
	Context   ChatContext         `json:"context"`
	Author    string              `json:"author"`
	Body      string              `json:"body,omitempty"`
	File      *FileInfo           `json:"file,omitempty"`
	ReplyTo   *ReplyRef           `json:"replyTo,omitempty"`
	CreatedAt int64               `json:"createdAt"` // unix seconds, client clock
	Status    DeliveryStatus      `json:"status"`
	Reactions map[string][]string `json:"reactions,omitempty"` // emoji -> usernames
}

// wireCommand maps a session message to its outbound command. The same
// mapping serves the initial send and queue replay, so a replayed message
// goes out identical to the original attempt, id included.
func wireCommand(m *Message) (string, any) {
	if m.File != nil {
		p := &FileMessagePayload{
			ID:        m.ID,
			FileName:  m.File.Name,
			FileSize:  m.File.Size,
			MimeType:  m.File.Mime,
			Data:      m.File.Data,
			IsDM:      m.Context.IsDirect(),
			Timestamp: m.CreatedAt,
		}
		if m.Context.IsDirect() {
			p.Sender = m.Author
			p.Recipient = m.Context.Name
		} else {
			p.Username = m.Author
			p.Room = m.Context.Name
		}
		return CmdFileMessage, p
	}
	if m.Context.IsDirect() {
		return CmdDirectMessage, &DirectMessagePayload{
			ID:        m.ID,
			Sender:    m.Author,
			Recipient: m.Context.Name,
			Message:   m.Body,
			Timestamp: m.CreatedAt,
		}
	}
	return CmdMessage, &RoomMessagePayload{
		ID:        m.ID,
		Username:  m.Author,
		Room:      m.Context.Name,
		Message:   m.Body,
		ReplyTo:   m.ReplyTo,
		Timestamp: m.CreatedAt,
	}
}
