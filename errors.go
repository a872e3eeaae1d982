package chatterhub

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the SDK. Callers should test them with
// errors.Is, since some paths wrap them with additional context.
var (
	// ErrNotConnected is returned by Send while the connection is not in
	// StateConnected. It is recoverable: the caller is expected to queue
	// the message and retry after the next connect.
	ErrNotConnected = errors.New("chatterhub: not connected")

	// ErrMaxAttemptsExceeded is reported once the reconnect budget is
	// exhausted. The session is over until the user reconnects manually.
	ErrMaxAttemptsExceeded = errors.New("chatterhub: reconnect attempts exhausted")

	// ErrRateLimited rejects a send that exceeds the local message cap.
	// The rejected message never reaches the network.
	ErrRateLimited = errors.New("chatterhub: message rate limit reached")

	ErrInvalidIdentity = errors.New("chatterhub: username must not be empty")
	ErrInvalidRoom     = errors.New("chatterhub: room name must not be empty")
	ErrNoContext       = errors.New("chatterhub: no active chat context")
	ErrEmptyMessage    = errors.New("chatterhub: message is empty")
	ErrMessageTooLong  = errors.New("chatterhub: message exceeds 1000 characters")

	// Server-reported join failures. The session reverts to its pre-join
	// state when one of these arrives.
	ErrRoomFull     = errors.New("chatterhub: room is full")
	ErrRoomNotFound = errors.New("chatterhub: room not found")
)

// PersistenceError wraps a failure of the local durable store. It is
// non-fatal: queuing degrades to memory only, at the cost of losing the
// queue on restart.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("chatterhub: persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// APIError represents an error reported by the HTTP API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
