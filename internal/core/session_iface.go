package core

import "errors"

// SessionID is the server-assigned identity of one connected client for the
// lifetime of its connection.
type SessionID string

// Frame is one encoded outbound message.
type Frame []byte

var ErrConnClosed = errors.New("connection closed")

// ClientConnection is the outbound half of a client transport.
// Owned by the adapter; the room only sends and, on leave, closes it.
type ClientConnection interface {
	// TrySend must not block. It returns an error when the frame was not queued.
	TrySend(Frame) error
	Close()
}
