package core

import (
	"context"
	"errors"

	"github.com/dkeye/Gallery/internal/domain"
)

var (
	ErrCapacityExceeded = errors.New("room is full")
	ErrRoomClosed       = errors.New("room is closed")
)

// RoomService is the core-facing API of a room. Every call is serialized
// through the room's own loop; callers on any goroutine may use it.
type RoomService interface {
	Name() domain.RoomName
	Info() RoomInfo

	// Join admits a new session. The returned snapshot is the player map
	// as it was before the session was added.
	Join(ctx context.Context, user domain.UserID, conn ClientConnection) (SessionID, PlayerMap, error)
	// Leave removes the session. Unknown sessions are ignored.
	Leave(sid SessionID)
	// Deliver queues one inbound frame from sid for dispatch.
	Deliver(sid SessionID, data Frame)
	Snapshot(ctx context.Context) (PlayerMap, error)

	Dispose()
	Done() <-chan struct{}
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	PlayerCount int             `json:"client_count"`
	MaxClients  int             `json:"max_clients"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	StopRoom(name domain.RoomName) bool
}
