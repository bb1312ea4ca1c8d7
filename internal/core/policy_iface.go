package core

import "github.com/dkeye/Gallery/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose outbound queue is full.
// It is called from the room loop and must not call back into the room.
type Policy interface {
	OnBackPressure(room domain.RoomName, sid SessionID) BackpressureAction
}
