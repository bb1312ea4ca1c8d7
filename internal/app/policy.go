package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/domain"
)

// SimplePolicy removes any member that cannot keep up.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomName, sid core.SessionID) core.BackpressureAction {
	return core.KickMember
}

// DropPolicy keeps slow members and loses the frame instead.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(room domain.RoomName, sid core.SessionID) core.BackpressureAction {
	log.Debug().Str("module", "app.policy").Str("room", string(room)).Str("sid", string(sid)).Msg("dropping frame for slow member")
	return core.DropFrame
}

// PolicyByName maps the backpressure config value to a policy.
func PolicyByName(name string) core.Policy {
	switch name {
	case "drop":
		return DropPolicy{}
	default:
		return SimplePolicy{}
	}
}
