package core

import (
	"bytes"
	"slices"

	"github.com/goccy/go-json"

	"github.com/dkeye/Gallery/internal/domain"
	"github.com/dkeye/Gallery/internal/physics"
)

// Player is the authoritative replicated state of one session's avatar.
// Body is a handle into the room's body world, never a pointer.
type Player struct {
	SessionID      SessionID
	UserID         domain.UserID
	Position       domain.Vec3
	Rotation       domain.Vec3
	AnimationState domain.AnimationState
	Body           physics.Handle
}

type playerJSON struct {
	ID             SessionID             `json:"id"`
	UserID         domain.UserID         `json:"userId"`
	X              float64               `json:"x"`
	Y              float64               `json:"y"`
	Z              float64               `json:"z"`
	RX             float64               `json:"rx"`
	RY             float64               `json:"ry"`
	RZ             float64               `json:"rz"`
	AnimationState domain.AnimationState `json:"animationState"`
}

func (p Player) MarshalJSON() ([]byte, error) {
	return json.Marshal(playerJSON{
		ID:             p.SessionID,
		UserID:         p.UserID,
		X:              p.Position.X,
		Y:              p.Position.Y,
		Z:              p.Position.Z,
		RX:             p.Rotation.X,
		RY:             p.Rotation.Y,
		RZ:             p.Rotation.Z,
		AnimationState: p.AnimationState,
	})
}

func (p *Player) UnmarshalJSON(b []byte) error {
	var w playerJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*p = Player{
		SessionID:      w.ID,
		UserID:         w.UserID,
		Position:       domain.Vec3{X: w.X, Y: w.Y, Z: w.Z},
		Rotation:       domain.Vec3{X: w.RX, Y: w.RY, Z: w.RZ},
		AnimationState: w.AnimationState,
	}
	return nil
}

// PlayerMap is an immutable copy of the room's players at one point in time.
// It serializes as a JSON object keyed by session id, in join order.
type PlayerMap struct {
	order   []SessionID
	players map[SessionID]Player
}

func (m PlayerMap) Len() int { return len(m.order) }

func (m PlayerMap) Get(sid SessionID) (Player, bool) {
	p, ok := m.players[sid]
	return p, ok
}

func (m PlayerMap) IDs() []SessionID { return slices.Clone(m.order) }

func (m PlayerMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, sid := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(sid))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.players[sid])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a map decoded from the wire. JSON objects carry no
// order, so the restored map is ordered by session id.
func (m *PlayerMap) UnmarshalJSON(b []byte) error {
	var raw map[SessionID]Player
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.players = make(map[SessionID]Player, len(raw))
	m.order = make([]SessionID, 0, len(raw))
	for sid, p := range raw {
		m.players[sid] = p
		m.order = append(m.order, sid)
	}
	slices.Sort(m.order)
	return nil
}
