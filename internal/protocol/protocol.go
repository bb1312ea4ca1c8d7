// Package protocol describes the JSON envelope exchanged with clients over
// the room WebSocket and the payload shapes carried inside it.
package protocol

import (
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Inbound (client -> server) message types.
const (
	TypeMove            = "move"
	TypeTeleport        = "teleport"
	TypeAnimationState  = "animationState"
	TypePrivateMessage  = "sending private message"
	TypeAnswerCall      = "answerCall"
	TypeSendingSignal   = "sending signal"
	TypeReturningSignal = "returning signal"
	TypeICECandidate    = "iceCandidate"
	TypePing            = "ping"
)

// Outbound (server -> client) event names.
const (
	EventID               = "id"
	EventSpawnPlayer      = "spawnPlayer"
	EventRemovePlayer     = "removePlayer"
	EventMove             = "move"
	EventAnimationState   = "animationState"
	EventLeave            = "leave"
	EventUserJoined       = "user joined"
	EventCallAccepted     = "callAccepted"
	EventReturnedSignal   = "receiving returned signal"
	EventICECandidate     = "iceCandidate"
	EventUserDisconnected = "user-disconnected"
	EventPong             = "pong"
	EventError            = "error"
)

// Error codes carried by EventError.
const (
	ErrorRoomFull    = "room_full"
	ErrorRoomClosed  = "room_closed"
	ErrorBadIdentity = "bad_identity"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Vec3 is the wire form of a vector whose components are all required.
type Vec3 struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
	Z *float64 `json:"z" validate:"required"`
}

type MovePayload struct {
	X  *float64 `json:"x" validate:"required"`
	Y  *float64 `json:"y" validate:"required"`
	Z  *float64 `json:"z" validate:"required"`
	RX *float64 `json:"rx" validate:"required"`
	RY *float64 `json:"ry" validate:"required"`
	RZ *float64 `json:"rz" validate:"required"`
}

type TeleportPayload struct {
	Position       *Vec3  `json:"position" validate:"required"`
	WorldDirection *Vec3  `json:"worldDirection" validate:"required"`
	AnimationState string `json:"animationState" validate:"required"`
}

// SignalPayload is shared by "sending private message" and "answerCall".
type SignalPayload struct {
	To     string          `json:"to" validate:"required"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

type SendingSignalPayload struct {
	UserToSignalID string          `json:"userToSignalId" validate:"required"`
	CallerID       string          `json:"callerId"`
	Signal         json.RawMessage `json:"signal" validate:"required"`
}

type ReturningSignalPayload struct {
	CallerID string          `json:"callerId" validate:"required"`
	Signal   json.RawMessage `json:"signal" validate:"required"`
}

type ICECandidatePayload struct {
	To        string          `json:"to" validate:"required"`
	Candidate json.RawMessage `json:"candidate" validate:"required"`
}

type IDEvent struct {
	ID         string             `json:"id"`
	Players    any                `json:"players"`
	IceServers []webrtc.ICEServer `json:"iceServers,omitempty"`
}

type PlayersEvent struct {
	Players any `json:"players"`
}

type PlayerEvent struct {
	Player any `json:"player"`
}

type LeaveEvent struct {
	Message string `json:"message"`
}

type UserJoinedEvent struct {
	Signal   json.RawMessage `json:"signal"`
	CallerID string          `json:"callerId"`
}

// SignalEvent is delivered as "callAccepted" and "receiving returned signal".
type SignalEvent struct {
	Signal json.RawMessage `json:"signal"`
	ID     string          `json:"id"`
}

type ICECandidateEvent struct {
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

type UserDisconnectedEvent struct {
	ID string `json:"id"`
}

type ErrorEvent struct {
	Error      string `json:"error"`
	MaxClients int    `json:"maxClients,omitempty"`
}
