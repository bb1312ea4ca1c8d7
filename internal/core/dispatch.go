package core

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/domain"
	"github.com/dkeye/Gallery/internal/metrics"
	"github.com/dkeye/Gallery/internal/physics"
	"github.com/dkeye/Gallery/internal/protocol"
)

var ErrUnknownSession = errors.New("unknown session")

// teleportLift keeps a teleported body clear of the floor.
var teleportLift = domain.Vec3{Y: 0.5}

type handlerFunc func(r *room, from SessionID, env protocol.Envelope) error

var handlers = map[string]handlerFunc{
	protocol.TypeMove:            (*room).handleMove,
	protocol.TypeTeleport:        (*room).handleTeleport,
	protocol.TypeAnimationState:  (*room).handleAnimationState,
	protocol.TypePrivateMessage:  (*room).handlePrivateMessage,
	protocol.TypeAnswerCall:      (*room).handleAnswerCall,
	protocol.TypeSendingSignal:   (*room).handleSendingSignal,
	protocol.TypeReturningSignal: (*room).handleReturningSignal,
	protocol.TypeICECandidate:    (*room).handleICECandidate,
	protocol.TypePing:            (*room).handlePing,
}

// dispatch applies one inbound frame. Nothing that goes wrong here reaches
// the sender or the next message.
func (r *room) dispatch(from SessionID, data Frame) {
	typ := "invalid"
	defer func() {
		if rec := recover(); rec != nil {
			metrics.Messages.WithLabelValues(typ, metrics.ResultPanic).Inc()
			log.Error().Str("module", "core.dispatch").Str("room", string(r.name)).Str("sid", string(from)).Str("type", typ).Interface("panic", rec).Msg("handler panicked, message discarded")
		}
	}()

	if _, ok := r.clients[from]; !ok {
		metrics.Messages.WithLabelValues(typ, metrics.ResultUnknownSession).Inc()
		log.Debug().Str("module", "core.dispatch").Str("sid", string(from)).Msg("message from departed session ignored")
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		metrics.Messages.WithLabelValues(typ, metrics.ResultMalformed).Inc()
		log.Warn().Err(err).Str("module", "core.dispatch").Str("sid", string(from)).Msg("discarding message")
		return
	}

	h, ok := handlers[env.Type]
	if !ok {
		metrics.Messages.WithLabelValues("unknown", metrics.ResultUnknownType).Inc()
		log.Warn().Err(protocol.ErrUnknownType).Str("module", "core.dispatch").Str("sid", string(from)).Str("type", env.Type).Msg("discarding message")
		return
	}
	typ = env.Type

	switch err := h(r, from, env); {
	case err == nil:
		metrics.Messages.WithLabelValues(typ, metrics.ResultOK).Inc()
	case errors.Is(err, ErrUnknownSession):
		metrics.Messages.WithLabelValues(typ, metrics.ResultUnknownSession).Inc()
		log.Debug().Err(err).Str("module", "core.dispatch").Str("sid", string(from)).Str("type", typ).Msg("no-op")
	default:
		metrics.Messages.WithLabelValues(typ, metrics.ResultMalformed).Inc()
		log.Warn().Err(err).Str("module", "core.dispatch").Str("sid", string(from)).Str("type", typ).Msg("discarding message")
	}
}

func (r *room) player(sid SessionID) (*Player, error) {
	p, ok := r.store.Get(sid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sid)
	}
	return p, nil
}

// place moves the body before anything in the store changes, so a failing
// collaborator leaves the player as it was. The body's own position wins.
func (r *room) place(h physics.Handle, pos domain.Vec3) domain.Vec3 {
	r.opts.Bodies.SetPosition(h, pos)
	if got, ok := r.opts.Bodies.Position(h); ok {
		return got
	}
	return pos
}

func (r *room) handleMove(from SessionID, env protocol.Envelope) error {
	p, err := r.player(from)
	if err != nil {
		return err
	}
	var m protocol.MovePayload
	if err := protocol.DecodePayload(env, &m); err != nil {
		return err
	}

	pos := r.place(p.Body, domain.Vec3{X: *m.X, Y: *m.Y, Z: *m.Z})
	p.Position = pos
	p.Rotation = domain.Vec3{X: *m.RX, Y: *m.RY, Z: *m.RZ}

	r.broadcast(protocol.EventMove, protocol.EventMove+":"+string(from), protocol.PlayerEvent{Player: *p})
	return nil
}

func (r *room) handleTeleport(from SessionID, env protocol.Envelope) error {
	p, err := r.player(from)
	if err != nil {
		return err
	}
	var t protocol.TeleportPayload
	if err := protocol.DecodePayload(env, &t); err != nil {
		return err
	}
	anim, err := domain.ParseAnimationState(t.AnimationState)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err)
	}

	pos := r.place(p.Body, domain.Vec3{X: *t.Position.X, Y: *t.Position.Y, Z: *t.Position.Z}.Add(teleportLift))
	p.Position = pos
	p.Rotation = domain.Vec3{X: *t.WorldDirection.X, Y: *t.WorldDirection.Y, Z: *t.WorldDirection.Z}
	p.AnimationState = anim

	r.broadcast(protocol.EventMove, protocol.EventMove+":"+string(from), protocol.PlayerEvent{Player: *p})
	return nil
}

func (r *room) handleAnimationState(from SessionID, env protocol.Envelope) error {
	p, err := r.player(from)
	if err != nil {
		return err
	}
	var raw string
	if err := protocol.DecodePayload(env, &raw); err != nil {
		return err
	}
	anim, err := domain.ParseAnimationState(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrMalformedPayload, err)
	}

	p.AnimationState = anim
	r.broadcast(protocol.EventAnimationState, protocol.EventAnimationState+":"+string(from), protocol.PlayerEvent{Player: *p})
	return nil
}

func (r *room) handlePing(from SessionID, _ protocol.Envelope) error {
	frame, err := protocol.Encode(protocol.EventPong, struct{}{})
	if err != nil {
		return err
	}
	r.sendNow(from, frame)
	return nil
}
