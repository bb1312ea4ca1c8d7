package core

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/metrics"
	"github.com/dkeye/Gallery/internal/protocol"
)

// relay forwards one addressed payload to exactly one other session in this
// room. Unknown targets and self-addressed payloads are dropped silently;
// the peers time out on their own.
func (r *room) relay(from, to SessionID, event, kind string, payload any) {
	if to == from {
		metrics.Relayed.WithLabelValues(event, kind, metrics.ResultDropped).Inc()
		log.Debug().Str("module", "core.relay").Str("from", string(from)).Str("event", event).Msg("self-addressed relay dropped")
		return
	}
	if _, ok := r.clients[to]; !ok {
		metrics.Relayed.WithLabelValues(event, kind, metrics.ResultDropped).Inc()
		log.Debug().Str("module", "core.relay").Str("from", string(from)).Str("to", string(to)).Str("event", event).Msg("relay target unknown, dropped")
		return
	}

	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.relay").Str("event", event).Msg("encode relay")
		return
	}
	result := metrics.ResultOK
	if !r.sendNow(to, frame) {
		result = metrics.ResultDropped
	}
	metrics.Relayed.WithLabelValues(event, kind, result).Inc()
	log.Debug().Str("module", "core.relay").Str("from", string(from)).Str("to", string(to)).Str("event", event).Str("kind", kind).Str("result", result).Msg("relay")
}

func (r *room) handlePrivateMessage(from SessionID, env protocol.Envelope) error {
	var p protocol.SignalPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	r.relay(from, SessionID(p.To), protocol.EventUserJoined, protocol.ClassifySignal(p.Signal),
		protocol.UserJoinedEvent{Signal: p.Signal, CallerID: string(from)})
	return nil
}

func (r *room) handleAnswerCall(from SessionID, env protocol.Envelope) error {
	var p protocol.SignalPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	r.relay(from, SessionID(p.To), protocol.EventCallAccepted, protocol.ClassifySignal(p.Signal),
		protocol.SignalEvent{Signal: p.Signal, ID: string(from)})
	return nil
}

// The client-supplied callerId is ignored: the caller is always the sender.
func (r *room) handleSendingSignal(from SessionID, env protocol.Envelope) error {
	var p protocol.SendingSignalPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	r.relay(from, SessionID(p.UserToSignalID), protocol.EventUserJoined, protocol.ClassifySignal(p.Signal),
		protocol.UserJoinedEvent{Signal: p.Signal, CallerID: string(from)})
	return nil
}

func (r *room) handleReturningSignal(from SessionID, env protocol.Envelope) error {
	var p protocol.ReturningSignalPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	r.relay(from, SessionID(p.CallerID), protocol.EventReturnedSignal, protocol.ClassifySignal(p.Signal),
		protocol.SignalEvent{Signal: p.Signal, ID: string(from)})
	return nil
}

func (r *room) handleICECandidate(from SessionID, env protocol.Envelope) error {
	var p protocol.ICECandidatePayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		return err
	}
	if _, err := protocol.DecodeCandidate(p.Candidate); err != nil {
		return fmt.Errorf("%w: candidate: %v", protocol.ErrMalformedPayload, err)
	}
	r.relay(from, SessionID(p.To), protocol.EventICECandidate, protocol.SignalCandidate,
		protocol.ICECandidateEvent{Candidate: p.Candidate, From: string(from)})
	return nil
}
