// Package metrics holds the prometheus collectors of the room server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gallery"

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Rooms currently running.",
	})

	Players = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "players",
		Help:      "Players currently joined, per room.",
	}, []string{"room"})

	JoinsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "joins_rejected_total",
		Help:      "Join attempts refused, by reason.",
	}, []string{"reason"})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Inbound messages by type and dispatch result.",
	}, []string{"type", "result"})

	Relayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "relay_total",
		Help:      "Signaling relay attempts by delivered event, signal kind and result.",
	}, []string{"event", "kind", "result"})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flushes_total",
		Help:      "Broadcast flushes per room.",
	}, []string{"room"})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_sent_total",
		Help:      "Frames handed to client connections, by delivery mode.",
	}, []string{"mode"})

	BackpressureKicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backpressure_kicks_total",
		Help:      "Members removed because their outbound queue was full.",
	})
)

// Dispatch results.
const (
	ResultOK             = "ok"
	ResultMalformed      = "malformed"
	ResultUnknownType    = "unknown_type"
	ResultUnknownSession = "unknown_session"
	ResultPanic          = "panic"
	ResultRateLimited    = "rate_limited"
	ResultDropped        = "dropped"
)
