package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/domain"
	"github.com/dkeye/Gallery/internal/metrics"
	"github.com/dkeye/Gallery/internal/physics"
	"github.com/dkeye/Gallery/internal/protocol"
)

const (
	DefaultMaxClients = 30
	DefaultPatchRate  = 100 * time.Millisecond
	DefaultSpawnGrid  = 6

	inboxSize = 256
)

// Bodies is the physics collaborator as seen by a room.
type Bodies interface {
	CreateBody(pos domain.Vec3) physics.Handle
	SetPosition(h physics.Handle, pos domain.Vec3) bool
	Position(h physics.Handle) (domain.Vec3, bool)
	RemoveBody(h physics.Handle)
}

// Options configure a room. A zero PatchRate flushes after every step.
type Options struct {
	MaxClients int
	PatchRate  time.Duration
	SpawnGrid  int
	IDs        IDAllocator
	Bodies     Bodies
	Rand       *rand.Rand
	IceServers []webrtc.ICEServer

	// Policy handles full outbound queues; nil kicks the member.
	Policy Policy

	// AutoDispose tears the room down when its last player leaves.
	AutoDispose bool
	OnDispose   func(RoomService)
}

type client struct {
	conn   ClientConnection
	kicked bool
}

// room is a single sequential actor. Store, clients and scheduler are only
// touched from run.
type room struct {
	name   domain.RoomName
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc

	inbox chan func()
	done  chan struct{}
	count atomic.Int32

	store    *Store
	clients  map[SessionID]*client
	sched    *scheduler
	kicks    []SessionID
	stopping bool
	intN     func(int) int
}

func NewRoom(parent context.Context, name domain.RoomName, opts Options) RoomService {
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.SpawnGrid <= 0 {
		opts.SpawnGrid = DefaultSpawnGrid
	}
	if opts.IDs == nil {
		opts.IDs = NewUUIDAllocator()
	}
	if opts.Bodies == nil {
		opts.Bodies = physics.NewWorld()
	}

	ctx, cancel := context.WithCancel(parent)
	r := &room{
		name:    name,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		store:   NewStore(),
		clients: make(map[SessionID]*client),
		sched:   newScheduler(opts.PatchRate),
		intN:    rand.IntN,
	}
	if opts.Rand != nil {
		r.intN = opts.Rand.IntN
	}

	metrics.RoomsActive.Inc()
	log.Info().Str("module", "core.room").Str("room", string(name)).Msg("room created")
	go r.run()
	return r
}

func (r *room) Name() domain.RoomName { return r.name }

func (r *room) Info() RoomInfo {
	return RoomInfo{Name: r.name, PlayerCount: int(r.count.Load()), MaxClients: r.opts.MaxClients}
}

func (r *room) Done() <-chan struct{} { return r.done }

func (r *room) Dispose() { r.cancel() }

// submit hands fn to the loop. It reports false once the room is gone.
func (r *room) submit(fn func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

type joinResult struct {
	sid      SessionID
	snapshot PlayerMap
	err      error
}

func (r *room) Join(ctx context.Context, user domain.UserID, conn ClientConnection) (SessionID, PlayerMap, error) {
	reply := make(chan joinResult, 1)
	if !r.submit(func() {
		sid, snap, err := r.join(user, conn)
		reply <- joinResult{sid: sid, snapshot: snap, err: err}
	}) {
		return "", PlayerMap{}, ErrRoomClosed
	}

	select {
	case res := <-reply:
		return res.sid, res.snapshot, res.err
	case <-r.done:
		return "", PlayerMap{}, ErrRoomClosed
	case <-ctx.Done():
		// the loop may still admit the session; take it back out
		go func() {
			select {
			case res := <-reply:
				if res.err == nil {
					r.Leave(res.sid)
				}
			case <-r.done:
			}
		}()
		return "", PlayerMap{}, ctx.Err()
	}
}

func (r *room) Leave(sid SessionID) {
	r.submit(func() { r.leave(sid, "you left") })
}

func (r *room) Deliver(sid SessionID, data Frame) {
	r.submit(func() { r.dispatch(sid, data) })
}

func (r *room) Snapshot(ctx context.Context) (PlayerMap, error) {
	reply := make(chan PlayerMap, 1)
	if !r.submit(func() { reply <- r.store.Snapshot() }) {
		return PlayerMap{}, ErrRoomClosed
	}
	select {
	case m := <-reply:
		return m, nil
	case <-r.done:
		return PlayerMap{}, ErrRoomClosed
	case <-ctx.Done():
		return PlayerMap{}, ctx.Err()
	}
}

func (r *room) run() {
	defer close(r.done)
	defer r.dispose()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("module", "core.room").Str("room", string(r.name)).Interface("panic", rec).Msg("room loop crashed, disposing")
		}
	}()

	for !r.stopping {
		select {
		case fn := <-r.inbox:
			fn()
		case <-r.sched.C():
			r.sched.fired()
		case <-r.ctx.Done():
			return
		}
		r.settle()
	}
}

// settle runs after every loop step: it removes kicked members and flushes
// pending broadcasts when the patch interval allows it.
func (r *room) settle() {
	for {
		r.applyKicks()
		if r.stopping {
			return
		}
		now := time.Now()
		if !r.sched.due(now) {
			break
		}
		r.flush(r.sched.take(now))
	}
	if r.sched.hasPending() {
		r.sched.arm(time.Now())
	}
}

func (r *room) join(user domain.UserID, conn ClientConnection) (SessionID, PlayerMap, error) {
	if r.stopping {
		return "", PlayerMap{}, ErrRoomClosed
	}
	if r.store.Len() >= r.opts.MaxClients {
		metrics.JoinsRejected.WithLabelValues("capacity").Inc()
		log.Warn().Str("module", "core.room").Str("room", string(r.name)).Str("user", string(user)).Int("max_clients", r.opts.MaxClients).Msg("join rejected, room full")
		return "", PlayerMap{}, ErrCapacityExceeded
	}

	sid := r.opts.IDs.Next()
	for r.store.Has(sid) || r.clients[sid] != nil {
		sid = r.opts.IDs.Next()
	}

	snapshot := r.store.Snapshot()
	spawn := domain.Vec3{
		X: float64(r.intN(r.opts.SpawnGrid) + 1),
		Y: 1,
		Z: float64(r.intN(r.opts.SpawnGrid) + 1),
	}
	body := r.opts.Bodies.CreateBody(spawn)
	if pos, ok := r.opts.Bodies.Position(body); ok {
		spawn = pos
	}
	p := &Player{
		SessionID:      sid,
		UserID:         user,
		Position:       spawn,
		AnimationState: domain.AnimationIdle,
		Body:           body,
	}
	if err := r.store.Insert(p); err != nil {
		r.opts.Bodies.RemoveBody(p.Body)
		return "", PlayerMap{}, err
	}
	r.clients[sid] = &client{conn: conn}
	r.count.Store(int32(r.store.Len()))
	metrics.Players.WithLabelValues(string(r.name)).Set(float64(r.store.Len()))

	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Str("user", string(user)).Int("players", r.store.Len()).Msg("player joined")

	if frame, err := protocol.Encode(protocol.EventID, protocol.IDEvent{
		ID:         string(sid),
		Players:    snapshot,
		IceServers: r.opts.IceServers,
	}); err == nil {
		r.sendNow(sid, frame)
	} else {
		log.Error().Err(err).Str("module", "core.room").Str("sid", string(sid)).Msg("encode id event")
	}
	r.broadcast(protocol.EventSpawnPlayer, "", protocol.PlayersEvent{Players: r.store.Snapshot()})
	return sid, snapshot, nil
}

func (r *room) leave(sid SessionID, reason string) {
	p, hadPlayer := r.store.Remove(sid)
	c := r.clients[sid]
	if !hadPlayer && c == nil {
		return
	}
	delete(r.clients, sid)
	if hadPlayer {
		r.opts.Bodies.RemoveBody(p.Body)
	}
	if c != nil {
		if frame, err := protocol.Encode(protocol.EventLeave, protocol.LeaveEvent{Message: reason}); err == nil {
			_ = c.conn.TrySend(frame)
		}
		c.conn.Close()
	}
	r.count.Store(int32(r.store.Len()))
	metrics.Players.WithLabelValues(string(r.name)).Set(float64(r.store.Len()))

	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Str("reason", reason).Int("players", r.store.Len()).Msg("player left")

	r.broadcast(protocol.EventRemovePlayer, "", protocol.PlayersEvent{Players: r.store.Snapshot()})
	r.broadcast(protocol.EventUserDisconnected, "", protocol.UserDisconnectedEvent{ID: string(sid)})

	if r.opts.AutoDispose && r.store.Len() == 0 {
		r.stopping = true
	}
}

// broadcast encodes payload now and queues it for every session currently
// in the room, the originator included.
func (r *room) broadcast(event, key string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("event", event).Msg("encode broadcast")
		return
	}
	r.sched.push(key, frame, r.store.IDs())
}

func (r *room) flush(batch []outbound) {
	sent := 0
	for _, o := range batch {
		for _, sid := range o.to {
			c, ok := r.clients[sid]
			if !ok || c.kicked {
				continue
			}
			if err := c.conn.TrySend(o.frame); err != nil {
				r.sendFailed(sid, c, err)
				continue
			}
			sent++
		}
	}
	metrics.Flushes.WithLabelValues(string(r.name)).Inc()
	metrics.FramesSent.WithLabelValues("broadcast").Add(float64(sent))
	log.Debug().Str("module", "core.room").Str("room", string(r.name)).Int("events", len(batch)).Int("frames", sent).Msg("flush")
}

// sendNow writes a direct message without waiting for the patch interval.
func (r *room) sendNow(sid SessionID, frame Frame) bool {
	c, ok := r.clients[sid]
	if !ok || c.kicked {
		return false
	}
	if err := c.conn.TrySend(frame); err != nil {
		r.sendFailed(sid, c, err)
		return false
	}
	metrics.FramesSent.WithLabelValues("direct").Inc()
	return true
}

func (r *room) sendFailed(sid SessionID, c *client, err error) {
	if errors.Is(err, ErrConnClosed) {
		// the adapter reports the leave itself
		log.Debug().Str("module", "core.room").Str("sid", string(sid)).Msg("send on closed connection")
		return
	}
	action := KickMember
	if r.opts.Policy != nil {
		action = r.opts.Policy.OnBackPressure(r.name, sid)
	}
	switch action {
	case KickMember:
		c.kicked = true
		r.kicks = append(r.kicks, sid)
		metrics.BackpressureKicks.Inc()
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("kicking slow member")
	case DropFrame:
		log.Debug().Err(err).Str("module", "core.room").Str("sid", string(sid)).Msg("frame dropped")
	case NoAction:
		log.Warn().Err(err).Str("module", "core.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("send failed, policy took no action")
	default:
		log.Warn().Err(err).Str("module", "core.room").Str("sid", string(sid)).Int("action", int(action)).Msg("unknown backpressure action, frame dropped")
	}
}

func (r *room) applyKicks() {
	for len(r.kicks) > 0 {
		sid := r.kicks[0]
		r.kicks = r.kicks[1:]
		r.leave(sid, "connection too slow")
	}
}

// dispose discards all room state. Pending broadcasts get one last flush.
func (r *room) dispose() {
	r.stopping = true
	r.cancel()
	if r.sched.hasPending() {
		r.flush(r.sched.take(time.Now()))
	}
	r.sched.stop()
	for sid, c := range r.clients {
		c.conn.Close()
		delete(r.clients, sid)
	}
	for _, sid := range r.store.IDs() {
		if p, ok := r.store.Get(sid); ok {
			r.opts.Bodies.RemoveBody(p.Body)
		}
	}
	r.store.Reset()
	r.count.Store(0)

	metrics.RoomsActive.Dec()
	metrics.Players.DeleteLabelValues(string(r.name))
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Msg("room disposed")

	if r.opts.OnDispose != nil {
		r.opts.OnDispose(r)
	}
}
