package app

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/domain"
)

// RoomConfig is applied to every room the manager creates.
type RoomConfig struct {
	MaxClients  int
	PatchRate   time.Duration
	SpawnGrid   int
	AutoDispose bool
	IceServers  []webrtc.ICEServer
	Policy      core.Policy

	// NewIDs returns the session id allocator of a fresh room.
	NewIDs func() core.IDAllocator
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)

type RoomManagerImpl struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    RoomConfig

	mu    sync.RWMutex
	rooms map[domain.RoomName]core.RoomService
}

func NewRoomManager(parent context.Context, cfg RoomConfig) *RoomManagerImpl {
	if cfg.NewIDs == nil {
		cfg.NewIDs = core.NewUUIDAllocator
	}
	ctx, cancel := context.WithCancel(parent)
	return &RoomManagerImpl{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		rooms:  make(map[domain.RoomName]core.RoomService),
	}
}

func (m *RoomManagerImpl) GetOrCreate(name domain.RoomName) core.RoomService {
	m.mu.RLock()
	room, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return room
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[name]; ok {
		return room
	}
	room = core.NewRoom(m.ctx, name, core.Options{
		MaxClients:  m.cfg.MaxClients,
		PatchRate:   m.cfg.PatchRate,
		SpawnGrid:   m.cfg.SpawnGrid,
		IDs:         m.cfg.NewIDs(),
		IceServers:  m.cfg.IceServers,
		Policy:      m.cfg.Policy,
		AutoDispose: m.cfg.AutoDispose,
		OnDispose:   m.forget,
	})
	m.rooms[name] = room
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room registered")
	return room
}

func (m *RoomManagerImpl) Get(name domain.RoomName) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[name]
	return room, ok
}

// List returns room infos ordered by name.
func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.RLock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return strings.Compare(string(a.Name), string(b.Name)) })
	return out
}

// StopRoom unregisters and disposes the room. It does not wait for the
// room loop to finish.
func (m *RoomManagerImpl) StopRoom(name domain.RoomName) bool {
	m.mu.Lock()
	room, ok := m.rooms[name]
	delete(m.rooms, name)
	m.mu.Unlock()
	if !ok {
		return false
	}
	room.Dispose()
	log.Info().Str("module", "app.rooms").Str("room", string(name)).Msg("room stopped")
	return true
}

// Shutdown disposes every room and waits for them or for ctx.
func (m *RoomManagerImpl) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]core.RoomService, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	m.cancel()
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// forget drops a room that disposed itself. A newer room under the same
// name is left alone.
func (m *RoomManagerImpl) forget(room core.RoomService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[room.Name()]; ok && cur == room {
		delete(m.rooms, room.Name())
		log.Info().Str("module", "app.rooms").Str("room", string(room.Name())).Msg("room unregistered")
	}
}
