package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gallery/internal/core"
	"github.com/dkeye/Gallery/internal/domain"
)

var ErrSessionBound = errors.New("session already bound")

// Session ids are only unique within a room.
type sessionKey struct {
	room domain.RoomName
	sid  core.SessionID
}

// Registry keeps the identities behind client tokens and the sessions that
// are currently connected.
type Registry struct {
	mu       sync.RWMutex
	users    map[string]*domain.User
	sessions map[sessionKey]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		users:    make(map[string]*domain.User),
		sessions: make(map[sessionKey]domain.UserID),
	}
}

// GetOrCreateUser returns the user bound to a client token, creating a
// guest on first sight.
func (r *Registry) GetOrCreateUser(token string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[token]; ok {
		return *u
	}
	u := domain.NewGuest()
	r.users[token] = u
	log.Info().Str("module", "app.registry").Str("user", string(u.ID)).Msg("created new user")
	return *u
}

func (r *Registry) UpdateUsername(token, name string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[token]
	if !ok {
		u = domain.NewGuest()
		r.users[token] = u
	}
	if err := u.SetUsername(name); err != nil {
		return *u, err
	}
	log.Info().Str("module", "app.registry").Str("user", string(u.ID)).Str("username", u.Username).Msg("updated username")
	return *u, nil
}

// Bind records a connected session. A second bind of the same session is
// refused.
func (r *Registry) Bind(room domain.RoomName, sid core.SessionID, user domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{room: room, sid: sid}
	if owner, ok := r.sessions[key]; ok {
		log.Warn().Str("module", "app.registry").Str("room", string(room)).Str("sid", string(sid)).Str("owner", string(owner)).Str("user", string(user)).Msg("session already bound")
		return ErrSessionBound
	}
	r.sessions[key] = user
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("bound session")
	return nil
}

func (r *Registry) Unbind(room domain.RoomName, sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey{room: room, sid: sid})
	log.Debug().Str("module", "app.registry").Str("room", string(room)).Str("sid", string(sid)).Msg("unbind session")
}

func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
