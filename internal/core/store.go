package core

import (
	"errors"
	"slices"
)

var ErrDuplicateSession = errors.New("session already present")

// Store maps session id to Player for one room. It is owned by the room
// loop and is not safe for concurrent use.
type Store struct {
	order   []SessionID
	players map[SessionID]*Player
}

func NewStore() *Store {
	return &Store{players: make(map[SessionID]*Player)}
}

func (s *Store) Len() int { return len(s.order) }

func (s *Store) Has(sid SessionID) bool {
	_, ok := s.players[sid]
	return ok
}

func (s *Store) Get(sid SessionID) (*Player, bool) {
	p, ok := s.players[sid]
	return p, ok
}

func (s *Store) Insert(p *Player) error {
	if _, ok := s.players[p.SessionID]; ok {
		return ErrDuplicateSession
	}
	s.players[p.SessionID] = p
	s.order = append(s.order, p.SessionID)
	return nil
}

func (s *Store) Remove(sid SessionID) (*Player, bool) {
	p, ok := s.players[sid]
	if !ok {
		return nil, false
	}
	delete(s.players, sid)
	s.order = slices.DeleteFunc(s.order, func(id SessionID) bool { return id == sid })
	return p, true
}

// IDs returns session ids in insertion order.
func (s *Store) IDs() []SessionID { return slices.Clone(s.order) }

// Snapshot copies every player.
func (s *Store) Snapshot() PlayerMap {
	m := PlayerMap{
		order:   slices.Clone(s.order),
		players: make(map[SessionID]Player, len(s.order)),
	}
	for _, sid := range s.order {
		m.players[sid] = *s.players[sid]
	}
	return m
}

func (s *Store) Reset() {
	s.order = nil
	clear(s.players)
}
