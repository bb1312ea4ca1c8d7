// Package physics is the in-process stand-in for the body simulation
// collaborator. The World owns every body in a dense slice; callers only
// ever hold a Handle.
package physics

import (
	"sync"

	"github.com/dkeye/Gallery/internal/domain"
)

// Handle addresses a body slot. The generation guards against a stale handle
// reaching a slot that has since been reused.
type Handle struct {
	index      uint32
	generation uint32
}

// Valid reports whether h was issued by a World at all. The zero Handle is never issued.
func (h Handle) Valid() bool { return h.generation != 0 }

type body struct {
	position   domain.Vec3
	generation uint32
	alive      bool
}

type World struct {
	mu     sync.Mutex
	bodies []body
	free   []uint32
}

func NewWorld() *World {
	return &World{}
}

// CreateBody allocates a body at pos and returns its handle.
func (w *World) CreateBody(pos domain.Vec3) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()

	var idx uint32
	if n := len(w.free); n > 0 {
		idx = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		idx = uint32(len(w.bodies))
		w.bodies = append(w.bodies, body{})
	}
	b := &w.bodies[idx]
	b.generation++
	b.alive = true
	b.position = pos
	return Handle{index: idx, generation: b.generation}
}

func (w *World) lookup(h Handle) *body {
	if !h.Valid() || int(h.index) >= len(w.bodies) {
		return nil
	}
	b := &w.bodies[h.index]
	if !b.alive || b.generation != h.generation {
		return nil
	}
	return b
}

func (w *World) Position(h Handle) (domain.Vec3, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.lookup(h)
	if b == nil {
		return domain.Vec3{}, false
	}
	return b.position, true
}

// SetPosition teleports the body. Positions are client-reported, the world does not validate them.
func (w *World) SetPosition(h Handle, pos domain.Vec3) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.lookup(h)
	if b == nil {
		return false
	}
	b.position = pos
	return true
}

// RemoveBody frees the slot. Removing an unknown or stale handle is a no-op.
func (w *World) RemoveBody(h Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.lookup(h)
	if b == nil {
		return
	}
	b.alive = false
	w.free = append(w.free, h.index)
}

// Len returns the number of live bodies.
func (w *World) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bodies) - len(w.free)
}
