package core

import (
	"strconv"

	"github.com/google/uuid"
)

// IDAllocator issues session ids. Implementations never repeat an id within
// their own lifetime.
type IDAllocator interface {
	Next() SessionID
}

type uuidAllocator struct{}

func NewUUIDAllocator() IDAllocator { return uuidAllocator{} }

func (uuidAllocator) Next() SessionID { return SessionID(uuid.NewString()) }

// SequentialAllocator yields prefix1, prefix2, ... It is not safe for
// concurrent use; a room only calls it from its own loop.
type SequentialAllocator struct {
	prefix string
	n      uint64
}

func NewSequentialAllocator(prefix string) *SequentialAllocator {
	return &SequentialAllocator{prefix: prefix}
}

func (a *SequentialAllocator) Next() SessionID {
	a.n++
	return SessionID(a.prefix + strconv.FormatUint(a.n, 10))
}
