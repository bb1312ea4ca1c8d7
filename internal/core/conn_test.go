package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dkeye/Gallery/internal/domain"
	"github.com/dkeye/Gallery/internal/protocol"
)

var errQueueFull = errors.New("queue full")

// recordingConn stores every frame the room hands it.
type recordingConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	closed bool
	full   bool
}

func (c *recordingConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.full {
		return errQueueFull
	}
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingConn) setFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) all() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.frames...)
}

func (c *recordingConn) events(typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range c.all() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestRoom(t *testing.T, opts Options) RoomService {
	t.Helper()
	if opts.IDs == nil {
		opts.IDs = NewSequentialAllocator("s")
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(1, 2))
	}
	r := NewRoom(context.Background(), "gallery", opts)
	t.Cleanup(func() {
		r.Dispose()
		<-r.Done()
	})
	return r
}

// settled waits until every command queued before it has run and flushed.
func settled(t *testing.T, r RoomService) PlayerMap {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return m
}

func join(t *testing.T, r RoomService, user string) (SessionID, PlayerMap, *recordingConn) {
	t.Helper()
	conn := &recordingConn{}
	sid, snap, err := r.Join(context.Background(), domain.UserID(user), conn)
	if err != nil {
		t.Fatalf("join %s: %v", user, err)
	}
	return sid, snap, conn
}

func send(t *testing.T, r RoomService, sid SessionID, typ string, payload any) {
	t.Helper()
	var (
		frame []byte
		err   error
	)
	if raw, ok := payload.(string); ok {
		frame, err = json.Marshal(protocol.Envelope{Type: typ, Payload: json.RawMessage(raw)})
	} else {
		frame, err = protocol.Encode(typ, payload)
	}
	if err != nil {
		t.Fatal(err)
	}
	r.Deliver(sid, frame)
}

func playersOf(t *testing.T, env protocol.Envelope) PlayerMap {
	t.Helper()
	var ev struct {
		Players PlayerMap `json:"players"`
	}
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		t.Fatalf("decode players of %s: %v", env.Type, err)
	}
	return ev.Players
}

func playerOf(t *testing.T, env protocol.Envelope) Player {
	t.Helper()
	var ev struct {
		Player Player `json:"player"`
	}
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		t.Fatalf("decode player of %s: %v", env.Type, err)
	}
	return ev.Player
}

func last(t *testing.T, envs []protocol.Envelope) protocol.Envelope {
	t.Helper()
	if len(envs) == 0 {
		t.Fatal("no frames")
	}
	return envs[len(envs)-1]
}
