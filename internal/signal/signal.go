// Package signal implements the signal/slot primitive services communicate
// through. A Signal is an emission point that any number of handlers can be
// connected to; a Slot is a named invokable that may be bound to a worker.
package signal

import (
	"sync"
	"sync/atomic"
)

// Handler receives the arguments of an emission.
type Handler func(args ...any)

// Signal is a keyed emission point.
type Signal struct {
	key string

	mu    sync.RWMutex
	conns []*Connection
}

// Connection is the link between a signal and one handler.
type Connection struct {
	signal    *Signal
	handler   Handler
	connected atomic.Bool
}

// New creates a signal.
func New(key string) *Signal {
	return &Signal{key: key}
}

// Key returns the signal key.
func (s *Signal) Key() string {
	return s.key
}

// Connect appends a handler. Handlers run in connection order.
func (s *Signal) Connect(h Handler) *Connection {
	c := &Connection{signal: s, handler: h}
	c.connected.Store(true)

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()
	return c
}

// NumConnections returns the number of live connections.
func (s *Signal) NumConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// snapshot copies the handler list so delivery runs without the lock held.
func (s *Signal) snapshot() []*Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conns := make([]*Connection, len(s.conns))
	copy(conns, s.conns)
	return conns
}

// Emit calls every connected handler synchronously, in connection order.
// Handlers disconnected during the emission are skipped.
func (s *Signal) Emit(args ...any) {
	for _, c := range s.snapshot() {
		if c.connected.Load() {
			c.handler(args...)
		}
	}
}

// AsyncEmit calls every connected handler on its own goroutine.
func (s *Signal) AsyncEmit(args ...any) {
	for _, c := range s.snapshot() {
		if c.connected.Load() {
			go c.handler(args...)
		}
	}
}

func (s *Signal) remove(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.conns {
		if existing == c {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			return
		}
	}
}

// Disconnect removes the handler from its signal. It is idempotent.
func (c *Connection) Disconnect() {
	if c == nil || !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.signal.remove(c)
}

// Connected reports whether the connection is still live.
func (c *Connection) Connected() bool {
	return c != nil && c.connected.Load()
}

// Connections is a bag of connections released together.
type Connections struct {
	mu    sync.Mutex
	conns []*Connection
}

// Add records connections.
func (cs *Connections) Add(conns ...*Connection) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range conns {
		if c != nil {
			cs.conns = append(cs.conns, c)
		}
	}
}

// DisconnectAll disconnects and forgets every recorded connection.
func (cs *Connections) DisconnectAll() {
	cs.mu.Lock()
	conns := cs.conns
	cs.conns = nil
	cs.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
}

// Len returns the number of recorded connections.
func (cs *Connections) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.conns)
}
