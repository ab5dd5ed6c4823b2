package signal

import (
	"context"
	"sort"
	"sync"

	"sight/internal/worker"
	"sight/pkg/logging"
)

// SlotFunc is the body of a slot.
type SlotFunc func(ctx context.Context, args ...any) error

// Slot is a keyed invokable, optionally bound to a worker.
type Slot struct {
	key string
	fn  SlotFunc

	mu     sync.RWMutex
	worker worker.Worker
}

// NewSlot creates a slot without a worker.
func NewSlot(key string, fn SlotFunc) *Slot {
	return &Slot{key: key, fn: fn}
}

// Key returns the slot key.
func (s *Slot) Key() string {
	return s.key
}

// SetWorker binds the slot to w; nil unbinds it.
func (s *Slot) SetWorker(w worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker = w
}

// Worker returns the bound worker, if any.
func (s *Slot) Worker() worker.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}

// Run invokes the slot on the calling goroutine.
func (s *Slot) Run(ctx context.Context, args ...any) error {
	return s.fn(ctx, args...)
}

// AsyncRun posts the slot to its worker. Without a worker, or when the
// caller already runs on it, the slot runs inline and the returned future
// is already satisfied.
func (s *Slot) AsyncRun(ctx context.Context, args ...any) *worker.Future {
	w := s.Worker()
	if w == nil || worker.Current(ctx) == w {
		return worker.Completed(s.fn(ctx, args...))
	}
	return w.Post(ctx, func(ctx context.Context) error {
		return s.fn(ctx, args...)
	})
}

// ConnectSignalToSlot makes every emission of sig run slot asynchronously.
// Slot errors are logged.
func ConnectSignalToSlot(sig *Signal, slot *Slot) *Connection {
	return sig.Connect(func(args ...any) {
		slot.AsyncRun(context.Background(), args...).Then(func(err error) error {
			if err != nil {
				logging.Error("Signal", err, "Slot %s failed on emission of %s", slot.Key(), sig.Key())
			}
			return err
		})
	})
}

// Signals is a keyed set of signals.
type Signals struct {
	mu      sync.RWMutex
	signals map[string]*Signal
}

// NewSignals creates an empty set.
func NewSignals() *Signals {
	return &Signals{signals: make(map[string]*Signal)}
}

// Add registers sig under its key, replacing any previous one.
func (s *Signals) Add(sig *Signal) *Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[sig.Key()] = sig
	return sig
}

// Get returns the signal registered under key, or nil.
func (s *Signals) Get(key string) *Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signals[key]
}

// Keys returns the registered keys, sorted.
func (s *Signals) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.signals))
	for k := range s.signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Slots is a keyed set of slots.
type Slots struct {
	mu     sync.RWMutex
	slots  map[string]*Slot
	worker worker.Worker
}

// NewSlots creates an empty set.
func NewSlots() *Slots {
	return &Slots{slots: make(map[string]*Slot)}
}

// Add registers slot under its key. The slot inherits the set's worker.
func (s *Slots) Add(slot *Slot) *Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != nil {
		slot.SetWorker(s.worker)
	}
	s.slots[slot.Key()] = slot
	return slot
}

// Get returns the slot registered under key, or nil.
func (s *Slots) Get(key string) *Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[key]
}

// Keys returns the registered keys, sorted.
func (s *Slots) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetWorker re-targets every slot, present and future, to w.
func (s *Slots) SetWorker(w worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker = w
	for _, slot := range s.slots {
		slot.SetWorker(w)
	}
}
