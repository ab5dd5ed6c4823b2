// Package data holds the data objects services exchange and the registry
// that publishes them by id.
package data

import (
	"errors"
	"fmt"
	"sync"

	"sight/internal/signal"
)

// Signal keys emitted by objects.
const (
	// SignalModified is emitted with the new value after Set or Update.
	SignalModified = "modified"
	// SignalObjectChanged is emitted with the previous and new value.
	SignalObjectChanged = "objectChanged"
)

// ErrWriterConflict indicates an object already has a different writer.
var ErrWriterConflict = errors.New("object already has a writer")

// Reader is the read-only view of an object handed out for INPUT access.
type Reader interface {
	ID() string
	Type() string
	Get() any
	Signal(key string) *signal.Signal
}

// Object is a typed value cell with change notification.
type Object struct {
	id  string
	typ string

	mu    sync.RWMutex
	value any

	writerMu sync.Mutex
	writer   string

	signals *signal.Signals
}

// NewObject creates an object holding value.
func NewObject(id, typ string, value any) *Object {
	o := &Object{
		id:      id,
		typ:     typ,
		value:   value,
		signals: signal.NewSignals(),
	}
	o.signals.Add(signal.New(SignalModified))
	o.signals.Add(signal.New(SignalObjectChanged))
	return o
}

// ID returns the object id.
func (o *Object) ID() string { return o.id }

// Type returns the object type name.
func (o *Object) Type() string { return o.typ }

// Get returns the current value.
func (o *Object) Get() any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the value and emits modified and objectChanged.
func (o *Object) Set(v any) {
	o.mu.Lock()
	old := o.value
	o.value = v
	o.mu.Unlock()

	o.emit(old, v)
}

// Update replaces the value with fn(old) atomically and emits the signals.
func (o *Object) Update(fn func(old any) any) any {
	o.mu.Lock()
	old := o.value
	v := fn(old)
	o.value = v
	o.mu.Unlock()

	o.emit(old, v)
	return v
}

func (o *Object) emit(old, v any) {
	o.signals.Get(SignalModified).Emit(v)
	o.signals.Get(SignalObjectChanged).Emit(old, v)
}

// Signal returns the object signal registered under key, or nil.
func (o *Object) Signal(key string) *signal.Signal {
	return o.signals.Get(key)
}

// Signals returns the object signal set.
func (o *Object) Signals() *signal.Signals {
	return o.signals
}

// Claim takes the single-writer lease for owner. Claiming twice with the same
// owner succeeds.
func (o *Object) Claim(owner string) error {
	o.writerMu.Lock()
	defer o.writerMu.Unlock()
	if o.writer != "" && o.writer != owner {
		return fmt.Errorf("%w: %s is written by %s", ErrWriterConflict, o.id, o.writer)
	}
	o.writer = owner
	return nil
}

// Release drops the lease if owner holds it.
func (o *Object) Release(owner string) {
	o.writerMu.Lock()
	defer o.writerMu.Unlock()
	if o.writer == owner {
		o.writer = ""
	}
}

// Writer returns the current lease holder, or "".
func (o *Object) Writer() string {
	o.writerMu.Lock()
	defer o.writerMu.Unlock()
	return o.writer
}

// String implements fmt.Stringer.
func (o *Object) String() string {
	return fmt.Sprintf("%s(%s)=%v", o.id, o.typ, o.Get())
}
