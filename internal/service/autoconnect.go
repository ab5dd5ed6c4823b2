package service

import (
	"sort"

	"sight/internal/data"
	"sight/internal/signal"
	"sight/pkg/logging"
)

// SignalSlot names one object signal and the service slot it drives.
type SignalSlot struct {
	Signal string
	Slot   string
}

// KeyConnectionsMap maps object keys to the ordered connections made when
// the object is auto-connected. Group members fall back to the entry of
// their group key.
type KeyConnectionsMap struct {
	entries map[string][]SignalSlot
}

// NewKeyConnectionsMap creates an empty map.
func NewKeyConnectionsMap() KeyConnectionsMap {
	return KeyConnectionsMap{entries: make(map[string][]SignalSlot)}
}

// Push appends a connection for key.
func (m *KeyConnectionsMap) Push(key, signalKey, slotKey string) *KeyConnectionsMap {
	if m.entries == nil {
		m.entries = make(map[string][]SignalSlot)
	}
	m.entries[key] = append(m.entries[key], SignalSlot{Signal: signalKey, Slot: slotKey})
	return m
}

// Find returns the connections declared for key.
func (m KeyConnectionsMap) Find(key string) []SignalSlot {
	return m.entries[key]
}

// Keys returns the keys with connections, sorted.
func (m KeyConnectionsMap) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys with connections.
func (m KeyConnectionsMap) Len() int {
	return len(m.entries)
}

type autoTarget struct {
	key   string
	group string
	obj   *data.Object
}

// connectAuto wires the signals of every auto-connected object to the
// service slots, as declared by AutoConnections.
func (s *Service) connectAuto() {
	s.mu.RLock()
	all := s.autoConnect
	var targets []autoTarget
	for key, info := range s.objects {
		if !all && !info.autoConnect {
			continue
		}
		obj := info.object()
		if obj == nil {
			continue
		}
		targets = append(targets, autoTarget{key: key, group: info.group, obj: obj})
	}
	s.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].key < targets[j].key })

	var table KeyConnectionsMap
	if ac, ok := s.impl.(AutoConnector); ok {
		table = ac.AutoConnections()
	}

	for _, t := range targets {
		pairs := table.Find(t.key)
		if len(pairs) == 0 && t.group != "" {
			pairs = table.Find(t.group)
		}
		if len(pairs) == 0 {
			if !all {
				logging.Warn("Service", "Object %s of %s is auto-connected but no connection is declared for it", t.key, s.id)
			}
			continue
		}

		for _, p := range pairs {
			sig := t.obj.Signal(p.Signal)
			if sig == nil {
				logging.Warn("Service", "Object %s has no signal %s for %s", t.obj.ID(), p.Signal, s.id)
				continue
			}
			slot := s.slots.Get(p.Slot)
			if slot == nil {
				logging.Warn("Service", "Service %s has no slot %s", s.id, p.Slot)
				continue
			}
			s.autoConns.Add(signal.ConnectSignalToSlot(sig, slot))
			logging.Debug("Service", "Connected %s.%s to %s.%s", t.obj.ID(), p.Signal, s.id, p.Slot)
		}
	}
}

// AutoConnectionCount returns the number of live auto connections.
func (s *Service) AutoConnectionCount() int {
	return s.autoConns.Len()
}
