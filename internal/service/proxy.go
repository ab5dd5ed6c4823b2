package service

import (
	"sort"
	"sync"

	"sight/internal/signal"
	"sight/pkg/logging"
)

// ProxyConnection joins signals and slots of one service to a named channel.
// Keys are local to the service.
type ProxyConnection struct {
	Channel string
	Signals []string
	Slots   []string
}

// Proxy is a set of named channels. Every signal connected to a channel is
// relayed to every slot connected to it.
type Proxy struct {
	mu       sync.Mutex
	channels map[string]*proxyChannel
}

type proxyChannel struct {
	hub   *signal.Signal
	sigs  map[*signal.Signal]*signal.Connection
	slots map[*signal.Slot]*signal.Connection
}

// NewProxy creates an empty proxy.
func NewProxy() *Proxy {
	return &Proxy{channels: make(map[string]*proxyChannel)}
}

func (p *Proxy) channelLocked(name string) *proxyChannel {
	ch, ok := p.channels[name]
	if !ok {
		ch = &proxyChannel{
			hub:   signal.New(name),
			sigs:  make(map[*signal.Signal]*signal.Connection),
			slots: make(map[*signal.Slot]*signal.Connection),
		}
		p.channels[name] = ch
	}
	return ch
}

// Connect relays sig into channel.
func (p *Proxy) Connect(channel string, sig *signal.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.channelLocked(channel)
	if _, ok := ch.sigs[sig]; ok {
		return
	}
	hub := ch.hub
	ch.sigs[sig] = sig.Connect(func(args ...any) { hub.Emit(args...) })
}

// ConnectSlot makes every emission on channel run slot.
func (p *Proxy) ConnectSlot(channel string, slot *signal.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.channelLocked(channel)
	if _, ok := ch.slots[slot]; ok {
		return
	}
	ch.slots[slot] = signal.ConnectSignalToSlot(ch.hub, slot)
}

// Disconnect stops relaying sig into channel.
func (p *Proxy) Disconnect(channel string, sig *signal.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channel]
	if !ok {
		return
	}
	if c, ok := ch.sigs[sig]; ok {
		c.Disconnect()
		delete(ch.sigs, sig)
	}
	p.pruneLocked(channel, ch)
}

// DisconnectSlot detaches slot from channel.
func (p *Proxy) DisconnectSlot(channel string, slot *signal.Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channel]
	if !ok {
		return
	}
	if c, ok := ch.slots[slot]; ok {
		c.Disconnect()
		delete(ch.slots, slot)
	}
	p.pruneLocked(channel, ch)
}

func (p *Proxy) pruneLocked(name string, ch *proxyChannel) {
	if len(ch.sigs) == 0 && len(ch.slots) == 0 {
		delete(p.channels, name)
	}
}

// Channels returns the names of channels with at least one endpoint, sorted.
func (p *Proxy) Channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.channels))
	for name := range p.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddProxyConnection records a channel membership connected on every start.
func (s *Service) AddProxyConnection(pc ProxyConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxyConns = append(s.proxyConns, pc)
}

// ProxyConnections returns the recorded channel memberships.
func (s *Service) ProxyConnections() []ProxyConnection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ProxyConnection(nil), s.proxyConns...)
}

func (s *Service) connectProxies() {
	if s.registry == nil {
		return
	}
	proxy := s.registry.Proxy()
	for _, pc := range s.ProxyConnections() {
		for _, key := range pc.Signals {
			sig := s.signals.Get(key)
			if sig == nil {
				logging.Warn("Service", "Service %s has no signal %s for channel %s", s.id, key, pc.Channel)
				continue
			}
			proxy.Connect(pc.Channel, sig)
		}
		for _, key := range pc.Slots {
			slot := s.slots.Get(key)
			if slot == nil {
				logging.Warn("Service", "Service %s has no slot %s for channel %s", s.id, key, pc.Channel)
				continue
			}
			proxy.ConnectSlot(pc.Channel, slot)
		}
	}
}

func (s *Service) disconnectProxies() {
	if s.registry == nil {
		return
	}
	proxy := s.registry.Proxy()
	for _, pc := range s.ProxyConnections() {
		for _, key := range pc.Signals {
			if sig := s.signals.Get(key); sig != nil {
				proxy.Disconnect(pc.Channel, sig)
			}
		}
		for _, key := range pc.Slots {
			if slot := s.slots.Get(key); slot != nil {
				proxy.DisconnectSlot(pc.Channel, slot)
			}
		}
	}
}
