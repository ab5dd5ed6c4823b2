package app

import (
	"context"
	"fmt"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/service"
	"sight/pkg/logging"
)

// binding is an input or inout key bound by object id. It follows the
// object registry: bound when the object appears, unbound when it goes.
type binding struct {
	svc    *service.Service
	key    string
	access service.Access
	id     string
}

func (b *binding) bind(obj *data.Object) error {
	if b.access == service.AccessInOut {
		return b.svc.RegisterInOut(b.key, obj)
	}
	return b.svc.RegisterInput(b.key, obj)
}

func (b *binding) unbind(ctx context.Context) error {
	if b.access == service.AccessInOut {
		return b.svc.UnregisterInOut(ctx, b.key)
	}
	return b.svc.UnregisterInput(b.key)
}

// buildService creates, configures and binds one service. The caller holds m.mu.
func (m *Manager) buildService(sd *config.ServiceDefinition) error {
	svc, err := m.registry.Add(service.Type(sd.Type), sd.ID)
	if err != nil {
		return err
	}
	m.services = append(m.services, svc)

	svc.SetConfig(sd.ConfigTree())
	if err := svc.Configure(nil); err != nil {
		return err
	}

	for _, g := range sd.Groups {
		access, err := service.ParseAccess(g.Access)
		if err != nil {
			return fmt.Errorf("service %s: group %s: %w", sd.ID, g.Key, err)
		}
		var opts []service.ObjectOption
		if g.AutoConnect {
			opts = append(opts, service.AutoConnect())
		}
		if err := svc.RegisterObjectGroup(g.Key, access, g.Min, g.Max, opts...); err != nil {
			return err
		}
	}

	for _, b := range sd.Objects {
		if err := m.bindObject(svc, b); err != nil {
			return fmt.Errorf("service %s: key %s: %w", sd.ID, b.Key, err)
		}
	}

	if sd.AutoConnect {
		svc.SetAutoConnect(true)
	}

	name := sd.Worker
	if name == "" {
		name = m.defaultWorker
	}
	if name != "" {
		w, err := m.workers.Get(name)
		switch {
		case err == nil:
			svc.SetWorker(w)
		case sd.Worker != "":
			return fmt.Errorf("service %s: %w", sd.ID, err)
		default:
			logging.Warn("App", "Default worker %s is not defined, %s runs on its callers", name, sd.ID)
		}
	}

	logging.Debug("App", "Built service %s (%s)", sd.ID, sd.Type)
	return nil
}

// bindObject declares the key of b on svc and binds the object when it
// already exists. Outputs only record the id they are published under.
func (m *Manager) bindObject(svc *service.Service, b config.ObjectBinding) error {
	access, err := service.ParseAccess(b.Access)
	if err != nil {
		return err
	}
	key := b.Key
	if b.Index != nil {
		key = service.GroupKey(b.Key, *b.Index)
	}

	opts := []service.ObjectOption{service.WithID(b.ID)}
	if b.Optional {
		opts = append(opts, service.Optional())
	}
	if b.AutoConnect {
		opts = append(opts, service.AutoConnect())
	}
	if err := svc.RegisterObject(key, access, opts...); err != nil {
		return err
	}
	if access == service.AccessOutput {
		return nil
	}

	bd := &binding{svc: svc, key: key, access: access, id: b.ID}
	m.bindings = append(m.bindings, bd)
	obj, err := m.Objects().Get(b.ID)
	if err != nil {
		logging.Debug("App", "Key %s of %s waits for object %s", key, svc.ID(), b.ID)
		return nil
	}
	return bd.bind(obj)
}

// buildConnections records the proxy channel memberships of every service.
func (m *Manager) buildConnections() {
	for _, c := range m.def.Connections {
		per := make(map[string]*service.ProxyConnection)
		var order []string
		add := func(endpoint string, slot bool) {
			id, key, err := config.SplitEndpoint(endpoint)
			if err != nil {
				logging.Warn("App", "Skipping endpoint of channel %s: %v", c.Channel, err)
				return
			}
			pc, ok := per[id]
			if !ok {
				pc = &service.ProxyConnection{Channel: c.Channel}
				per[id] = pc
				order = append(order, id)
			}
			if slot {
				pc.Slots = append(pc.Slots, key)
			} else {
				pc.Signals = append(pc.Signals, key)
			}
		}
		for _, endpoint := range c.Signals {
			add(endpoint, false)
		}
		for _, endpoint := range c.Slots {
			add(endpoint, true)
		}

		for _, id := range order {
			svc, err := m.registry.Get(id)
			if err != nil {
				logging.Warn("App", "Skipping channel %s for %s: %v", c.Channel, id, err)
				continue
			}
			svc.AddProxyConnection(*per[id])
		}
	}
}

func (m *Manager) bindingsFor(id string) []*binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*binding
	for _, b := range m.bindings {
		if b.id == id {
			out = append(out, b)
		}
	}
	return out
}

// rebind binds obj, or unbinds with a nil obj. A started service swaps the
// key so its auto connections follow the new object.
func (m *Manager) rebind(b *binding, obj *data.Object) error {
	if b.svc.IsStarted() {
		if err := b.svc.SwapKey(m.ctx, b.key, obj).WaitContext(m.ctx); err != nil {
			return err
		}
		if b.svc.Object(b.key) == obj {
			return nil
		}
		// Stopped before the swap ran.
	}
	if obj == nil {
		return b.unbind(m.ctx)
	}
	return b.bind(obj)
}

// objectAdded binds waiting keys to obj and starts deferred services that
// became ready.
func (m *Manager) objectAdded(obj *data.Object) {
	for _, b := range m.bindingsFor(obj.ID()) {
		if b.svc.Object(b.key) != nil {
			continue
		}
		if err := m.rebind(b, obj); err != nil {
			logging.Error("App", err, "Could not bind %s to %s of %s", obj.ID(), b.key, b.svc.ID())
			continue
		}
		logging.Debug("App", "Bound %s to %s of %s", obj.ID(), b.key, b.svc.ID())
	}

	m.mu.Lock()
	order := m.startOrder()
	m.mu.Unlock()
	for _, svc := range order {
		if !m.Deferred(svc.ID()) || !m.t.Alive() {
			continue
		}
		if err := m.startIfReady(m.ctx, svc); err != nil {
			logging.Error("App", err, "Could not start deferred service %s", svc.ID())
		}
	}
}

// objectRemoved unbinds obj and stops services that lost a required object.
// Optional keys of started services are swapped out and the service keeps
// running.
func (m *Manager) objectRemoved(obj *data.Object) {
	for _, b := range m.bindingsFor(obj.ID()) {
		if b.svc.Object(b.key) != obj {
			continue
		}
		svc := b.svc
		if svc.IsStarted() && !svc.IsOptional(b.key) {
			logging.Info("App", "Stopping %s: object %s was removed", svc.ID(), obj.ID())
			if err := svc.Stop(m.ctx).WaitContext(m.ctx); err != nil {
				logging.Error("App", err, "Could not stop %s", svc.ID())
				continue
			}
		}
		if err := m.rebind(b, nil); err != nil {
			logging.Error("App", err, "Could not unbind %s from %s of %s", obj.ID(), b.key, svc.ID())
			continue
		}
		if svc.HasAllRequiredObjects() {
			continue
		}
		m.mu.Lock()
		m.deferred[svc.ID()] = true
		m.mu.Unlock()
	}
}
