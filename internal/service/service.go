package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/signal"
	"sight/internal/worker"
	"sight/pkg/logging"
)

// Impl is the behavior a concrete service plugs into the lifecycle.
// Hooks run on the service worker when one is set.
type Impl interface {
	// Configuring reads the service configuration. It runs once per
	// configuration, before the first start or on Configure.
	Configuring(cfg *config.Tree) error

	// Starting acquires what the service needs to run.
	Starting(ctx context.Context) error

	// Stopping releases what Starting acquired.
	Stopping(ctx context.Context) error

	// Updating performs the work of the service.
	Updating(ctx context.Context) error
}

// Reconfigurer is implemented by services that accept a new configuration
// while started.
type Reconfigurer interface {
	Reconfiguring(cfg *config.Tree) error
}

// Swapper is implemented by services that react to an object being swapped
// while started. Without it a swap only rebinds the key.
type Swapper interface {
	Swapping(ctx context.Context, key string) error
}

// AutoConnector is implemented by services declaring which object signals
// drive which of their slots.
type AutoConnector interface {
	AutoConnections() KeyConnectionsMap
}

// Informer is implemented by services adding to the Info description.
type Informer interface {
	Info(w io.Writer)
}

// BaseImpl provides no-op hooks. Embed it to implement only what matters.
type BaseImpl struct{}

func (BaseImpl) Configuring(*config.Tree) error { return nil }
func (BaseImpl) Starting(context.Context) error { return nil }
func (BaseImpl) Stopping(context.Context) error { return nil }
func (BaseImpl) Updating(context.Context) error { return nil }

// Service drives one Impl through the lifecycle state machine and holds its
// object references, signals and slots.
type Service struct {
	id       string
	typ      Type
	impl     Impl
	registry *Registry

	mu           sync.RWMutex
	global       GlobalStatus
	updating     UpdatingStatus
	configStatus ConfigurationStatus
	cfg          *config.Tree
	worker       worker.Worker
	autoConnect  bool
	objects      map[string]*objectInfo
	groups       map[string]*groupInfo
	proxyConns   []ProxyConnection
	leases       []*data.Object

	signals   *signal.Signals
	slots     *signal.Slots
	autoConns signal.Connections
}

func newService(id string, typ Type, registry *Registry) *Service {
	s := &Service{
		id:           id,
		typ:          typ,
		registry:     registry,
		global:       StatusStopped,
		updating:     StatusNotUpdating,
		configStatus: StatusUnconfigured,
		cfg:          config.NewTree(),
		objects:      make(map[string]*objectInfo),
		groups:       make(map[string]*groupInfo),
		signals:      signal.NewSignals(),
		slots:        signal.NewSlots(),
	}

	for _, key := range []string{
		SignalStarted, SignalUpdated, SignalSwapped, SignalStopped,
		SignalInfoNotified, SignalSuccessNotified, SignalFailureNotified,
	} {
		s.signals.Add(signal.New(key))
	}

	s.slots.Add(signal.NewSlot(SlotStart, func(ctx context.Context, _ ...any) error { return s.start(ctx) }))
	s.slots.Add(signal.NewSlot(SlotStop, func(ctx context.Context, _ ...any) error { return s.stop(ctx) }))
	s.slots.Add(signal.NewSlot(SlotUpdate, func(ctx context.Context, _ ...any) error { return s.update(ctx) }))
	s.slots.Add(signal.NewSlot(SlotSwapKey, func(ctx context.Context, args ...any) error {
		if len(args) != 2 {
			return fmt.Errorf("swapKey expects (key, object), got %d arguments", len(args))
		}
		key, ok := args[0].(string)
		if !ok {
			return fmt.Errorf("swapKey key must be a string, got %T", args[0])
		}
		obj, _ := args[1].(*data.Object)
		return s.swapKey(ctx, key, obj)
	}))
	return s
}

// ID returns the service id.
func (s *Service) ID() string { return s.id }

// Type returns the implementation type the service was created from.
func (s *Service) Type() Type { return s.typ }

// Registry returns the registry the service was created in, or nil.
func (s *Service) Registry() *Registry { return s.registry }

// Impl returns the concrete implementation.
func (s *Service) Impl() Impl { return s.impl }

// ImplAs returns the implementation of s as T.
func ImplAs[T Impl](s *Service) (T, bool) {
	impl, ok := s.impl.(T)
	return impl, ok
}

// GlobalStatus returns the lifecycle state.
func (s *Service) GlobalStatus() GlobalStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.global
}

// UpdatingStatus returns whether an update is running.
func (s *Service) UpdatingStatus() UpdatingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updating
}

// ConfigurationStatus returns the configuration state.
func (s *Service) ConfigurationStatus() ConfigurationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configStatus
}

// IsStarted reports whether the service is STARTED.
func (s *Service) IsStarted() bool { return s.GlobalStatus() == StatusStarted }

// IsStopped reports whether the service is STOPPED.
func (s *Service) IsStopped() bool { return s.GlobalStatus() == StatusStopped }

// Status returns a snapshot of the service state.
func (s *Service) Status() Status {
	s.mu.RLock()
	st := Status{
		ID:            s.id,
		Type:          s.typ,
		Global:        s.global,
		Updating:      s.updating,
		Configuration: s.configStatus,
	}
	if s.worker != nil {
		st.Worker = s.worker.Name()
	}
	s.mu.RUnlock()

	st.Objects = s.ObjectStatuses()
	return st
}

// Worker returns the worker the service runs on, or nil.
func (s *Service) Worker() worker.Worker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.worker
}

// SetWorker binds the lifecycle and every slot to w. nil runs them inline.
func (s *Service) SetWorker(w worker.Worker) {
	s.mu.Lock()
	s.worker = w
	s.mu.Unlock()
	s.slots.SetWorker(w)
}

// SetAutoConnect enables auto connection for every object key.
func (s *Service) SetAutoConnect(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoConnect = enabled
}

// Signal returns the signal registered under key, or nil.
func (s *Service) Signal(key string) *signal.Signal { return s.signals.Get(key) }

// Slot returns the slot registered under key, or nil.
func (s *Service) Slot(key string) *signal.Slot { return s.slots.Get(key) }

// Signals returns the service signals.
func (s *Service) Signals() *signal.Signals { return s.signals }

// Slots returns the service slots.
func (s *Service) Slots() *signal.Slots { return s.slots }

// NewSignal adds a signal owned by the service.
func (s *Service) NewSignal(key string) *signal.Signal {
	return s.signals.Add(signal.New(key))
}

// NewSlot adds a slot owned by the service. It runs on the service worker.
func (s *Service) NewSlot(key string, fn signal.SlotFunc) *signal.Slot {
	return s.slots.Add(signal.NewSlot(key, fn))
}

// Config returns the stored configuration tree.
func (s *Service) Config() *config.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetConfig stores cfg and marks the service UNCONFIGURED.
func (s *Service) SetConfig(cfg *config.Tree) {
	if cfg == nil {
		cfg = config.NewTree()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.configStatus = StatusUnconfigured
}

// Configure stores cfg, when not nil, and applies the configuration. It only
// acts from UNCONFIGURED. A started service is reconfigured instead.
// A failed configuration leaves the service UNCONFIGURED.
func (s *Service) Configure(cfg *config.Tree) error {
	if cfg != nil {
		s.SetConfig(cfg)
	}
	return s.configure()
}

func (s *Service) configure() error {
	s.mu.Lock()
	if s.configStatus != StatusUnconfigured {
		s.mu.Unlock()
		return nil
	}
	s.configStatus = StatusConfiguring
	global := s.global
	cfg := s.cfg
	s.mu.Unlock()

	begin := time.Now()
	var err error
	if global == StatusStarted {
		if r, ok := s.impl.(Reconfigurer); ok {
			logging.Debug("Service", "Reconfiguring %s", s.id)
			err = r.Reconfiguring(cfg)
		} else {
			err = fmt.Errorf("%w: %s (%s)", ErrReconfigureUnsupported, s.id, s.typ)
		}
	} else {
		logging.Debug("Service", "Configuring %s", s.id)
		err = s.impl.Configuring(cfg)
	}

	s.mu.Lock()
	if err != nil {
		s.configStatus = StatusUnconfigured
	} else {
		s.configStatus = StatusConfigured
	}
	s.mu.Unlock()

	s.observe(opConfigure, begin, err)
	if err != nil {
		logging.Error("Service", err, "Failed to configure %s", s.id)
		return fmt.Errorf("configuring service %s: %w", s.id, err)
	}
	return nil
}

// dispatch runs fn on the service worker, or inline when there is none or
// the caller already runs on it.
func (s *Service) dispatch(ctx context.Context, fn worker.Task) *worker.Future {
	if ctx == nil {
		ctx = context.Background()
	}
	w := s.Worker()
	if w == nil || worker.Current(ctx) == w {
		return worker.Completed(fn(ctx))
	}
	return w.Post(ctx, fn)
}

// Start configures the service if needed and starts it. It does nothing
// unless the service is STOPPED.
func (s *Service) Start(ctx context.Context) *worker.Future {
	return s.dispatch(ctx, s.start)
}

// Stop stops the service. It does nothing unless the service is STARTED.
func (s *Service) Stop(ctx context.Context) *worker.Future {
	return s.dispatch(ctx, s.stop)
}

// Update runs the service work. It does nothing unless the service is
// STARTED and not already updating.
func (s *Service) Update(ctx context.Context) *worker.Future {
	return s.dispatch(ctx, s.update)
}

// SwapKey rebinds key to obj while the service runs. It does nothing unless
// the service is STARTED and obj differs from the bound object.
func (s *Service) SwapKey(ctx context.Context, key string, obj *data.Object) *worker.Future {
	return s.dispatch(ctx, func(ctx context.Context) error {
		return s.swapKey(ctx, key, obj)
	})
}

func (s *Service) setGlobal(st GlobalStatus) {
	s.mu.Lock()
	s.global = st
	s.mu.Unlock()
}

func (s *Service) start(ctx context.Context) error {
	s.mu.Lock()
	if s.global != StatusStopped {
		st := s.global
		s.mu.Unlock()
		logging.Debug("Service", "Ignoring start of %s in state %s", s.id, st)
		return nil
	}
	s.global = StatusStarting
	s.mu.Unlock()

	begin := time.Now()
	logging.Debug("Service", "Starting %s (%s)", s.id, s.typ)

	fail := func(err error) error {
		s.setGlobal(StatusStopped)
		s.observe(opStart, begin, err)
		logging.Error("Service", err, "Failed to start %s", s.id)
		return fmt.Errorf("starting service %s: %w", s.id, err)
	}

	if err := s.configure(); err != nil {
		return fail(err)
	}
	if err := s.claimLeases(); err != nil {
		return fail(err)
	}

	s.connectProxies()
	if err := s.impl.Starting(ctx); err != nil {
		s.disconnectProxies()
		s.releaseLeases()
		return fail(err)
	}

	s.setGlobal(StatusStarted)
	s.connectAuto()
	s.observe(opStart, begin, nil)
	logging.Debug("Service", "Started %s", s.id)
	s.signals.Get(SignalStarted).Emit()
	return nil
}

func (s *Service) stop(ctx context.Context) error {
	s.mu.Lock()
	if s.global != StatusStarted {
		st := s.global
		s.mu.Unlock()
		logging.Debug("Service", "Ignoring stop of %s in state %s", s.id, st)
		return nil
	}
	s.global = StatusStopping
	s.mu.Unlock()

	begin := time.Now()
	logging.Debug("Service", "Stopping %s", s.id)

	s.autoConns.DisconnectAll()
	if err := s.impl.Stopping(ctx); err != nil {
		s.setGlobal(StatusStarted)
		s.connectAuto()
		s.observe(opStop, begin, err)
		logging.Error("Service", err, "Failed to stop %s", s.id)
		return fmt.Errorf("stopping service %s: %w", s.id, err)
	}
	s.releaseLeases()

	s.setGlobal(StatusStopped)
	s.observe(opStop, begin, nil)
	logging.Debug("Service", "Stopped %s", s.id)
	s.signals.Get(SignalStopped).Emit()
	s.disconnectProxies()
	return nil
}

func (s *Service) update(ctx context.Context) error {
	s.mu.Lock()
	if s.global != StatusStarted {
		st := s.global
		s.mu.Unlock()
		logging.Warn("Service", "Discarding update of %s: service is %s", s.id, st)
		return nil
	}
	if s.updating == StatusUpdating {
		s.mu.Unlock()
		logging.Debug("Service", "Ignoring update of %s: already updating", s.id)
		return nil
	}
	s.updating = StatusUpdating
	s.mu.Unlock()

	begin := time.Now()
	err := s.impl.Updating(ctx)

	s.mu.Lock()
	s.updating = StatusNotUpdating
	s.mu.Unlock()

	s.observe(opUpdate, begin, err)
	if err != nil {
		logging.Error("Service", err, "Failed to update %s", s.id)
		return fmt.Errorf("updating service %s: %w", s.id, err)
	}
	s.signals.Get(SignalUpdated).Emit()
	return nil
}

func (s *Service) swapKey(ctx context.Context, key string, obj *data.Object) error {
	s.mu.Lock()
	if s.global != StatusStarted {
		st := s.global
		s.mu.Unlock()
		logging.Warn("Service", "Ignoring swap of %s on %s: service is %s", key, s.id, st)
		return nil
	}
	info, ok := s.objects[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("swapping %s on service %s: %w", key, s.id, ErrUnknownKey)
	}
	if info.access == AccessOutput {
		s.mu.Unlock()
		return fmt.Errorf("swapping %s on service %s: %w: outputs are set, not swapped", key, s.id, ErrAccessMismatch)
	}
	previous := info.object()
	if previous == obj {
		s.mu.Unlock()
		return nil
	}
	s.global = StatusSwapping
	s.mu.Unlock()

	begin := time.Now()
	logging.Debug("Service", "Swapping %s on %s", key, s.id)
	s.autoConns.DisconnectAll()

	if info.access == AccessInOut && obj != nil {
		if err := obj.Claim(s.id); err != nil {
			s.setGlobal(StatusStarted)
			s.connectAuto()
			s.observe(opSwap, begin, err)
			return fmt.Errorf("swapping %s on service %s: %w", key, s.id, err)
		}
	}

	s.mu.Lock()
	info.bind(obj)
	if info.access == AccessInOut {
		if previous != nil {
			s.dropLeaseLocked(previous)
		}
		if obj != nil {
			s.leases = append(s.leases, obj)
		}
	}
	s.mu.Unlock()

	var err error
	if sw, ok := s.impl.(Swapper); ok {
		err = sw.Swapping(ctx, key)
	}

	s.setGlobal(StatusStarted)
	s.connectAuto()
	s.observe(opSwap, begin, err)
	if err != nil {
		logging.Error("Service", err, "Failed to swap %s on %s", key, s.id)
		return fmt.Errorf("swapping %s on service %s: %w", key, s.id, err)
	}
	s.signals.Get(SignalSwapped).Emit(key)
	return nil
}

// claimLeases takes the single-writer lease on every bound INOUT object.
func (s *Service) claimLeases() error {
	s.mu.RLock()
	var inouts []*data.Object
	for _, info := range s.objects {
		if info.access != AccessInOut {
			continue
		}
		if obj := info.object(); obj != nil {
			inouts = append(inouts, obj)
		}
	}
	s.mu.RUnlock()

	claimed := make([]*data.Object, 0, len(inouts))
	for _, obj := range inouts {
		if err := obj.Claim(s.id); err != nil {
			for _, c := range claimed {
				c.Release(s.id)
			}
			return err
		}
		claimed = append(claimed, obj)
	}

	s.mu.Lock()
	s.leases = claimed
	s.mu.Unlock()
	return nil
}

func (s *Service) releaseLeases() {
	s.mu.Lock()
	leases := s.leases
	s.leases = nil
	s.mu.Unlock()

	for _, obj := range leases {
		obj.Release(s.id)
	}
}

func (s *Service) dropLeaseLocked(obj *data.Object) {
	for i, l := range s.leases {
		if l == obj {
			s.leases = append(s.leases[:i], s.leases[i+1:]...)
			break
		}
	}
	obj.Release(s.id)
}

// Notify emits the notification signal matching kind with message.
func (s *Service) Notify(kind NotificationKind, message string) {
	var key string
	switch kind {
	case NotifySuccess:
		key = SignalSuccessNotified
	case NotifyFailure:
		key = SignalFailureNotified
	case NotifyInfo:
		key = SignalInfoNotified
	default:
		logging.Warn("Service", "Unknown notification kind %q from %s", kind, s.id)
		return
	}
	s.signals.Get(key).Emit(message)
}

// Info writes a human readable description of the service to w.
func (s *Service) Info(w io.Writer) {
	st := s.Status()
	fmt.Fprintf(w, "%s (%s): %s, %s, %s\n", st.ID, st.Type, st.Global, st.Updating, st.Configuration)
	if st.Worker != "" {
		fmt.Fprintf(w, "  worker: %s\n", st.Worker)
	}
	for _, o := range st.Objects {
		bound := "unbound"
		if o.Bound {
			bound = "bound"
		}
		fmt.Fprintf(w, "  %s [%s] %s %s\n", o.Key, o.Access, o.ID, bound)
	}
	if informer, ok := s.impl.(Informer); ok {
		informer.Info(w)
	}
}

func (s *Service) observe(op string, begin time.Time, err error) {
	if s.registry == nil {
		return
	}
	s.registry.metrics.observe(s.typ, op, begin, err)
}
