package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"weak"

	"sight/internal/data"
	"sight/pkg/logging"
)

// Access is the relationship of a service to a data object.
type Access int

const (
	// AccessInput is a read-only borrowed reference.
	AccessInput Access = iota
	// AccessInOut is a read-write borrowed reference with a single writer.
	AccessInOut
	// AccessOutput is an owned object published to the object registry.
	AccessOutput
)

func (a Access) String() string {
	switch a {
	case AccessInput:
		return "in"
	case AccessInOut:
		return "inout"
	case AccessOutput:
		return "out"
	}
	return "unknown(" + strconv.Itoa(int(a)) + ")"
}

// MarshalText renders the access as in, inout or out.
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses the access written by MarshalText.
func (a *Access) UnmarshalText(text []byte) error {
	parsed, err := ParseAccess(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAccess parses in, inout or out.
func ParseAccess(s string) (Access, error) {
	switch s {
	case "in", "input":
		return AccessInput, nil
	case "inout":
		return AccessInOut, nil
	case "out", "output":
		return AccessOutput, nil
	}
	return 0, fmt.Errorf("unknown access %q", s)
}

var groupKeyPattern = regexp.MustCompile(`^(.*)#[0-9]+$`)

// GroupKey returns the key of member index of group key.
func GroupKey(key string, index int) string {
	return key + "#" + strconv.Itoa(index)
}

// baseKey returns the group key of a member key, or "".
func baseKey(key string) string {
	if m := groupKeyPattern.FindStringSubmatch(key); m != nil {
		return m[1]
	}
	return ""
}

type objectInfo struct {
	key         string
	group       string
	access      Access
	optional    bool
	autoConnect bool
	id          string

	// INPUT and INOUT hold weak references; OUTPUT owns its object.
	ref   weak.Pointer[data.Object]
	owned *data.Object
}

func (i *objectInfo) object() *data.Object {
	if i.access == AccessOutput {
		return i.owned
	}
	return i.ref.Value()
}

func (i *objectInfo) bind(obj *data.Object) {
	switch {
	case i.access == AccessOutput:
		i.owned = obj
	case obj == nil:
		i.ref = weak.Pointer[data.Object]{}
	default:
		i.ref = weak.Make(obj)
	}
}

type groupInfo struct {
	key         string
	access      Access
	min         int
	max         int
	autoConnect bool
}

// ObjectOption adjusts an object declaration.
type ObjectOption func(*objectInfo)

// AutoConnect wires the object signals to the service slots on start.
func AutoConnect() ObjectOption {
	return func(i *objectInfo) { i.autoConnect = true }
}

// Optional marks the key as not required to start.
func Optional() ObjectOption {
	return func(i *objectInfo) { i.optional = true }
}

// WithID records the object id bound to the key. Outputs are published under it.
func WithID(id string) ObjectOption {
	return func(i *objectInfo) { i.id = id }
}

// declareLocked adds or updates a key declaration. The caller holds s.mu.
func (s *Service) declareLocked(key string, access Access, opts ...ObjectOption) (*objectInfo, error) {
	if info, ok := s.objects[key]; ok {
		if info.access != access {
			return nil, fmt.Errorf("%w: %s is %s on service %s, not %s", ErrAccessMismatch, key, info.access, s.id, access)
		}
		for _, opt := range opts {
			opt(info)
		}
		return info, nil
	}

	info := &objectInfo{key: key, access: access, group: baseKey(key)}
	if g, ok := s.groups[info.group]; ok {
		if g.access != access {
			return nil, fmt.Errorf("%w: group %s is %s on service %s, not %s", ErrAccessMismatch, g.key, g.access, s.id, access)
		}
		info.autoConnect = g.autoConnect
	} else {
		info.group = ""
	}
	for _, opt := range opts {
		opt(info)
	}
	s.objects[key] = info
	return info, nil
}

// RegisterObject declares key with the given access without binding an object.
func (s *Service) RegisterObject(key string, access Access, opts ...ObjectOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.declareLocked(key, access, opts...)
	return err
}

// RegisterObjectGroup declares members key#0 to key#(maxCount-1). Members
// below minCount are required unless the Optional option is given. WithID
// does not apply to members; bind them by object instead.
// Declaring a group again adjusts the bounds. Unbound members past the new
// maximum are dropped, bound ones become optional until they are unbound.
func (s *Service) RegisterObjectGroup(key string, access Access, minCount, maxCount int, opts ...ObjectOption) error {
	if maxCount <= 0 || minCount < 0 || minCount > maxCount {
		return fmt.Errorf("group %s on service %s needs 0 <= min <= max and max > 0", key, s.id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, redeclared := s.groups[key]
	if redeclared && prev.access != access {
		return fmt.Errorf("%w: group %s is %s on service %s, not %s", ErrAccessMismatch, key, prev.access, s.id, access)
	}

	probe := &objectInfo{}
	for _, opt := range opts {
		opt(probe)
	}
	s.groups[key] = &groupInfo{key: key, access: access, min: minCount, max: maxCount, autoConnect: probe.autoConnect}

	for i := 0; i < maxCount; i++ {
		info, err := s.declareLocked(GroupKey(key, i), access)
		if err != nil {
			return err
		}
		info.group = key
		info.optional = probe.optional || i >= minCount
		if probe.autoConnect {
			info.autoConnect = true
		}
	}

	if redeclared {
		for i := maxCount; i < prev.max; i++ {
			k := GroupKey(key, i)
			info, ok := s.objects[k]
			if !ok {
				continue
			}
			if info.object() == nil {
				delete(s.objects, k)
			} else {
				info.optional = true
			}
		}
	}
	return nil
}

// pruneMemberLocked drops an unbound group member left past the group
// maximum by a redeclaration. The caller holds s.mu.
func (s *Service) pruneMemberLocked(info *objectInfo) {
	g, ok := s.groups[info.group]
	if !ok || info.object() != nil {
		return
	}
	index, err := strconv.Atoi(strings.TrimPrefix(info.key, info.group+"#"))
	if err == nil && index >= g.max {
		delete(s.objects, info.key)
	}
}

// bindObject declares key if needed and binds obj to it.
func (s *Service) bindObject(key string, access Access, obj *data.Object, opts ...ObjectOption) error {
	s.mu.Lock()
	info, err := s.declareLocked(key, access, opts...)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	previous := info.object()
	started := s.global == StatusStarted
	s.mu.Unlock()

	if access == AccessInOut && started && obj != nil && obj != previous {
		if err := obj.Claim(s.id); err != nil {
			return fmt.Errorf("binding %s on service %s: %w", key, s.id, err)
		}
	}

	s.mu.Lock()
	info.bind(obj)
	if info.id == "" && obj != nil {
		info.id = obj.ID()
	}
	if access == AccessInOut && started && obj != previous {
		if previous != nil {
			s.dropLeaseLocked(previous)
		}
		if obj != nil {
			s.leases = append(s.leases, obj)
		}
	}
	s.mu.Unlock()

	if access == AccessOutput {
		s.publish(key, obj)
	}
	return nil
}

// RegisterInput binds obj read-only to key.
func (s *Service) RegisterInput(key string, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(key, AccessInput, obj, opts...)
}

// RegisterInputAt binds obj read-only to member index of group key.
func (s *Service) RegisterInputAt(key string, index int, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(GroupKey(key, index), AccessInput, obj, opts...)
}

// RegisterInOut binds obj read-write to key.
func (s *Service) RegisterInOut(key string, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(key, AccessInOut, obj, opts...)
}

// RegisterInOutAt binds obj read-write to member index of group key.
func (s *Service) RegisterInOutAt(key string, index int, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(GroupKey(key, index), AccessInOut, obj, opts...)
}

// RegisterOutput sets the object owned under key and publishes it to the
// object registry. A nil object withdraws the output.
func (s *Service) RegisterOutput(key string, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(key, AccessOutput, obj, opts...)
}

// RegisterOutputAt sets member index of output group key.
func (s *Service) RegisterOutputAt(key string, index int, obj *data.Object, opts ...ObjectOption) error {
	return s.bindObject(GroupKey(key, index), AccessOutput, obj, opts...)
}

func (s *Service) unbind(key string, access Access) (*objectInfo, *data.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s on service %s", ErrUnknownKey, key, s.id)
	}
	if info.access != access {
		return nil, nil, fmt.Errorf("%w: %s is %s on service %s, not %s", ErrAccessMismatch, key, info.access, s.id, access)
	}
	previous := info.object()
	info.bind(nil)
	s.pruneMemberLocked(info)
	return info, previous, nil
}

// UnregisterInput unbinds the input key.
func (s *Service) UnregisterInput(key string) error {
	_, _, err := s.unbind(key, AccessInput)
	return err
}

// UnregisterInOut unbinds the inout key. A required key of a started
// service stops the service first and waits for it.
func (s *Service) UnregisterInOut(ctx context.Context, key string) error {
	s.mu.RLock()
	info, ok := s.objects[key]
	required := ok && info.access == AccessInOut && !info.optional
	s.mu.RUnlock()

	if required && s.IsStarted() {
		logging.Info("Service", "Stopping %s before removing required inout %s", s.id, key)
		if err := s.Stop(ctx).WaitContext(ctx); err != nil {
			return fmt.Errorf("stopping service %s before removing %s: %w", s.id, key, err)
		}
	}

	_, previous, err := s.unbind(key, AccessInOut)
	if err != nil {
		return err
	}
	if previous != nil {
		s.mu.Lock()
		held := false
		for _, l := range s.leases {
			if l == previous {
				held = true
				break
			}
		}
		if held {
			s.dropLeaseLocked(previous)
		}
		s.mu.Unlock()
	}
	return nil
}

// UnregisterOutput removes the output key and withdraws it from the registry.
func (s *Service) UnregisterOutput(key string) error {
	if _, _, err := s.unbind(key, AccessOutput); err != nil {
		return err
	}
	s.publish(key, nil)
	return nil
}

func (s *Service) publish(key string, obj *data.Object) {
	if s.registry == nil {
		return
	}
	objects := s.registry.Objects()
	if obj == nil {
		objects.Withdraw(s.id, key)
		return
	}
	if err := objects.Publish(s.id, key, obj); err != nil {
		logging.Error("Service", err, "Could not publish output %s of %s", key, s.id)
	}
}

// withdrawOutputs withdraws every published output.
func (s *Service) withdrawOutputs() {
	s.mu.RLock()
	var keys []string
	for key, info := range s.objects {
		if info.access == AccessOutput && info.owned != nil {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range keys {
		s.publish(key, nil)
	}
}

func (s *Service) lookup(key string, access Access) *data.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.objects[key]
	if !ok || info.access != access {
		return nil
	}
	return info.object()
}

// Input returns the read-only view bound to key, or nil.
func (s *Service) Input(key string) data.Reader {
	obj := s.lookup(key, AccessInput)
	if obj == nil {
		return nil
	}
	return obj
}

// InputAt returns member index of input group key, or nil.
func (s *Service) InputAt(key string, index int) data.Reader {
	return s.Input(GroupKey(key, index))
}

// InOut returns the object bound read-write to key, or nil.
func (s *Service) InOut(key string) *data.Object {
	return s.lookup(key, AccessInOut)
}

// InOutAt returns member index of inout group key, or nil.
func (s *Service) InOutAt(key string, index int) *data.Object {
	return s.InOut(GroupKey(key, index))
}

// Output returns the object owned under key, or nil.
func (s *Service) Output(key string) *data.Object {
	return s.lookup(key, AccessOutput)
}

// Object returns whatever object is bound to key, regardless of access.
func (s *Service) Object(key string) *data.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.objects[key]
	if !ok {
		return nil
	}
	return info.object()
}

// ObjectID returns the object id recorded for key.
func (s *Service) ObjectID(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.objects[key]; ok {
		return info.id
	}
	return ""
}

// OutputID returns the id an output under key is published with: the
// declared id, or "<service id>.<key>".
func (s *Service) OutputID(key string) string {
	if id := s.ObjectID(key); id != "" {
		return id
	}
	return s.id + "." + key
}

// SetObjectID records the object id for a declared key.
func (s *Service) SetObjectID(key, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("%w: %s on service %s", ErrUnknownKey, key, s.id)
	}
	info.id = id
	return nil
}

// KeyGroupSize returns the number of bound members of group key.
func (s *Service) KeyGroupSize(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[key]
	if !ok {
		return 0
	}
	n := 0
	for i := 0; i < g.max; i++ {
		if info, ok := s.objects[GroupKey(key, i)]; ok && info.object() != nil {
			n++
		}
	}
	return n
}

// GroupBounds returns the minimum and maximum member counts of group key.
func (s *Service) GroupBounds(key string) (minCount, maxCount int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[key]
	if !ok {
		return 0, 0, false
	}
	return g.min, g.max, true
}

// HasAllRequiredObjects reports whether every required input and inout key,
// group members below the group minimum included, is bound to a live object.
func (s *Service) HasAllRequiredObjects() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, info := range s.objects {
		if info.optional || info.access == AccessOutput {
			continue
		}
		if info.object() == nil {
			return false
		}
	}
	return true
}

// IsOptional reports whether key is declared and may stay unbound while the
// service runs.
func (s *Service) IsOptional(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.objects[key]
	return ok && info.optional
}

// MissingObjects returns the required keys without a live object, sorted.
func (s *Service) MissingObjects() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var missing []string
	for key, info := range s.objects {
		if !info.optional && info.access != AccessOutput && info.object() == nil {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// ObjectStatuses describes every declared key, sorted by key.
func (s *Service) ObjectStatuses() []ObjectStatus {
	s.mu.RLock()
	out := make([]ObjectStatus, 0, len(s.objects))
	for key, info := range s.objects {
		out = append(out, ObjectStatus{
			Key:      key,
			Access:   info.access,
			ID:       info.id,
			Bound:    info.object() != nil,
			Optional: info.optional,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
