package service

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sight/internal/data"
)

func TestAccess(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Access
	}{
		{"in", AccessInput},
		{"input", AccessInput},
		{"inout", AccessInOut},
		{"out", AccessOutput},
		{"output", AccessOutput},
	} {
		got, err := ParseAccess(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseAccess("rw")
	assert.Error(t, err)

	assert.Equal(t, "inout", AccessInOut.String())
	assert.Equal(t, "unknown(7)", Access(7).String())
	text, err := AccessOutput.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "out", string(text))
}

func TestGroupKey(t *testing.T) {
	assert.Equal(t, "image#2", GroupKey("image", 2))
	assert.Equal(t, "image", baseKey("image#2"))
	assert.Equal(t, "a#b", baseKey("a#b#10"))
	assert.Empty(t, baseKey("image"))
	assert.Empty(t, baseKey("image#x"))
}

func TestService_RequiredInOut(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")

	require.NoError(t, svc.RegisterObject("data", AccessInOut))
	assert.False(t, svc.HasAllRequiredObjects())
	assert.Equal(t, []string{"data"}, svc.MissingObjects())

	obj := data.NewObject("mesh", "Mesh", nil)
	require.NoError(t, svc.RegisterInOut("data", obj))
	assert.True(t, svc.HasAllRequiredObjects())
	assert.Empty(t, svc.MissingObjects())
	assert.Same(t, obj, svc.InOut("data"))
	assert.Equal(t, "mesh", svc.ObjectID("data"))
	runtime.KeepAlive(obj)
}

func TestService_ObjectGroupOptionality(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 2, 4))

	objs := []*data.Object{
		data.NewObject("i0", "Image", 0),
		data.NewObject("i1", "Image", 1),
		data.NewObject("i2", "Image", 2),
		data.NewObject("i3", "Image", 3),
	}

	assert.False(t, svc.HasAllRequiredObjects())
	require.NoError(t, svc.RegisterInputAt("image", 0, objs[0]))
	assert.False(t, svc.HasAllRequiredObjects())
	require.NoError(t, svc.RegisterInputAt("image", 1, objs[1]))
	assert.True(t, svc.HasAllRequiredObjects())
	require.NoError(t, svc.RegisterInputAt("image", 2, objs[2]))
	require.NoError(t, svc.RegisterInputAt("image", 3, objs[3]))
	assert.True(t, svc.HasAllRequiredObjects())
	assert.Equal(t, 4, svc.KeyGroupSize("image"))

	require.NoError(t, svc.UnregisterInput(GroupKey("image", 0)))
	assert.False(t, svc.HasAllRequiredObjects())
	assert.Equal(t, []string{"image#0"}, svc.MissingObjects())
	assert.Equal(t, 3, svc.KeyGroupSize("image"))
	assert.Equal(t, "i2", svc.InputAt("image", 2).ID())
	assert.Zero(t, svc.KeyGroupSize("unknown"))

	assert.Error(t, svc.RegisterObjectGroup("bad", AccessInput, 3, 2))
	assert.Error(t, svc.RegisterObjectGroup("bad", AccessInput, 0, 0))
	runtime.KeepAlive(objs)
}

func TestService_AccessMismatch(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	obj := data.NewObject("mesh", "Mesh", nil)

	require.NoError(t, svc.RegisterInput("mesh", obj))
	assert.ErrorIs(t, svc.RegisterInOut("mesh", obj), ErrAccessMismatch)
	assert.ErrorIs(t, svc.RegisterObject("mesh", AccessOutput), ErrAccessMismatch)
	assert.ErrorIs(t, svc.UnregisterOutput("mesh"), ErrAccessMismatch)
	assert.ErrorIs(t, svc.UnregisterInput("missing"), ErrUnknownKey)
	assert.ErrorIs(t, svc.SetObjectID("missing", "x"), ErrUnknownKey)

	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 1, 2))
	assert.ErrorIs(t, svc.RegisterObjectGroup("image", AccessOutput, 1, 2), ErrAccessMismatch)
	assert.ErrorIs(t, svc.RegisterInOutAt("image", 0, obj), ErrAccessMismatch)

	assert.Nil(t, svc.InOut("mesh"))
	assert.True(t, svc.Input("missing") == nil)
	assert.Same(t, obj, svc.Object("mesh"))
	runtime.KeepAlive(obj)
}

func TestService_OutputsArePublished(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "reader")
	objects := reg.Objects()

	require.NoError(t, svc.RegisterObject("image", AccessOutput))
	assert.Equal(t, "reader.image", svc.OutputID("image"))
	assert.True(t, svc.HasAllRequiredObjects())

	img := data.NewObject(svc.OutputID("image"), "Image", "frame-0")
	require.NoError(t, svc.RegisterOutput("image", img))
	got, err := objects.Get("reader.image")
	require.NoError(t, err)
	assert.Same(t, img, got)

	next := data.NewObject("reader.image.1", "Image", "frame-1")
	require.NoError(t, svc.RegisterOutput("image", next))
	_, err = objects.Get("reader.image")
	assert.ErrorIs(t, err, data.ErrObjectNotFound)
	assert.Same(t, next, svc.Output("image"))

	require.NoError(t, svc.UnregisterOutput("image"))
	_, err = objects.Get("reader.image.1")
	assert.ErrorIs(t, err, data.ErrObjectNotFound)
	assert.Nil(t, svc.Output("image"))

	require.NoError(t, svc.RegisterOutput("mask", data.NewObject("mask", "Image", nil), WithID("mask")))
	assert.Equal(t, 1, objects.Len())
	require.NoError(t, reg.Unregister(svc))
	assert.Zero(t, objects.Len())
}

func bindTransient(t *testing.T, svc *Service, key string) {
	t.Helper()
	require.NoError(t, svc.RegisterInput(key, data.NewObject("transient", "Image", make([]byte, 64))))
}

func TestService_InputsAreWeak(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")

	bindTransient(t, svc, "image")
	assert.Eventually(t, func() bool {
		runtime.GC()
		return svc.Input("image") == nil
	}, time.Second, 10*time.Millisecond)

	assert.False(t, svc.HasAllRequiredObjects())
	assert.Equal(t, "transient", svc.ObjectID("image"))
	assert.Equal(t, []ObjectStatus{{Key: "image", Access: AccessInput, ID: "transient"}}, svc.ObjectStatuses())
}

func TestService_InOutLeases(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	a, _ := newRecorder(t, reg, "a")
	b, _ := newRecorder(t, reg, "b")
	mesh := data.NewObject("mesh", "Mesh", nil)

	require.NoError(t, a.RegisterInOut("data", mesh))
	require.NoError(t, b.RegisterInOut("data", mesh))

	require.NoError(t, a.Start(ctx).Wait())
	assert.Equal(t, "a", mesh.Writer())

	err := b.Start(ctx).Wait()
	assert.ErrorIs(t, err, data.ErrWriterConflict)
	assert.True(t, b.IsStopped())

	require.NoError(t, a.Stop(ctx).Wait())
	assert.Empty(t, mesh.Writer())

	require.NoError(t, b.Start(ctx).Wait())
	assert.Equal(t, "b", mesh.Writer())
	require.NoError(t, b.Stop(ctx).Wait())
	runtime.KeepAlive(mesh)
}

func TestService_UnregisterRequiredInOutStops(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, rec := newRecorder(t, reg, "svc1")
	mesh := data.NewObject("mesh", "Mesh", nil)
	lut := data.NewObject("lut", "Lut", nil)

	require.NoError(t, svc.RegisterInOut("data", mesh))
	require.NoError(t, svc.RegisterInOut("lut", lut, Optional()))
	require.NoError(t, svc.Start(ctx).Wait())
	assert.Equal(t, "svc1", lut.Writer())

	require.NoError(t, svc.UnregisterInOut(ctx, "lut"))
	assert.True(t, svc.IsStarted())
	assert.Empty(t, lut.Writer())

	require.NoError(t, svc.UnregisterInOut(ctx, "data"))
	assert.True(t, svc.IsStopped())
	assert.Empty(t, mesh.Writer())
	assert.Nil(t, svc.InOut("data"))
	assert.Equal(t, []string{"configuring", "starting", "stopping"}, rec.Calls())

	assert.ErrorIs(t, svc.UnregisterInOut(ctx, "missing"), ErrUnknownKey)
	runtime.KeepAlive(mesh)
	runtime.KeepAlive(lut)
}

func TestService_BindInOutWhileStarted(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	first := data.NewObject("first", "Mesh", nil)
	second := data.NewObject("second", "Mesh", nil)

	require.NoError(t, svc.RegisterInOut("data", first))
	require.NoError(t, svc.Start(ctx).Wait())

	require.NoError(t, svc.RegisterInOut("data", second))
	assert.Empty(t, first.Writer())
	assert.Equal(t, "svc1", second.Writer())

	require.NoError(t, second.Claim("svc1"))
	other := data.NewObject("other", "Mesh", nil)
	require.NoError(t, other.Claim("someone"))
	assert.ErrorIs(t, svc.RegisterInOut("data", other), data.ErrWriterConflict)
	assert.Same(t, second, svc.InOut("data"))

	require.NoError(t, svc.Stop(ctx).Wait())
	assert.Empty(t, second.Writer())
	runtime.KeepAlive(first)
}

func TestService_SwapKey(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, rec := newRecorder(t, reg, "svc1")
	first := data.NewObject("first", "Mesh", nil)
	second := data.NewObject("second", "Mesh", nil)

	var swapped []any
	svc.Signal(SignalSwapped).Connect(func(args ...any) { swapped = append(swapped, args...) })

	require.NoError(t, svc.RegisterInOut("data", first))

	// stopped services ignore swaps
	require.NoError(t, svc.SwapKey(ctx, "data", second).Wait())
	assert.Same(t, first, svc.InOut("data"))

	require.NoError(t, svc.Start(ctx).Wait())
	require.NoError(t, svc.SwapKey(ctx, "data", first).Wait())
	assert.Empty(t, swapped)

	require.NoError(t, svc.SwapKey(ctx, "data", second).Wait())
	assert.Equal(t, []any{"data"}, swapped)
	assert.Same(t, second, svc.InOut("data"))
	assert.Empty(t, first.Writer())
	assert.Equal(t, "svc1", second.Writer())
	assert.Contains(t, rec.Calls(), "swapping:data")
	assert.True(t, svc.IsStarted())

	assert.ErrorIs(t, svc.SwapKey(ctx, "missing", first).Wait(), ErrUnknownKey)
	require.NoError(t, svc.RegisterOutput("out", data.NewObject("svc1.out", "Mesh", nil)))
	assert.ErrorIs(t, svc.SwapKey(ctx, "out", first).Wait(), ErrAccessMismatch)

	require.NoError(t, svc.Slot(SlotSwapKey).Run(ctx, "data", first))
	assert.Same(t, first, svc.InOut("data"))

	require.NoError(t, svc.Stop(ctx).Wait())
	runtime.KeepAlive(second)
}

func TestService_SwapFailure(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, rec := newRecorder(t, reg, "svc1")
	first := data.NewObject("first", "Mesh", nil)
	second := data.NewObject("second", "Mesh", nil)
	swapped := countEmissions(svc.Signal(SignalSwapped))

	require.NoError(t, svc.RegisterInput("data", first))
	require.NoError(t, svc.Start(ctx).Wait())
	rec.failSwap = assert.AnError

	err := svc.SwapKey(ctx, "data", second).Wait()
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, StatusStarted, svc.GlobalStatus())
	assert.Zero(t, swapped.Load())
	assert.Same(t, second, svc.Object("data"))

	require.NoError(t, svc.Stop(ctx).Wait())
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
}

func TestService_SwapWithoutSwapper(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, err := reg.Add(typePlain, "plain")
	require.NoError(t, err)
	first := data.NewObject("first", "Mesh", nil)
	second := data.NewObject("second", "Mesh", nil)
	swapped := countEmissions(svc.Signal(SignalSwapped))

	require.NoError(t, svc.RegisterInput("data", first))
	require.NoError(t, svc.Start(ctx).Wait())
	require.NoError(t, svc.SwapKey(ctx, "data", second).Wait())
	assert.Equal(t, int32(1), swapped.Load())
	assert.Same(t, second, svc.Object("data"))
	require.NoError(t, svc.Stop(ctx).Wait())
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
}

func TestService_AutoConnect(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, rec := newRecorder(t, reg, "svc1")
	rec.conns = NewKeyConnectionsMap()
	rec.conns.Push("data", data.SignalModified, SlotUpdate).Push("image", data.SignalModified, SlotUpdate)
	assert.Equal(t, []string{"data", "image"}, rec.conns.Keys())

	mesh := data.NewObject("mesh", "Mesh", 0)
	require.NoError(t, svc.RegisterInOut("data", mesh, AutoConnect()))

	frame := data.NewObject("frame", "Image", 0)
	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 1, 2, AutoConnect()))
	require.NoError(t, svc.RegisterInputAt("image", 0, frame))

	mesh.Set(1)
	assert.NotContains(t, rec.Calls(), "updating")

	require.NoError(t, svc.Start(ctx).Wait())
	assert.Equal(t, 2, svc.AutoConnectionCount())

	mesh.Set(2)
	frame.Set(1)
	updates := 0
	for _, c := range rec.Calls() {
		if c == "updating" {
			updates++
		}
	}
	assert.Equal(t, 2, updates)

	require.NoError(t, svc.Stop(ctx).Wait())
	assert.Zero(t, svc.AutoConnectionCount())
	mesh.Set(3)
	assert.Equal(t, "stopping", rec.Calls()[len(rec.Calls())-1])
	runtime.KeepAlive(frame)
}

func TestService_AutoConnectAllKeys(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	svc, rec := newRecorder(t, reg, "svc1")
	rec.conns = NewKeyConnectionsMap()
	rec.conns.Push("data", data.SignalModified, SlotUpdate).Push("data", "missingSignal", SlotUpdate)

	mesh := data.NewObject("mesh", "Mesh", 0)
	lut := data.NewObject("lut", "Lut", 0)
	require.NoError(t, svc.RegisterInput("data", mesh))
	require.NoError(t, svc.RegisterInput("lut", lut))
	svc.SetAutoConnect(true)

	require.NoError(t, svc.Start(ctx).Wait())
	assert.Equal(t, 1, svc.AutoConnectionCount())
	require.NoError(t, svc.Stop(ctx).Wait())
	runtime.KeepAlive(mesh)
	runtime.KeepAlive(lut)
}

func TestService_ObjectStatuses(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	mesh := data.NewObject("mesh", "Mesh", nil)

	require.NoError(t, svc.RegisterInOut("data", mesh))
	require.NoError(t, svc.RegisterObject("lut", AccessInput, Optional(), WithID("lut-1")))

	assert.Equal(t, []ObjectStatus{
		{Key: "data", Access: AccessInOut, ID: "mesh", Bound: true},
		{Key: "lut", Access: AccessInput, ID: "lut-1", Optional: true},
	}, svc.Status().Objects)
	runtime.KeepAlive(mesh)
}

func TestService_RedeclareObjectGroup(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	first := data.NewObject("first", "Image", nil)

	require.NoError(t, svc.RegisterInput("image#0", first))
	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 2, 4))
	assert.Equal(t, []string{"image#1"}, svc.MissingObjects())
	assert.Equal(t, 1, svc.KeyGroupSize("image"))

	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 1, 2))
	assert.True(t, svc.HasAllRequiredObjects())

	keys := make([]string, 0)
	for _, st := range svc.ObjectStatuses() {
		keys = append(keys, st.Key)
	}
	assert.Equal(t, []string{"image#0", "image#1"}, keys)
	runtime.KeepAlive(first)
}

func TestService_ShrinkObjectGroup(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	first := data.NewObject("first", "Image", nil)
	third := data.NewObject("third", "Image", nil)

	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 3, 3))
	require.NoError(t, svc.RegisterInputAt("image", 2, third))
	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 1, 1))
	require.NoError(t, svc.RegisterInputAt("image", 0, first))

	// The member past the new maximum stays bound but no longer required.
	assert.True(t, svc.HasAllRequiredObjects())
	assert.True(t, svc.IsOptional("image#2"))
	assert.NotNil(t, svc.Input("image#2"))

	require.NoError(t, svc.UnregisterInput("image#2"))
	assert.True(t, svc.HasAllRequiredObjects())
	assert.Empty(t, svc.MissingObjects())

	keys := make([]string, 0)
	for _, st := range svc.ObjectStatuses() {
		keys = append(keys, st.Key)
	}
	assert.Equal(t, []string{"image#0"}, keys)
	runtime.KeepAlive(first)
	runtime.KeepAlive(third)
}

func TestService_ObjectGroupIgnoresID(t *testing.T) {
	reg := newTestRegistry(t)
	svc, _ := newRecorder(t, reg, "svc1")
	second := data.NewObject("second", "Image", nil)

	require.NoError(t, svc.RegisterObjectGroup("image", AccessInput, 1, 2, WithID("shared"), AutoConnect()))
	assert.Empty(t, svc.ObjectID("image#0"))
	assert.Empty(t, svc.ObjectID("image#1"))
	assert.False(t, svc.IsOptional("image#0"))
	assert.True(t, svc.IsOptional("image#1"))
	assert.False(t, svc.IsOptional("unknown"))

	require.NoError(t, svc.RegisterInputAt("image", 1, second))
	assert.Equal(t, "second", svc.ObjectID("image#1"))
	assert.Empty(t, svc.ObjectID("image#0"))
	runtime.KeepAlive(second)
}
