package data

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObject_SetEmitsSignals(t *testing.T) {
	obj := NewObject("counter", "int", 1)

	var modified []any
	var changes [][2]any
	obj.Signal(SignalModified).Connect(func(args ...any) { modified = append(modified, args[0]) })
	obj.Signal(SignalObjectChanged).Connect(func(args ...any) { changes = append(changes, [2]any{args[0], args[1]}) })

	obj.Set(2)
	obj.Update(func(old any) any { return old.(int) * 10 })

	assert.Equal(t, 20, obj.Get())
	assert.Equal(t, []any{2, 20}, modified)
	assert.Equal(t, [][2]any{{1, 2}, {2, 20}}, changes)
	assert.Equal(t, "counter(int)=20", obj.String())
}

func TestObject_ConcurrentUpdates(t *testing.T) {
	obj := NewObject("counter", "int", 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj.Update(func(old any) any { return old.(int) + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, obj.Get())
}

func TestObject_WriterLease(t *testing.T) {
	obj := NewObject("image", "string", "")

	require.NoError(t, obj.Claim("filter"))
	require.NoError(t, obj.Claim("filter"))
	assert.Equal(t, "filter", obj.Writer())

	err := obj.Claim("other")
	assert.ErrorIs(t, err, ErrWriterConflict)
	assert.Contains(t, err.Error(), "written by filter")

	obj.Release("other")
	assert.Equal(t, "filter", obj.Writer())
	obj.Release("filter")
	assert.Empty(t, obj.Writer())
	assert.NoError(t, obj.Claim("other"))
}

func TestObject_ImplementsReader(t *testing.T) {
	var r Reader = NewObject("a", "int", 3)
	assert.Equal(t, "a", r.ID())
	assert.Equal(t, 3, r.Get())
	assert.NotNil(t, r.Signal(SignalModified))
	assert.Nil(t, r.Signal("unknown"))
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()

	var added, removed []string
	r.Signal(SignalAdded).Connect(func(args ...any) { added = append(added, args[0].(*Object).ID()) })
	r.Signal(SignalRemoved).Connect(func(args ...any) { removed = append(removed, args[0].(*Object).ID()) })

	b := NewObject("b", "int", 0)
	a := NewObject("a", "int", 0)
	require.NoError(t, r.Add(b))
	require.NoError(t, r.Add(a))
	require.NoError(t, r.Add(a))
	assert.ErrorIs(t, r.Add(NewObject("a", "int", 0)), ErrObjectExists)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, []*Object{a, b}, r.Objects())
	assert.Equal(t, 2, r.Len())

	_, err = r.Remove("a")
	require.NoError(t, err)
	_, err = r.Get("a")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = r.Remove("a")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	assert.Equal(t, []string{"b", "a"}, added)
	assert.Equal(t, []string{"a"}, removed)
}

func TestRegistry_PublishWithdraw(t *testing.T) {
	r := NewRegistry()

	first := NewObject("out", "string", "one")
	require.NoError(t, r.Publish("echo", "echo", first))
	require.NoError(t, r.Publish("echo", "echo", first))

	got, ok := r.Output("echo", "echo")
	require.True(t, ok)
	assert.Same(t, first, got)

	// Replacing the output withdraws the previous object first.
	second := NewObject("out", "string", "two")
	require.NoError(t, r.Publish("echo", "echo", second))
	obj, err := r.Get("out")
	require.NoError(t, err)
	assert.Same(t, second, obj)

	r.Withdraw("echo", "echo")
	_, ok = r.Output("echo", "echo")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())

	r.Withdraw("echo", "missing")
}

func TestRegistry_PublishConflict(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(NewObject("taken", "int", 0)))

	err := r.Publish("svc", "out", NewObject("taken", "int", 1))
	assert.ErrorIs(t, err, ErrObjectExists)
	_, ok := r.Output("svc", "out")
	assert.False(t, ok)
}
