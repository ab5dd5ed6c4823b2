package echo

import (
	"bytes"
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sight/internal/config"
	"sight/internal/data"
	"sight/internal/service"
)

// observer records signal emissions.
type observer struct {
	mock.Mock
}

func (o *observer) Notified(args ...any) {
	o.Called(args...)
}

func newEcho(t *testing.T, id string) (*service.Registry, *service.Service, *Service) {
	t.Helper()
	f := service.NewFactory()
	require.NoError(t, f.Register(Type, New))
	reg := service.NewRegistry(f)
	svc, err := reg.Add(Type, id)
	require.NoError(t, err)
	impl, ok := service.ImplAs[*Service](svc)
	require.True(t, ok)
	return reg, svc, impl
}

func TestEcho_Message(t *testing.T) {
	ctx := context.Background()
	reg, svc, impl := newEcho(t, "greeter")
	svc.SetConfig(config.MustParseTree("message: hello"))

	require.NoError(t, svc.Start(ctx).Wait())
	assert.Equal(t, "hello", impl.Message())
	require.NoError(t, svc.Update(ctx).Wait())

	out := svc.Output(KeyEcho)
	require.NotNil(t, out)
	assert.Equal(t, "hello", out.Get())
	published, err := reg.Objects().Get("greeter.echo")
	require.NoError(t, err)
	assert.Same(t, out, published)

	require.NoError(t, svc.Update(ctx).Wait())
	assert.Same(t, out, svc.Output(KeyEcho))
	assert.Equal(t, 2, impl.Echoes())
	require.NoError(t, svc.Stop(ctx).Wait())
}

func TestEcho_FollowsSource(t *testing.T) {
	ctx := context.Background()
	_, svc, _ := newEcho(t, "greeter")
	src := data.NewObject("name", "int", 1)
	require.NoError(t, svc.RegisterInput(KeySource, src))

	require.NoError(t, svc.Start(ctx).Wait())
	assert.Equal(t, 1, svc.AutoConnectionCount())

	src.Set(42)
	require.NotNil(t, svc.Output(KeyEcho))
	assert.Equal(t, "42", svc.Output(KeyEcho).Get())

	require.NoError(t, svc.Stop(ctx).Wait())
	src.Set(7)
	assert.Equal(t, "42", svc.Output(KeyEcho).Get())
	runtime.KeepAlive(src)
}

func TestEcho_Slot(t *testing.T) {
	ctx := context.Background()
	_, svc, impl := newEcho(t, "greeter")

	obs := &observer{}
	obs.On("Notified").Once()
	svc.Signal(service.SignalUpdated).Connect(obs.Notified)

	require.NoError(t, svc.Start(ctx).Wait())
	require.NoError(t, svc.Slot(SlotEcho).Run(ctx, "bye"))

	assert.Equal(t, "bye", impl.Message())
	assert.Equal(t, "bye", svc.Output(KeyEcho).Get())
	obs.AssertExpectations(t)

	var buf bytes.Buffer
	svc.Info(&buf)
	assert.Contains(t, buf.String(), `message: "bye", echoes: 1`)
	require.NoError(t, svc.Stop(ctx).Wait())
}
