package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sight/internal/app"
	"sight/internal/config"
	"sight/internal/service"
	"sight/internal/services"
)

const controlledApp = `
name: controlled
objects:
  - id: count
    type: int
    value: 0
services:
  - id: counter
    type: sight::module::Counter
    objects:
      - key: value
        id: count
        access: inout
  - id: greeter
    type: sight::module::Echo
    config:
      message: hello
  - id: copy
    type: sight::module::Copier
    groups:
      - key: sources
        access: in
        min: 1
        max: 1
    objects:
      - key: sources
        index: 0
        id: nowhere
        access: in
`

func newTestTools(t *testing.T) (*Tools, *app.Manager) {
	t.Helper()
	def, err := config.ParseAppDefinition([]byte(controlledApp))
	require.NoError(t, err)
	m := app.NewManager(def, services.NewFactory())
	require.NoError(t, m.Build())
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, m.Stop(context.Background())) })
	return NewTools(m), m
}

func call(t *testing.T, tools *Tools, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	if args != nil {
		req.Params.Arguments = args
	}
	result, err := tools.Handle(context.Background(), name, req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestTools_Definitions(t *testing.T) {
	tools := NewTools(nil)
	var names []string
	for _, tool := range tools.GetTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"list_services", "service_status", "start_service", "stop_service",
		"update_service", "list_types", "set_object",
	}, names)

	_, err := tools.Handle(context.Background(), "unknown", mcp.CallToolRequest{})
	assert.Error(t, err)
}

func TestTools_ListServices(t *testing.T) {
	tools, _ := newTestTools(t)

	result := call(t, tools, "list_services", nil)
	assert.False(t, result.IsError)

	var list []struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Deferred bool   `json:"deferred"`
	}
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &list))
	require.Len(t, list, 3)
	assert.Equal(t, "counter", list[0].ID)
	assert.Equal(t, "STARTED", list[0].Status)
	assert.Equal(t, "copy", list[2].ID)
	assert.True(t, list[2].Deferred)
}

func TestTools_ServiceLifecycle(t *testing.T) {
	tools, m := newTestTools(t)
	counter, err := m.Service("counter")
	require.NoError(t, err)

	result := call(t, tools, "update_service", map[string]any{"id": "counter"})
	assert.False(t, result.IsError)
	count, err := m.Objects().Get("count")
	require.NoError(t, err)
	assert.Equal(t, 1, count.Get())

	result = call(t, tools, "stop_service", map[string]any{"id": "counter"})
	assert.Equal(t, "Service counter is STOPPED", text(t, result))
	assert.True(t, counter.IsStopped())

	result = call(t, tools, "update_service", map[string]any{"id": "counter"})
	assert.True(t, result.IsError)

	result = call(t, tools, "start_service", map[string]any{"id": "counter"})
	assert.Equal(t, "Service counter is STARTED", text(t, result))

	result = call(t, tools, "start_service", map[string]any{"id": "copy"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "missing required objects: [sources#0]")

	result = call(t, tools, "start_service", map[string]any{"id": "ghost"})
	assert.True(t, result.IsError)
	assert.Equal(t, "Service not found: ghost", text(t, result))

	result = call(t, tools, "stop_service", nil)
	assert.True(t, result.IsError)
}

func TestTools_ServiceStatus(t *testing.T) {
	tools, _ := newTestTools(t)

	result := call(t, tools, "service_status", map[string]any{"id": "copy"})
	require.False(t, result.IsError)

	var st app.ServiceStatus
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &st))
	assert.Equal(t, "copy", st.ID)
	assert.Equal(t, service.StatusStopped, st.Global)
	assert.True(t, st.Deferred)
	assert.Equal(t, []string{"sources#0"}, st.Missing)
}

func TestTools_ListTypes(t *testing.T) {
	tools, _ := newTestTools(t)

	var types []string
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, tools, "list_types", nil))), &types))
	assert.Contains(t, types, "sight::module::Counter")
	assert.Len(t, types, 4)
}

func TestTools_SetObject(t *testing.T) {
	tools, m := newTestTools(t)

	result := call(t, tools, "set_object", map[string]any{"id": "count", "value": "41"})
	require.False(t, result.IsError)
	result = call(t, tools, "update_service", map[string]any{"id": "counter"})
	require.False(t, result.IsError)

	count, err := m.Objects().Get("count")
	require.NoError(t, err)
	assert.Equal(t, 42, count.Get())

	result = call(t, tools, "set_object", map[string]any{"id": "missing", "value": "1"})
	assert.True(t, result.IsError)
	result = call(t, tools, "set_object", map[string]any{"id": "count", "value": "[unclosed"})
	assert.True(t, result.IsError)
}

func TestNewServer(t *testing.T) {
	_, m := newTestTools(t)
	s := NewServer(m, "1.2.3")

	response := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Result.Tools, 7)
}
