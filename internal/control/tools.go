package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"gopkg.in/yaml.v3"

	"sight/internal/app"
	"sight/internal/data"
	"sight/internal/service"
)

// Application is the part of the application manager the tools drive.
type Application interface {
	Status() []app.ServiceStatus
	Service(id string) (*service.Service, error)
	Registry() *service.Registry
	Objects() *data.Registry
}

// Tools provides MCP tools inspecting and driving a running application
type Tools struct {
	app Application
}

// NewTools creates the tools for a
func NewTools(a Application) *Tools {
	return &Tools{app: a}
}

// GetTools returns all tool definitions
func (t *Tools) GetTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("list_services",
			mcp.WithDescription("List the services of the application with their status"),
		),
		mcp.NewTool("service_status",
			mcp.WithDescription("Describe one service: status, worker and object keys"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Service id"),
			),
		),
		mcp.NewTool("start_service",
			mcp.WithDescription("Start a stopped service"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Service id"),
			),
		),
		mcp.NewTool("stop_service",
			mcp.WithDescription("Stop a started service"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Service id"),
			),
		),
		mcp.NewTool("update_service",
			mcp.WithDescription("Run one update of a started service"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Service id"),
			),
		),
		mcp.NewTool("list_types",
			mcp.WithDescription("List the service types the application can create"),
		),
		mcp.NewTool("set_object",
			mcp.WithDescription("Set the value of a data object in the object registry"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Object id"),
			),
			mcp.WithString("value",
				mcp.Required(),
				mcp.Description("New value, written as YAML (42, true, hello, [1, 2])"),
			),
		),
	}
}

// Handle routes a call to the handler of the named tool
func (t *Tools) Handle(ctx context.Context, name string, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch name {
	case "list_services":
		return t.HandleListServices(ctx, req)
	case "service_status":
		return t.HandleServiceStatus(ctx, req)
	case "start_service":
		return t.HandleStartService(ctx, req)
	case "stop_service":
		return t.HandleStopService(ctx, req)
	case "update_service":
		return t.HandleUpdateService(ctx, req)
	case "list_types":
		return t.HandleListTypes(ctx, req)
	case "set_object":
		return t.HandleSetObject(ctx, req)
	}
	return nil, fmt.Errorf("unknown tool: %s", name)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// HandleListServices handles the list_services tool
func (t *Tools) HandleListServices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	statuses := t.app.Status()
	if len(statuses) == 0 {
		return mcp.NewToolResultText("No services"), nil
	}

	type serviceInfo struct {
		ID       string               `json:"id"`
		Type     service.Type         `json:"type"`
		Status   service.GlobalStatus `json:"status"`
		Deferred bool                 `json:"deferred,omitempty"`
	}
	list := make([]serviceInfo, len(statuses))
	for i, st := range statuses {
		list[i] = serviceInfo{ID: st.ID, Type: st.Type, Status: st.Global, Deferred: st.Deferred}
	}
	return jsonResult(list)
}

func (t *Tools) lookup(req mcp.CallToolRequest) (*service.Service, *mcp.CallToolResult) {
	id, err := req.RequireString("id")
	if err != nil {
		return nil, mcp.NewToolResultError("id parameter is required")
	}
	svc, err := t.app.Service(id)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("Service not found: %s", id))
	}
	return svc, nil
}

// HandleServiceStatus handles the service_status tool
func (t *Tools) HandleServiceStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, errResult := t.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	for _, st := range t.app.Status() {
		if st.ID == svc.ID() {
			return jsonResult(st)
		}
	}
	return jsonResult(app.ServiceStatus{Status: svc.Status(), Missing: svc.MissingObjects()})
}

// HandleStartService handles the start_service tool
func (t *Tools) HandleStartService(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, errResult := t.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	if missing := svc.MissingObjects(); len(missing) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("Service %s is missing required objects: %v", svc.ID(), missing)), nil
	}
	if err := svc.Start(ctx).WaitContext(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start %s: %v", svc.ID(), err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Service %s is %s", svc.ID(), svc.GlobalStatus())), nil
}

// HandleStopService handles the stop_service tool
func (t *Tools) HandleStopService(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, errResult := t.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := svc.Stop(ctx).WaitContext(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop %s: %v", svc.ID(), err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Service %s is %s", svc.ID(), svc.GlobalStatus())), nil
}

// HandleUpdateService handles the update_service tool
func (t *Tools) HandleUpdateService(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	svc, errResult := t.lookup(req)
	if errResult != nil {
		return errResult, nil
	}
	if !svc.IsStarted() {
		return mcp.NewToolResultError(fmt.Sprintf("Service %s is %s", svc.ID(), svc.GlobalStatus())), nil
	}
	if err := svc.Update(ctx).WaitContext(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update %s: %v", svc.ID(), err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Service %s updated", svc.ID())), nil
}

// HandleListTypes handles the list_types tool
func (t *Tools) HandleListTypes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.app.Registry().Factory().Types())
}

// HandleSetObject handles the set_object tool
func (t *Tools) HandleSetObject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	raw, err := req.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError("value parameter is required"), nil
	}

	obj, err := t.app.Objects().Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Object not found: %s", id)), nil
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Invalid value: %v", err)), nil
	}
	obj.Set(value)
	return mcp.NewToolResultText(fmt.Sprintf("Object %s set to %v", id, value)), nil
}
