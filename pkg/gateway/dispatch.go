package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"voxcore/pkg/logging"
	"voxcore/pkg/protocol"
)

// PendingNotification is the result of a completed background tool call,
// queued for delivery once the controller reaches a safe window.
type PendingNotification struct {
	ToolName string
	Payload  map[string]any
	QueuedAt time.Time
}

// Gateway dispatches JSON-RPC tool-gateway requests against a Registry.
type Gateway struct {
	registry *Registry
	notify   chan PendingNotification
	logger   logging.Logger
}

// New builds a Gateway over reg. notifyBuf sizes the background-completion
// notification channel.
func New(reg *Registry, notifyBuf int, logger logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default("gateway")
	}
	if notifyBuf <= 0 {
		notifyBuf = 16
	}
	return &Gateway{
		registry: reg,
		notify:   make(chan PendingNotification, notifyBuf),
		logger:   logger,
	}
}

// Notifications returns the channel background tool completions are queued
// on. The controller drains it during Idle windows.
func (g *Gateway) Notifications() <-chan PendingNotification {
	return g.notify
}

// Handle processes one incoming MCP JSON-RPC payload. It returns nil, nil for
// a notification (no response expected) and a response envelope otherwise.
func (g *Gateway) Handle(ctx context.Context, raw json.RawMessage) (*protocol.JSONRPCResponse, error) {
	var req protocol.JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("gateway: malformed json-rpc payload: %w", err)
	}
	if req.JSONRPC != "2.0" {
		return nil, fmt.Errorf("gateway: unsupported jsonrpc version %q", req.JSONRPC)
	}
	if req.IsNotification() {
		g.logger.InfoPrintf("mcp notification received (no response needed): %s", req.Method)
		return nil, nil
	}

	var (
		result any
		errMsg string
		code   = protocol.JSONRPCMethodNotFound
	)
	switch req.Method {
	case "initialize":
		result = map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "voxcore", "version": "1.0.0"},
		}
	case "tools/list":
		result = g.toolsList()
	case "tools/call":
		result, code, errMsg = g.toolsCall(ctx, req.Params)
	default:
		errMsg = fmt.Sprintf("Method not found: %s", req.Method)
	}

	if errMsg != "" {
		return protocol.NewErrorResponse(req.ID, code, errMsg), nil
	}
	return protocol.NewResultResponse(req.ID, result), nil
}

func (g *Gateway) toolsList() map[string]any {
	descs := g.registry.List()
	list := make([]map[string]any, 0, len(descs))
	for _, d := range descs {
		list = append(list, map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"inputSchema": d.InputSchema,
		})
	}
	return map[string]any{"tools": list}
}

func (g *Gateway) toolsCall(ctx context.Context, rawParams json.RawMessage) (any, int, string) {
	if len(rawParams) == 0 {
		return nil, protocol.JSONRPCInvalidParams, "Missing parameters"
	}
	var params protocol.ToolsCallParams
	if err := json.Unmarshal(rawParams, &params); err != nil {
		return nil, protocol.JSONRPCInvalidParams, "Missing parameters"
	}
	if params.Name == "" {
		return nil, protocol.JSONRPCInvalidParams, "Missing tool name"
	}

	d, ok := g.registry.Lookup(params.Name)
	if !ok {
		return nil, protocol.JSONRPCMethodNotFound, fmt.Sprintf("Tool %s not found", params.Name)
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	if err := validateArgs(d, args); err != nil {
		return nil, protocol.JSONRPCInvalidParams, err.Error()
	}

	result, err := g.call(ctx, d, args)
	if err != nil {
		return nil, protocol.JSONRPCInternalError, err.Error()
	}
	return result, 0, ""
}

// call runs d against args per its configured Mode, returning the standard
// MCP tool-output shape.
func (g *Gateway) call(ctx context.Context, d *Descriptor, args json.RawMessage) (map[string]any, error) {
	if d.Mode == ModeBackground {
		go g.runBackground(d, args)
		return map[string]any{
			"status":  "started",
			"message": fmt.Sprintf("Task '%s' started in the background, you'll be notified when it's done.", d.Name),
		}, nil
	}
	return g.runSync(ctx, d, args)
}

func (g *Gateway) runSync(ctx context.Context, d *Descriptor, args json.RawMessage) (map[string]any, error) {
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(d.TimeoutMs)*time.Millisecond)
	defer cancel()

	resultCh := make(chan result, 1)
	go func() { resultCh <- g.run(callCtx, d, args) }()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, r.err
		}
		return protocol.ToolOutputText(r.text), nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("Tool '%s' execution timed out after %d ms", d.Name, d.TimeoutMs)
	}
}

func (g *Gateway) runBackground(d *Descriptor, args json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(d.TimeoutMs)*time.Millisecond)
	defer cancel()

	g.logger.InfoPrintf("background task started: %s", d.Name)

	resultCh := make(chan result, 1)
	go func() { resultCh <- g.run(ctx, d, args) }()

	var n PendingNotification
	n.ToolName = d.Name

	select {
	case r := <-resultCh:
		if r.err != nil {
			g.logger.ErrorPrintf("background task %q failed: %v", d.Name, r.err)
			n.Payload = map[string]any{"error": r.err.Error()}
		} else {
			g.logger.InfoPrintf("background task %q completed", d.Name)
			n.Payload = protocol.ToolOutputText(r.text)
		}
	case <-ctx.Done():
		msg := fmt.Sprintf("background task timed out (%dms)", d.TimeoutMs)
		g.logger.ErrorPrintf("%s: %s", d.Name, msg)
		n.Payload = map[string]any{"error": msg}
	}

	select {
	case g.notify <- n:
	default:
		g.logger.WarnPrintf("notification queue full, dropping result for %q", d.Name)
	}
}

type result struct {
	text string
	err  error
}

func (g *Gateway) run(ctx context.Context, d *Descriptor, args json.RawMessage) result {
	text, err := execute(ctx, d, args)
	return result{text: text, err: err}
}
