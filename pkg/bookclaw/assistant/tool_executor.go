// Package assistant – tool_executor.go manages a registry of callable
// tools and dispatches tool calls from the LLM to their handlers.
// Every failure path — unknown tool, bad arguments, handler error — is
// converted into a textual result so the LLM can reason about it inside
// the same loop; nothing propagates as an error to the orchestrator.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// DefaultToolTimeout is the maximum time a single tool execution can take.
const DefaultToolTimeout = 30 * time.Second

// ToolHandlerFunc is the signature for tool execution handlers.
// Receives parsed arguments and returns the result or an error.
type ToolHandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// registeredTool bundles a tool definition with its handler.
type registeredTool struct {
	Definition ToolDefinition
	Handler    ToolHandlerFunc
}

// ToolResult holds the output of a single tool execution. Content is
// always populated, even on failure.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    string
	Err        error
}

// ToolExecutor manages tool registration and dispatches tool calls.
// An executor is created per message, so handlers may close over
// per-sender state such as customer info.
type ToolExecutor struct {
	tools   map[string]*registeredTool
	order   []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewToolExecutor creates a new empty tool executor.
func NewToolExecutor(logger *slog.Logger) *ToolExecutor {
	return &ToolExecutor{
		tools:   make(map[string]*registeredTool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tool_executor"),
	}
}

// Register adds a tool with its definition and handler.
// If a tool with the same name already exists, it is overwritten.
func (e *ToolExecutor) Register(def ToolDefinition, handler ToolHandlerFunc) {
	name := def.Function.Name
	if _, exists := e.tools[name]; !exists {
		e.order = append(e.order, name)
	}
	e.tools[name] = &registeredTool{
		Definition: def,
		Handler:    handler,
	}

	e.logger.Debug("tool registered", "name", name)
}

// Tools returns all registered tool definitions for the LLM, in
// registration order.
func (e *ToolExecutor) Tools() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, e.tools[name].Definition)
	}
	return defs
}

// Execute dispatches a batch of tool calls to their registered handlers.
// Tools run sequentially, in the order received, each with a per-tool
// timeout. Returns results in the same order as the input calls.
func (e *ToolExecutor) Execute(ctx context.Context, calls []ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	for i, call := range calls {
		results[i] = e.executeSingle(ctx, call)
	}
	return results
}

// executeSingle runs a single tool call and returns the result.
func (e *ToolExecutor) executeSingle(ctx context.Context, call ToolCall) ToolResult {
	name := call.Function.Name
	result := ToolResult{
		ToolCallID: call.ID,
		Name:       name,
	}

	tool, ok := e.tools[name]
	if !ok {
		result.Content = fmt.Sprintf("Error: unknown tool %q", name)
		result.Err = fmt.Errorf("unknown tool: %s", name)
		e.logger.Warn("unknown tool called", "name", name)
		return result
	}

	args, err := parseToolArgs(call.Function.Arguments)
	if err != nil {
		result.Content = fmt.Sprintf("Error parsing arguments: %v", err)
		result.Err = err
		e.logger.Warn("tool argument parse error", "name", name, "error", err)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	output, err := tool.Handler(execCtx, args)
	duration := time.Since(start)

	if err != nil {
		result.Content = fmt.Sprintf("Error: %v", err)
		result.Err = err
		e.logger.Warn("tool execution failed",
			"name", name,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return result
	}

	result.Content = output

	e.logger.Info("tool executed",
		"name", name,
		"duration_ms", duration.Milliseconds(),
		"output_len", len(result.Content),
	)

	return result
}

// MakeToolDefinition creates a ToolDefinition from name, description,
// and a JSON Schema parameter map.
func MakeToolDefinition(name, description string, params map[string]any) ToolDefinition {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if params != nil {
		schema = params
	}

	schemaJSON, _ := json.Marshal(schema)

	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  schemaJSON,
		},
	}
}

// parseToolArgs parses JSON-encoded tool arguments into a map.
func parseToolArgs(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}
