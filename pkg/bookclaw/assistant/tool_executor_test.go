package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestToolExecutor(t *testing.T) {
	t.Run("registered tool executes", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("echo", "echoes the input", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				return fmt.Sprintf("got %v", args["value"]), nil
			})

		results := exec.Execute(context.Background(), []ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: FunctionCall{Name: "echo", Arguments: `{"value":"hi"}`},
		}})

		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].Err != nil {
			t.Fatalf("unexpected error: %v", results[0].Err)
		}
		if results[0].Content != "got hi" {
			t.Errorf("content = %q", results[0].Content)
		}
		if results[0].ToolCallID != "call_1" || results[0].Name != "echo" {
			t.Errorf("result metadata = %+v", results[0])
		}
	})

	t.Run("unknown tool becomes textual result", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())

		results := exec.Execute(context.Background(), []ToolCall{{
			ID:       "call_1",
			Function: FunctionCall{Name: "missing", Arguments: `{}`},
		}})

		if results[0].Err == nil {
			t.Error("expected error recorded")
		}
		if !strings.Contains(results[0].Content, "unknown tool") {
			t.Errorf("content = %q, want unknown-tool text", results[0].Content)
		}
	})

	t.Run("bad JSON arguments become textual result", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("echo", "test", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				return "ok", nil
			})

		results := exec.Execute(context.Background(), []ToolCall{{
			ID:       "call_1",
			Function: FunctionCall{Name: "echo", Arguments: `{not json`},
		}})

		if results[0].Err == nil {
			t.Error("expected error recorded")
		}
		if !strings.Contains(results[0].Content, "Error parsing arguments") {
			t.Errorf("content = %q", results[0].Content)
		}
	})

	t.Run("handler error becomes textual result", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("fail", "test", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				return "", fmt.Errorf("calendar unreachable")
			})

		results := exec.Execute(context.Background(), []ToolCall{{
			ID:       "call_1",
			Function: FunctionCall{Name: "fail", Arguments: `{}`},
		}})

		if results[0].Content != "Error: calendar unreachable" {
			t.Errorf("content = %q", results[0].Content)
		}
	})

	t.Run("calls run sequentially in order", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())
		var order []string
		exec.Register(MakeToolDefinition("record", "test", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				order = append(order, args["n"].(string))
				return "ok", nil
			})

		calls := []ToolCall{
			{ID: "a", Function: FunctionCall{Name: "record", Arguments: `{"n":"1"}`}},
			{ID: "b", Function: FunctionCall{Name: "record", Arguments: `{"n":"2"}`}},
			{ID: "c", Function: FunctionCall{Name: "record", Arguments: `{"n":"3"}`}},
		}
		exec.Execute(context.Background(), calls)

		if strings.Join(order, ",") != "1,2,3" {
			t.Errorf("execution order = %v", order)
		}
	})

	t.Run("tools listed in registration order", func(t *testing.T) {
		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("b_tool", "second alphabetically", nil), nil)
		exec.Register(MakeToolDefinition("a_tool", "first alphabetically", nil), nil)

		defs := exec.Tools()
		if len(defs) != 2 {
			t.Fatalf("expected 2 definitions, got %d", len(defs))
		}
		if defs[0].Function.Name != "b_tool" || defs[1].Function.Name != "a_tool" {
			t.Errorf("order = %s,%s", defs[0].Function.Name, defs[1].Function.Name)
		}
	})

	t.Run("empty arguments accepted", func(t *testing.T) {
		got, err := parseToolArgs("")
		if err != nil || len(got) != 0 {
			t.Errorf("parseToolArgs(\"\") = %v, %v", got, err)
		}
	})
}
