package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeLLMServer serves scripted chat completion responses in order.
// Each script entry is the raw JSON body for one request.
func fakeLLMServer(t *testing.T, script []string) (*httptest.Server, *[][]Message) {
	t.Helper()

	var requests [][]Message
	call := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []Message `json:"messages"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		requests = append(requests, req.Messages)

		if call >= len(script) {
			t.Errorf("unexpected LLM call %d (script has %d)", call+1, len(script))
			http.Error(w, "script exhausted", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, script[call])
		call++
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func textResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":%q},"finish_reason":"stop"}]}`, content)
}

func toolCallResponse(id, name, args string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"content":"","tool_calls":[
		{"id":%q,"type":"function","function":{"name":%q,"arguments":%q}}
	]},"finish_reason":"tool_calls"}]}`, id, name, args)
}

func testLLM(t *testing.T, baseURL string) *LLMClient {
	t.Helper()
	return NewLLMClient(AIConfig{
		Model:   "test-model",
		BaseURL: baseURL,
		APIKey:  "test-key",
	}, slog.Default())
}

func TestAgentRun(t *testing.T) {
	t.Run("final text on first turn", func(t *testing.T) {
		srv, requests := fakeLLMServer(t, []string{
			textResponse("We are open from 9 to 18."),
		})

		agent := NewAgentRun(testLLM(t, srv.URL), NewToolExecutor(slog.Default()), 5, slog.Default())
		result, err := agent.Run(context.Background(), "You are a bot.", nil, "What are your hours?")
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Reply != "We are open from 9 to 18." {
			t.Errorf("reply = %q", result.Reply)
		}
		if result.Exhausted {
			t.Error("unexpected exhaustion")
		}
		if result.Loops != 1 {
			t.Errorf("loops = %d, want 1", result.Loops)
		}

		// Transcript: user turn + final assistant turn.
		if len(result.Transcript) != 2 {
			t.Fatalf("transcript has %d turns, want 2", len(result.Transcript))
		}
		if result.Transcript[0].Role != "user" || result.Transcript[1].Role != "assistant" {
			t.Errorf("transcript roles = %s,%s", result.Transcript[0].Role, result.Transcript[1].Role)
		}

		// The prompt must open with the system turn.
		first := (*requests)[0]
		if first[0].Role != "system" || first[0].Content != "You are a bot." {
			t.Errorf("prompt did not start with system turn: %+v", first[0])
		}
	})

	t.Run("tool call then final text", func(t *testing.T) {
		srv, requests := fakeLLMServer(t, []string{
			toolCallResponse("call_1", "get_slot", `{}`),
			textResponse("That slot is free."),
		})

		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("get_slot", "test tool", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				return "Free", nil
			})

		agent := NewAgentRun(testLLM(t, srv.URL), exec, 5, slog.Default())
		result, err := agent.Run(context.Background(), "sys", nil, "Is 10am free?")
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if result.Reply != "That slot is free." {
			t.Errorf("reply = %q", result.Reply)
		}
		if result.Loops != 2 {
			t.Errorf("loops = %d, want 2", result.Loops)
		}

		// Transcript: user, assistant(tool_calls), tool, assistant(final).
		wantRoles := []string{"user", "assistant", "tool", "assistant"}
		if len(result.Transcript) != len(wantRoles) {
			t.Fatalf("transcript has %d turns, want %d", len(result.Transcript), len(wantRoles))
		}
		for i, role := range wantRoles {
			if result.Transcript[i].Role != role {
				t.Errorf("transcript[%d].Role = %s, want %s", i, result.Transcript[i].Role, role)
			}
		}
		if result.Transcript[2].ToolCallID != "call_1" || result.Transcript[2].Content != "Free" {
			t.Errorf("tool turn = %+v", result.Transcript[2])
		}

		// The second request must carry the tool result back.
		second := (*requests)[1]
		last := second[len(second)-1]
		if last.Role != "tool" || last.Content != "Free" {
			t.Errorf("second request did not end with tool result: %+v", last)
		}
	})

	t.Run("history replayed between system and user turn", func(t *testing.T) {
		srv, requests := fakeLLMServer(t, []string{textResponse("ok")})

		history := []Message{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		}

		agent := NewAgentRun(testLLM(t, srv.URL), NewToolExecutor(slog.Default()), 5, slog.Default())
		result, err := agent.Run(context.Background(), "sys", history, "new question")
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		first := (*requests)[0]
		wantRoles := []string{"system", "user", "assistant", "user"}
		if len(first) != len(wantRoles) {
			t.Fatalf("prompt has %d turns, want %d", len(first), len(wantRoles))
		}
		if first[1].Content != "earlier question" || first[3].Content != "new question" {
			t.Errorf("prompt order wrong: %+v", first)
		}

		// Old history must not be re-committed.
		if len(result.Transcript) != 2 {
			t.Errorf("transcript has %d turns, want 2 (user + assistant)", len(result.Transcript))
		}
	})

	t.Run("loop stops at budget when model keeps calling tools", func(t *testing.T) {
		script := make([]string, 3)
		for i := range script {
			script[i] = toolCallResponse(fmt.Sprintf("call_%d", i), "noop", `{}`)
		}
		srv, _ := fakeLLMServer(t, script)

		exec := NewToolExecutor(slog.Default())
		exec.Register(MakeToolDefinition("noop", "test tool", nil),
			func(ctx context.Context, args map[string]any) (string, error) {
				return "done", nil
			})

		agent := NewAgentRun(testLLM(t, srv.URL), exec, 3, slog.Default())
		result, err := agent.Run(context.Background(), "sys", nil, "go")
		if err != nil {
			t.Fatalf("run: %v", err)
		}

		if !result.Exhausted {
			t.Error("expected exhaustion")
		}
		if result.Reply != "" {
			t.Errorf("exhausted run produced reply %q", result.Reply)
		}
		if result.Loops != 3 {
			t.Errorf("loops = %d, want 3", result.Loops)
		}
		// Transcript still holds everything for history commit:
		// user + 3×(assistant + tool).
		if len(result.Transcript) != 7 {
			t.Errorf("transcript has %d turns, want 7", len(result.Transcript))
		}
	})

	t.Run("api error aborts the run", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
		}))
		defer srv.Close()

		agent := NewAgentRun(testLLM(t, srv.URL), NewToolExecutor(slog.Default()), 5, slog.Default())
		if _, err := agent.Run(context.Background(), "sys", nil, "hi"); err == nil {
			t.Fatal("expected error from failing API")
		}
	})

	t.Run("missing api key fails before any request", func(t *testing.T) {
		llm := NewLLMClient(AIConfig{Model: "m"}, slog.Default())
		agent := NewAgentRun(llm, NewToolExecutor(slog.Default()), 5, slog.Default())
		if _, err := agent.Run(context.Background(), "sys", nil, "hi"); err == nil {
			t.Fatal("expected error for missing API key")
		}
	})
}
