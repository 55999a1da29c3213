// Package assistant – agent.go implements the tool-calling loop that
// orchestrates LLM calls with tool execution. The loop iterates: call
// LLM → if tool_calls → execute tools → append results → call LLM
// again, until the LLM produces final text or the loop budget runs out.
package assistant

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMaxLoops is the maximum number of LLM round-trips per message.
const DefaultMaxLoops = 5

// RunResult is the outcome of one orchestrated message.
type RunResult struct {
	// Reply is the final text to send. Empty when the loop exhausted
	// its budget without a text response.
	Reply string

	// Transcript holds every turn generated after prompt assembly: the
	// user turn, assistant turns (with tool calls) and tool results, in
	// order. This is what gets committed to history.
	Transcript []Message

	// Exhausted is true when the loop hit its budget with the model
	// still requesting tools.
	Exhausted bool

	// Loops is the number of LLM round-trips performed.
	Loops int
}

// AgentRun drives the loop for a single incoming message.
type AgentRun struct {
	llm      *LLMClient
	executor *ToolExecutor
	maxLoops int
	logger   *slog.Logger
}

// NewAgentRun creates an agent runner. maxLoops <= 0 selects the
// default budget.
func NewAgentRun(llm *LLMClient, executor *ToolExecutor, maxLoops int, logger *slog.Logger) *AgentRun {
	if maxLoops <= 0 {
		maxLoops = DefaultMaxLoops
	}
	return &AgentRun{
		llm:      llm,
		executor: executor,
		maxLoops: maxLoops,
		logger:   logger.With("component", "agent"),
	}
}

// Run executes the loop: prompt = system + history + new user turn,
// then LLM round-trips with sequential tool execution until final text
// or budget exhaustion. Tool failures stay inside the loop as textual
// results; only an LLM transport failure aborts the run.
func (a *AgentRun) Run(ctx context.Context, systemPrompt string, history []Message, userMessage string) (*RunResult, error) {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: userMessage})

	// Index of the first turn that is new relative to the assembled
	// prompt: everything after system + history.
	newFrom := 1 + len(history)

	tools := a.executor.Tools()

	result := &RunResult{}
	for loop := 1; loop <= a.maxLoops; loop++ {
		result.Loops = loop
		start := time.Now()

		resp, err := a.llm.CompleteWithTools(ctx, messages, tools)
		if err != nil {
			return nil, err
		}

		a.logger.Debug("loop turn done",
			"loop", loop,
			"tool_calls", len(resp.ToolCalls),
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, Message{Role: "assistant", Content: resp.Content})
			result.Reply = resp.Content
			result.Transcript = messages[newFrom:]
			return result, nil
		}

		messages = append(messages, Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tr := range a.executor.Execute(ctx, resp.ToolCalls) {
			messages = append(messages, Message{
				Role:       "tool",
				Content:    tr.Content,
				ToolCallID: tr.ToolCallID,
				Name:       tr.Name,
			})
		}
	}

	a.logger.Warn("loop budget exhausted", "max_loops", a.maxLoops)
	result.Exhausted = true
	result.Transcript = messages[newFrom:]
	return result, nil
}
