// Package llm defines the Provider port: the single opaque contract the
// rest of the debate core uses to talk to a chat-completion backend, plus
// concrete adapters for the backends this module ships with.
package llm

import "context"

// MessageRole identifies the speaker of a Message in a multi-turn request.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one turn of an ordered conversation passed to Complete instead
// of (or alongside) the flat systemPrompt/userPrompt pair.
type Message struct {
	Role        MessageRole
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ToolResult is the caller's response to a previously requested ToolCall.
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// Tool describes a callable function the model may request, in JSON-Schema
// terms.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  []byte
}

// Usage reports token accounting for a single Complete call, when the
// backend exposes it.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CompletionRequest is what the core emits to a Provider.
type CompletionRequest struct {
	Model         string
	SystemPrompt  string
	UserPrompt    string
	Messages      []Message
	Temperature   float64
	MaxTokens     int
	StopSequences []string
	Tools         []Tool
}

// CompletionResult is what the core consumes from a Provider.
type CompletionResult struct {
	Text      string
	Usage     *Usage
	ToolCalls []ToolCall
}

// Provider is the single abstraction every agent and the judge call
// through. Complete returns exactly once per successful call; on transport
// failure it returns a *ProviderError whose Retryable flag distinguishes it
// from a schema/auth failure. The core makes no assumption about
// streaming.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}
