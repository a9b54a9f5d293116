package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
// Unlike the streaming adapter it is grounded on, it calls the blocking
// Messages.New endpoint: the core never assumes a Provider streams.
type AnthropicProvider struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string

	client anthropic.Client
	inited bool
}

var _ Provider = (*AnthropicProvider)(nil)

// NewAnthropicProvider validates config and fills in the same defaults the
// teacher adapter uses.
func NewAnthropicProvider(apiKey, baseURL, defaultModel string, maxRetries int, retryDelay time.Duration) (*AnthropicProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: APIKey is required")
	}
	if maxRetries == 0 {
		maxRetries = 3
	}
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicProvider{
		APIKey:       apiKey,
		BaseURL:      baseURL,
		MaxRetries:   maxRetries,
		RetryDelay:   retryDelay,
		DefaultModel: defaultModel,
		client:       anthropic.NewClient(opts...),
		inited:       true,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if !p.inited {
		return CompletionResult{}, NewProviderError("anthropic", req.Model, fmt.Errorf("provider not initialized via NewAnthropicProvider"))
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
	}

	msgs, err := convertMessages(req)
	if err != nil {
		return CompletionResult{}, NewProviderError("anthropic", req.Model, err)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.StopSequences) > 0 {
		params.StopSequences = req.StopSequences
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return CompletionResult{}, ctx.Err()
			}
		}

		msg, err := p.client.Messages.New(ctx, params)
		if err == nil {
			return toCompletionResult(msg), nil
		}

		lastErr = err
		pe := p.wrapError(model, err)
		if !pe.Retryable {
			return CompletionResult{}, pe
		}
	}

	return CompletionResult{}, p.wrapError(model, lastErr)
}

func (p *AnthropicProvider) wrapError(model string, err error) *ProviderError {
	pe := NewProviderError("anthropic", model, err)

	var apiErr *anthropic.Error
	if asAnthropicError(err, &apiErr) {
		pe.StatusCode = apiErr.StatusCode
		pe.Message = apiErr.Message
		pe.Retryable = pe.Retryable || isRetryableStatus(apiErr.StatusCode)
	}
	return pe
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	type asAPIError interface{ Unwrap() error }
	for err != nil {
		if ae, ok := err.(*anthropic.Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(asAPIError)
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func isRetryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status <= 504)
}

// convertMessages builds Anthropic content blocks per message so a
// multi-turn tool loop round-trips correctly: an assistant turn that
// requested tools re-emits them as tool_use blocks, and the following tool
// turn re-emits its results as tool_result blocks, alongside any plain text.
func convertMessages(req CompletionRequest) ([]anthropic.MessageParam, error) {
	if len(req.Messages) == 0 {
		return []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt))}, nil
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			content = append(content, anthropic.NewTextBlock(m.Content))
		}
		for _, tr := range m.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range m.ToolCalls {
			var input map[string]interface{}
			if tc.ArgumentsJSON != "" {
				if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(content) == 0 {
			content = append(content, anthropic.NewTextBlock(""))
		}

		if m.Role == RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool turns both map to Anthropic's user role.
			msgs = append(msgs, anthropic.NewUserMessage(content...))
		}
	}
	return msgs, nil
}

func convertTools(tools []Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
			},
		})
	}
	return out
}

func toCompletionResult(msg *anthropic.Message) CompletionResult {
	var sb strings.Builder
	var calls []ToolCall
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, ArgumentsJSON: string(b.Input)})
		}
	}
	return CompletionResult{
		Text: sb.String(),
		Usage: &Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		ToolCalls: calls,
	}
}
