package llm

import (
	"context"
	"fmt"
	"time"
)

// MockProvider returns deterministic, configurable responses without
// calling out to any network. It simulates per-call latency the same way
// the teacher corpus's MockAgent does: a select between time.After and
// ctx.Done() so cancellation and timeouts are observable in tests.
type MockProvider struct {
	// Reply, if set, is returned verbatim for every call.
	Reply string
	// ReplyFunc, if set, takes priority over Reply and lets a test vary the
	// response per call (e.g. to echo the role from the prompt).
	ReplyFunc func(req CompletionRequest) (CompletionResult, error)
	// Latency simulates model think-time; zero means immediate.
	Latency time.Duration
	// FailOn, if non-nil, is invoked before building a response; returning
	// a non-nil error fails that call instead.
	FailOn func(req CompletionRequest, callIndex int) error

	calls int
}

func NewMockProvider(reply string) *MockProvider {
	return &MockProvider{Reply: reply}
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return CompletionResult{}, ctx.Err()
		}
	}

	callIndex := p.calls
	p.calls++

	if p.FailOn != nil {
		if err := p.FailOn(req, callIndex); err != nil {
			return CompletionResult{}, NewProviderError("mock", req.Model, err)
		}
	}

	if p.ReplyFunc != nil {
		return p.ReplyFunc(req)
	}

	text := p.Reply
	if text == "" {
		text = fmt.Sprintf("mock response to: %s", req.UserPrompt)
	}
	in := len(req.UserPrompt) / 4
	out := len(text) / 4
	return CompletionResult{Text: text, Usage: &Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}}, nil
}
