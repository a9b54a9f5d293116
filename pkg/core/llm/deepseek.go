package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// DeepSeekProvider implements Provider against api.deepseek.com's
// OpenAI-compatible chat completions endpoint.
type DeepSeekProvider struct {
	Model string
}

var _ Provider = (*DeepSeekProvider)(nil)

type deepSeekRequest struct {
	Messages         []deepSeekMessage `json:"messages"`
	Model            string            `json:"model"`
	Thinking         *deepSeekThinking `json:"thinking,omitempty"`
	FrequencyPenalty float64           `json:"frequency_penalty"`
	MaxTokens        int               `json:"max_tokens"`
	PresencePenalty  float64           `json:"presence_penalty"`
	ResponseFormat   deepSeekRespFmt   `json:"response_format"`
	Stop             interface{}       `json:"stop"`
	Stream           bool              `json:"stream"`
	Temperature      float64           `json:"temperature"`
	TopP             float64           `json:"top_p"`
	ToolChoice       string            `json:"tool_choice"`
	LogProbs         bool              `json:"logprobs"`
}

type deepSeekMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type deepSeekThinking struct {
	Type string `json:"type"`
}

type deepSeekRespFmt struct {
	Type string `json:"type"`
}

type deepSeekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *DeepSeekProvider) Name() string { return "deepseek" }

func (p *DeepSeekProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		return CompletionResult{}, NewProviderError("deepseek", req.Model, fmt.Errorf("DEEPSEEK_API_KEY_MISSING: set DEEPSEEK_API_KEY"))
	}

	model := req.Model
	if model == "" {
		model = p.Model
	}
	if model == "" {
		model = "deepseek-chat"
	}

	url := "https://api.deepseek.com/chat/completions"

	temperature := req.Temperature
	if temperature == 0 {
		temperature = 1.0
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	reqBody := deepSeekRequest{
		Messages: []deepSeekMessage{
			{Content: req.SystemPrompt, Role: "system"},
			{Content: req.UserPrompt, Role: "user"},
		},
		Model:            model,
		Thinking:         &deepSeekThinking{Type: "disabled"},
		FrequencyPenalty: 0,
		MaxTokens:        maxTokens,
		PresencePenalty:  0,
		ResponseFormat:   deepSeekRespFmt{Type: "text"},
		Stop:             nil,
		Stream:           false,
		Temperature:      temperature,
		TopP:             1.0,
		ToolChoice:       "none",
		LogProbs:         false,
	}

	jsonBytes, err := json.Marshal(reqBody)
	if err != nil {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBytes))
	if err != nil {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{}
	res, err := client.Do(httpReq)
	if err != nil {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("api call: %w", err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("read body: %w", err))
	}

	if res.StatusCode != 200 {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("status=%d body=%s", res.StatusCode, string(body)))
	}

	var response deepSeekResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("unmarshal response: %w", err))
	}

	if len(response.Choices) == 0 {
		return CompletionResult{}, NewProviderError("deepseek", model, fmt.Errorf("no choices in response: %s", string(body)))
	}

	usage := &Usage{
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
		TotalTokens:  response.Usage.TotalTokens,
	}

	return CompletionResult{Text: response.Choices[0].Message.Content, Usage: usage}, nil
}
