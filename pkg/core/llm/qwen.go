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

// QwenProvider implements Provider against Alibaba's DashScope native API.
type QwenProvider struct {
	Model string
}

var _ Provider = (*QwenProvider)(nil)

func (p *QwenProvider) Name() string { return "qwen" }

func (p *QwenProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	apiKey := os.Getenv("DASHSCOPE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("QWEN_API_KEY")
	}
	if apiKey == "" {
		return CompletionResult{}, NewProviderError("qwen", req.Model, fmt.Errorf("DASHSCOPE_API_KEY_MISSING: set DASHSCOPE_API_KEY or QWEN_API_KEY"))
	}

	model := req.Model
	if model == "" {
		model = p.Model
	}
	if model == "" {
		model = "qwen-max"
	}

	messages := []map[string]string{
		{"role": "system", "content": req.SystemPrompt},
		{"role": "user", "content": req.UserPrompt},
	}

	reqBody := map[string]interface{}{
		"model": model,
		"input": map[string]interface{}{
			"messages": messages,
		},
		"parameters": map[string]interface{}{
			"result_format": "message",
			"temperature":   req.Temperature,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("failed to marshal qwen request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation", bytes.NewBuffer(jsonBody))
	if err != nil {
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("qwen api call failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("qwen api returned status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var result struct {
		Output struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Text string `json:"text"`
		} `json:"output"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("failed to decode qwen response: %w", err))
	}

	if result.Code != "" {
		return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("qwen api error: %s - %s", result.Code, result.Message))
	}

	usage := &Usage{
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		TotalTokens:  result.Usage.TotalTokens,
	}

	if len(result.Output.Choices) > 0 {
		return CompletionResult{Text: result.Output.Choices[0].Message.Content, Usage: usage}, nil
	}

	if result.Output.Text != "" {
		return CompletionResult{Text: result.Output.Text, Usage: usage}, nil
	}

	return CompletionResult{}, NewProviderError("qwen", model, fmt.Errorf("empty response from qwen api"))
}
