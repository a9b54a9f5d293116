package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements Provider for Google's Gemini models via the
// official GenAI SDK.
type GeminiProvider struct {
	Model string // default model when CompletionRequest.Model is empty

	// EnableGoogleSearch turns on Google Search grounding and appends
	// citations to the response text.
	EnableGoogleSearch bool
}

var _ Provider = (*GeminiProvider)(nil)

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return CompletionResult{}, NewProviderError("gemini", req.Model, fmt.Errorf("GEMINI_API_KEY environment variable not set"))
	}

	model := req.Model
	if model == "" {
		model = p.Model
	}
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return CompletionResult{}, NewProviderError("gemini", model, fmt.Errorf("failed to create GenAI client: %w", err))
	}

	temp := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(temp),
	}

	// Same heuristic as the teacher: a request whose prompt text mentions
	// "json" is asking for structured output.
	if strings.Contains(strings.ToLower(req.SystemPrompt), "json") || strings.Contains(strings.ToLower(req.UserPrompt), "json") {
		config.ResponseMIMEType = "application/json"
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if p.EnableGoogleSearch {
		config.Tools = []*genai.Tool{
			{GoogleSearchRetrieval: &genai.GoogleSearchRetrieval{}},
		}
	}

	prompt := req.UserPrompt
	if prompt == "" {
		prompt = flattenMessages(req.Messages)
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return CompletionResult{}, NewProviderError("gemini", model, fmt.Errorf("gemini generation failed: %w", err))
	}

	text := result.Text()

	if len(result.Candidates) > 0 {
		cand := result.Candidates[0]
		if cand.GroundingMetadata != nil && len(cand.GroundingMetadata.GroundingChunks) > 0 {
			var citations []string
			for _, chunk := range cand.GroundingMetadata.GroundingChunks {
				if chunk.Web != nil {
					citations = append(citations, fmt.Sprintf("[%s](%s)", chunk.Web.Title, chunk.Web.URI))
				}
			}
			if len(citations) > 0 {
				text = fmt.Sprintf("%s\n\n**Sources:**\n%s", text, strings.Join(citations, "\n"))
			}
		}
	}

	usage := &Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(result.UsageMetadata.TotalTokenCount)
	}

	return CompletionResult{Text: text, Usage: usage}, nil
}

func flattenMessages(messages []Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
