package runner

import (
	"time"

	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
)

// BuildProviders constructs one llm.Provider per distinct model.ProviderName
// referenced across configs (plus model.ProviderMock, always available so a
// config with no provider set still resolves), ready to hand to
// agent.NewManager. mockReply, when non-empty, is the fixed text every mock
// provider call returns — useful for local runs and tests without a
// network-backed provider. Each adapter reads its own API key from the
// process environment: Anthropic when it is constructed here, the Gemini,
// Qwen and DeepSeek adapters (plain structs) when they are called.
func BuildProviders(configs []model.AgentConfig, mockReply string) (map[model.ProviderName]llm.Provider, error) {
	providers := make(map[model.ProviderName]llm.Provider)
	providers[model.ProviderMock] = &llm.MockProvider{Reply: mockReply, Latency: 10 * time.Millisecond}

	for _, cfg := range configs {
		name := cfg.Provider
		if name == "" || name == model.ProviderMock {
			continue
		}
		if _, ok := providers[name]; ok {
			continue
		}
		switch name {
		case model.ProviderAnthropic:
			p, err := llm.NewAnthropicProvider("", "", cfg.Model, 0, 0)
			if err != nil {
				return nil, err
			}
			providers[name] = p
		case model.ProviderGemini:
			providers[name] = &llm.GeminiProvider{Model: cfg.Model}
		case model.ProviderQwen:
			providers[name] = &llm.QwenProvider{Model: cfg.Model}
		case model.ProviderDeepSeek:
			providers[name] = &llm.DeepSeekProvider{Model: cfg.Model}
		}
	}
	return providers, nil
}
