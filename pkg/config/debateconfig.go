// Package config loads the on-disk YAML configuration shared by the API
// server and CLI entrypoints, grounded on the teacher's own agent.Config
// (a plain yaml-tagged struct read with gopkg.in/yaml.v2).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/slior/dialectic/pkg/core/model"
)

// File is the top-level shape of config/debate.yaml.
type File struct {
	DefaultProvider model.ProviderName `yaml:"defaultProvider"`
	Agents          []model.AgentConfig `yaml:"agents"`
	Judge           model.AgentConfig   `yaml:"judge"`
	Debate          DebateSection       `yaml:"debate"`
}

// DebateSection mirrors model.DebateConfig but spells the round timeout in
// plain seconds, since yaml.v2 does not unmarshal time.Duration strings.
type DebateSection struct {
	Rounds                    int                         `yaml:"rounds"`
	TerminationCondition      model.TerminationCondition  `yaml:"terminationCondition"`
	SynthesisMethod           model.SynthesisMethod       `yaml:"synthesisMethod"`
	IncludeFullHistory        bool                        `yaml:"includeFullHistory"`
	TimeoutPerRoundSeconds    int                         `yaml:"timeoutPerRoundSeconds"`
	Summarization             *model.SummarizationConfig  `yaml:"summarization,omitempty"`
	ClarificationsEnabled     bool                        `yaml:"clarificationsEnabled,omitempty"`
	MaxClarificationsPerAgent int                         `yaml:"maxClarificationsPerAgent,omitempty"`
}

// DebateConfig converts the on-disk section into the model type the
// orchestrator consumes.
func (d DebateSection) DebateConfig() model.DebateConfig {
	return model.DebateConfig{
		Rounds:                    d.Rounds,
		TerminationCondition:      d.TerminationCondition,
		SynthesisMethod:           d.SynthesisMethod,
		IncludeFullHistory:        d.IncludeFullHistory,
		TimeoutPerRound:           time.Duration(d.TimeoutPerRoundSeconds) * time.Second,
		Summarization:             d.Summarization,
		ClarificationsEnabled:     d.ClarificationsEnabled,
		MaxClarificationsPerAgent: d.MaxClarificationsPerAgent,
	}
}

// Load reads and parses path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}
