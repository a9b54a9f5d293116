// Package agent resolves an AgentConfig to the concrete llm.Provider that
// should serve it, the same indirection the teacher used to let an agent
// type pick its backend from a loaded config.
package agent

import (
	"fmt"

	"github.com/slior/dialectic/pkg/core/llm"
	"github.com/slior/dialectic/pkg/core/model"
)

// Manager owns the set of constructed Provider instances for a process and
// resolves which one an agent config should use. Callers construct their
// own Manager; nothing here is a package-level singleton.
type Manager struct {
	defaultProvider model.ProviderName
	providers       map[model.ProviderName]llm.Provider
}

// NewManager builds a Manager from an already-constructed provider set (one
// entry per configured backend) and the name to fall back to when an
// AgentConfig doesn't name one explicitly.
func NewManager(defaultProvider model.ProviderName, providers map[model.ProviderName]llm.Provider) *Manager {
	return &Manager{defaultProvider: defaultProvider, providers: providers}
}

// GetProvider resolves the Provider an agent config should use: its own
// Provider field if set and known, otherwise the Manager's default.
func (m *Manager) GetProvider(cfg model.AgentConfig) (llm.Provider, error) {
	if cfg.Provider != "" {
		if p, ok := m.providers[cfg.Provider]; ok {
			return p, nil
		}
		return nil, fmt.Errorf("agent %s: provider %q not registered", cfg.ID, cfg.Provider)
	}
	if p, ok := m.providers[m.defaultProvider]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no default provider %q registered", m.defaultProvider)
}

// GetProviderByName retrieves a provider instance by name directly, mainly
// for tooling (CLI one-off calls, tracing wrapping) that doesn't route
// through an AgentConfig.
func (m *Manager) GetProviderByName(name model.ProviderName) (llm.Provider, bool) {
	p, ok := m.providers[name]
	return p, ok
}

// SetDefaultProvider changes which provider an AgentConfig with no explicit
// Provider resolves to.
func (m *Manager) SetDefaultProvider(name model.ProviderName) error {
	if _, ok := m.providers[name]; !ok {
		return fmt.Errorf("provider %s not registered", name)
	}
	m.defaultProvider = name
	return nil
}
