package agents

import (
	"embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config/agents.yaml
var agentsYAML embed.FS

// Capability IDs, matching the backend's run_*_agent endpoints.
const (
	CapDiscovery = "discovery"
	CapAnalysis  = "analysis"
	CapPrefill   = "prefill"
	CapSubmit    = "submit"
)

// Registry holds the configuration for the backend agent capabilities.
type Registry struct {
	Capabilities []CapabilityConfig `yaml:"capabilities"`
}

// CapabilityConfig defines a single agent capability endpoint.
type CapabilityConfig struct {
	ID             string `yaml:"id"`
	Path           string `yaml:"path"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"` // Default: 30
	Description    string `yaml:"description,omitempty"`
}

// Timeout returns the per-call deadline for this capability.
func (c CapabilityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoadRegistry parses the embedded capability configuration.
func LoadRegistry() (*Registry, error) {
	raw, err := agentsYAML.ReadFile("config/agents.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded agents config: %w", err)
	}

	var reg Registry
	if err := yaml.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse agents config: %w", err)
	}
	if len(reg.Capabilities) == 0 {
		return nil, fmt.Errorf("agents config defines no capabilities")
	}

	for _, c := range reg.Capabilities {
		if c.ID == "" || c.Path == "" {
			return nil, fmt.Errorf("agents config entry missing id or path: %+v", c)
		}
	}

	return &reg, nil
}

// Capability looks up a capability by ID.
func (r *Registry) Capability(id string) (CapabilityConfig, bool) {
	for _, c := range r.Capabilities {
		if c.ID == id {
			return c, true
		}
	}
	return CapabilityConfig{}, false
}

// IDs returns every configured capability ID, in config order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.Capabilities))
	for _, c := range r.Capabilities {
		ids = append(ids, c.ID)
	}
	return ids
}
