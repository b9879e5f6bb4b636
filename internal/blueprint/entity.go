package blueprint

import (
	"errors"
	"fmt"
	"slices"
)

type ToolDiscoveryMode string

const (
	// ToolDiscoveryDynamic queries the provider's remote endpoint for tools.
	ToolDiscoveryDynamic ToolDiscoveryMode = "dynamic"
	// ToolDiscoveryStatic attaches the blueprint's fixed tool list.
	ToolDiscoveryStatic ToolDiscoveryMode = "static"
)

// Blueprint describes the Skill and Agent that should exist once an
// integration for ProviderKey is connected. Blueprints are loaded once at
// start-up and never mutated afterwards.
type Blueprint struct {
	ProviderKey string    `yaml:"provider_key" json:"provider_key"`
	Version     int       `yaml:"version" json:"version"`
	Skill       SkillSpec `yaml:"skill" json:"skill"`
	Agent       AgentSpec `yaml:"agent" json:"agent"`
}

type SkillSpec struct {
	Slug          string            `yaml:"slug" json:"slug"`
	Name          string            `yaml:"name" json:"name"`
	Description   string            `yaml:"description" json:"description"`
	Instructions  string            `yaml:"instructions" json:"instructions"`
	Category      string            `yaml:"category" json:"category"`
	Tags          []string          `yaml:"tags" json:"tags"`
	ToolDiscovery ToolDiscoveryMode `yaml:"tool_discovery" json:"tool_discovery"`
	StaticTools   []string          `yaml:"static_tools,omitempty" json:"static_tools,omitempty"`
}

type ModelSpec struct {
	Provider    string  `yaml:"provider" json:"provider"`
	Name        string  `yaml:"name" json:"name"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

type AgentSpec struct {
	Slug            string         `yaml:"slug" json:"slug"`
	Name            string         `yaml:"name" json:"name"`
	Description     string         `yaml:"description" json:"description"`
	Instructions    string         `yaml:"instructions" json:"instructions"`
	Model           ModelSpec      `yaml:"model" json:"model"`
	MemoryEnabled   bool           `yaml:"memory_enabled" json:"memory_enabled"`
	AdditionalTools []string       `yaml:"additional_tools,omitempty" json:"additional_tools,omitempty"`
	Metadata        map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// UsesDynamicDiscovery reports whether tools must be discovered remotely.
func (b *Blueprint) UsesDynamicDiscovery() bool {
	return b.Skill.ToolDiscovery != ToolDiscoveryStatic
}

// ToolPrefix is the prefix remote tool identifiers of this provider carry.
func (b *Blueprint) ToolPrefix() string {
	return ToolPrefix(b.ProviderKey)
}

func ToolPrefix(providerKey string) string {
	return providerKey + "_"
}

func (b *Blueprint) Validate() error {
	var errs []error
	if b.ProviderKey == "" {
		errs = append(errs, errors.New("provider_key is required"))
	}
	if b.Version < 1 {
		errs = append(errs, fmt.Errorf("version must be >= 1, got %d", b.Version))
	}
	if b.Skill.Slug == "" {
		errs = append(errs, errors.New("skill.slug is required"))
	}
	if b.Skill.Name == "" {
		errs = append(errs, errors.New("skill.name is required"))
	}
	if b.Agent.Slug == "" {
		errs = append(errs, errors.New("agent.slug is required"))
	}
	if b.Agent.Name == "" {
		errs = append(errs, errors.New("agent.name is required"))
	}
	switch b.Skill.ToolDiscovery {
	case ToolDiscoveryDynamic:
	case ToolDiscoveryStatic:
		if len(b.Skill.StaticTools) == 0 {
			errs = append(errs, errors.New("skill.static_tools is required for static tool discovery"))
		}
	default:
		errs = append(errs, fmt.Errorf("skill.tool_discovery must be %q or %q, got %q",
			ToolDiscoveryDynamic, ToolDiscoveryStatic, b.Skill.ToolDiscovery))
	}
	if len(errs) > 0 {
		name := b.ProviderKey
		if name == "" {
			name = "<unnamed>"
		}
		return fmt.Errorf("invalid blueprint %s: %w", name, errors.Join(errs...))
	}
	return nil
}

// Clone returns a copy that shares no slices or maps with b.
func (b *Blueprint) Clone() *Blueprint {
	c := *b
	c.Skill.Tags = slices.Clone(b.Skill.Tags)
	c.Skill.StaticTools = slices.Clone(b.Skill.StaticTools)
	c.Agent.AdditionalTools = slices.Clone(b.Agent.AdditionalTools)
	if b.Agent.Metadata != nil {
		c.Agent.Metadata = make(map[string]any, len(b.Agent.Metadata))
		for k, v := range b.Agent.Metadata {
			c.Agent.Metadata[k] = v
		}
	}
	return &c
}
