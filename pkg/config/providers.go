package config

import (
	"fmt"
	"os"
)

// ProviderType identifies the wire protocol a provider speaks.
type ProviderType string

const (
	// ProviderTypeOpenAI covers every OpenAI-compatible chat/embeddings API
	// (OpenAI, DeepSeek, Mistral, local gateways).
	ProviderTypeOpenAI ProviderType = "openai"
)

// ModelsConfig names the models a provider serves, by role.
type ModelsConfig struct {
	Default   string `yaml:"default,omitempty" json:"default,omitempty"`
	Response  string `yaml:"response,omitempty" json:"response,omitempty"`
	Embedding string `yaml:"embedding,omitempty" json:"embedding,omitempty"`
}

// ParametersConfig holds per-provider generation defaults.
type ParametersConfig struct {
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	TopP        *float64 `yaml:"top_p,omitempty" json:"top_p,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Dimensions  int      `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// ProviderConfig configures one external LLM/embedding backend.
type ProviderConfig struct {
	Type ProviderType `yaml:"type,omitempty" json:"type,omitempty"`

	// APIKeyEnv names the env var holding the API secret.
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	Models     ModelsConfig     `yaml:"models,omitempty" json:"models,omitempty"`
	Parameters ParametersConfig `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// APIKey resolves the provider's API key from the environment.
func (c *ProviderConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// IsEnabled reports whether the provider participates in priority lists.
func (c *ProviderConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ResponseModel returns the model used for answer generation.
func (c *ProviderConfig) ResponseModel() string {
	if c.Models.Response != "" {
		return c.Models.Response
	}
	return c.Models.Default
}

// EmbeddingModel returns the model used for embeddings, falling back to the
// default model.
func (c *ProviderConfig) EmbeddingModel() string {
	if c.Models.Embedding != "" {
		return c.Models.Embedding
	}
	return c.Models.Default
}

// ProvidersConfig enumerates backends and their priority order.
type ProvidersConfig struct {
	// Priority is the ordered list of providers for LLM calls; the first
	// success wins.
	Priority []string `yaml:"priority,omitempty" json:"priority,omitempty"`

	// EmbeddingPriority is the ordered list for embedding calls.
	EmbeddingPriority []string `yaml:"embedding_priority,omitempty" json:"embedding_priority,omitempty"`

	Providers map[string]*ProviderConfig `yaml:"providers,omitempty" json:"providers,omitempty"`
}

func (c *ProvidersConfig) SetDefaults() {
	if len(c.Providers) == 0 {
		c.Providers = map[string]*ProviderConfig{
			"openai": {
				Type:      ProviderTypeOpenAI,
				APIKeyEnv: "OPENAI_API_KEY",
				Models: ModelsConfig{
					Default:   "gpt-4o-mini",
					Response:  "gpt-4o-mini",
					Embedding: "text-embedding-3-small",
				},
				Parameters: ParametersConfig{
					Temperature: Float64Ptr(0.3),
					MaxTokens:   1500,
					Dimensions:  1536,
				},
			},
		}
	}

	for _, p := range c.Providers {
		if p.Type == "" {
			p.Type = ProviderTypeOpenAI
		}
		if p.Parameters.Temperature == nil {
			p.Parameters.Temperature = Float64Ptr(0.3)
		}
		if p.Parameters.MaxTokens == 0 {
			p.Parameters.MaxTokens = 1500
		}
	}

	if len(c.Priority) == 0 {
		for name := range c.Providers {
			c.Priority = append(c.Priority, name)
		}
	}
	if len(c.EmbeddingPriority) == 0 {
		c.EmbeddingPriority = c.Priority
	}
}

func (c *ProvidersConfig) Validate() error {
	for _, name := range c.Priority {
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("priority references unknown provider %q", name)
		}
	}
	for _, name := range c.EmbeddingPriority {
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("embedding_priority references unknown provider %q", name)
		}
	}
	for name, p := range c.Providers {
		if p.Type != ProviderTypeOpenAI {
			return fmt.Errorf("provider %q has unsupported type %q", name, p.Type)
		}
	}
	return nil
}

// PriorityList returns the enabled providers for LLM calls, in order.
func (c *ProvidersConfig) PriorityList() []string {
	return c.enabledIn(c.Priority)
}

// EmbeddingPriorityList returns the enabled providers for embeddings, in order.
func (c *ProvidersConfig) EmbeddingPriorityList() []string {
	return c.enabledIn(c.EmbeddingPriority)
}

func (c *ProvidersConfig) enabledIn(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if p, ok := c.Providers[name]; ok && p.IsEnabled() {
			out = append(out, name)
		}
	}
	return out
}
