package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment selects provider and dimension defaults.
type Environment string

const (
	EnvironmentTest       Environment = "test"
	EnvironmentProduction Environment = "production"
)

// Config is the root configuration for the query engine.
type Config struct {
	Environment Environment       `yaml:"environment,omitempty" json:"environment,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty" json:"logging,omitempty"`
	Providers   ProvidersConfig   `yaml:"providers,omitempty" json:"providers,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty" json:"cache,omitempty"`
	VectorStore VectorStoreConfig `yaml:"vector_store,omitempty" json:"vector_store,omitempty"`
	Metadata    MetadataConfig    `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	Retriever   RetrieverConfig   `yaml:"retriever,omitempty" json:"retriever,omitempty"`
	Reranker    RerankerConfig    `yaml:"reranker,omitempty" json:"reranker,omitempty"`
	Context     ContextConfig     `yaml:"context,omitempty" json:"context,omitempty"`
	Personality PersonalityConfig `yaml:"assistant_personality,omitempty" json:"assistant_personality,omitempty"`
	Server      ServerConfig      `yaml:"server,omitempty" json:"server,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

type VectorStoreConfig struct {
	Host       string `yaml:"host,omitempty" json:"host,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	APIKeyEnv  string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	EnableTLS  *bool  `yaml:"enable_tls,omitempty" json:"enable_tls,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	Dimension  int    `yaml:"dimension,omitempty" json:"dimension,omitempty"`
}

type MetadataConfig struct {
	// DSNEnv names the env var holding the relational store DSN.
	// Empty disables enrichment.
	DSNEnv string `yaml:"dsn_env,omitempty" json:"dsn_env,omitempty"`
	Table  string `yaml:"table,omitempty" json:"table,omitempty"`
}

type RerankerConfig struct {
	// Endpoint of the cross-encoder scoring service. Empty disables reranking.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Model    string `yaml:"model,omitempty" json:"model,omitempty"`

	LexicalWeight float64 `yaml:"lexical_weight,omitempty" json:"lexical_weight,omitempty"`
	VectorWeight  float64 `yaml:"vector_weight,omitempty" json:"vector_weight,omitempty"`
	CrossWeight   float64 `yaml:"cross_weight,omitempty" json:"cross_weight,omitempty"`
}

type ContextConfig struct {
	// MaxTokens bounds the generated context; the character budget is
	// MaxTokens * 4.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

type PersonalityConfig struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Expertise string `yaml:"expertise,omitempty" json:"expertise,omitempty"`
	Region    string `yaml:"region,omitempty" json:"region,omitempty"`
	Language  string `yaml:"language,omitempty" json:"language,omitempty"`
	Tone      string `yaml:"tone,omitempty" json:"tone,omitempty"`
}

type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// RequestDeadlineSeconds bounds a single query end to end.
	RequestDeadlineSeconds int `yaml:"request_deadline_seconds,omitempty" json:"request_deadline_seconds,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.EnableTLS == nil {
		c.EnableTLS = BoolPtr(false)
	}
	if c.Collection == "" {
		c.Collection = "syscohada"
	}
	if c.Dimension == 0 {
		c.Dimension = 1024
	}
}

func (c *MetadataConfig) SetDefaults() {
	if c.Table == "" {
		c.Table = "documents"
	}
}

func (c *RerankerConfig) SetDefaults() {
	if c.LexicalWeight == 0 && c.VectorWeight == 0 && c.CrossWeight == 0 {
		c.LexicalWeight = 0.3
		c.VectorWeight = 0.3
		c.CrossWeight = 0.4
	}
}

func (c *RerankerConfig) Validate() error {
	sum := c.LexicalWeight + c.VectorWeight + c.CrossWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("reranker weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

func (c *ContextConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 1800
	}
}

func (c *PersonalityConfig) SetDefaults() {
	if c.Name == "" {
		c.Name = "Expert OHADA"
	}
	if c.Expertise == "" {
		c.Expertise = "comptabilité et normes SYSCOHADA"
	}
	if c.Region == "" {
		c.Region = "zone OHADA (Afrique)"
	}
	if c.Language == "" {
		c.Language = "fr"
	}
	if c.Tone == "" {
		c.Tone = "professionnel"
	}
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.RequestDeadlineSeconds == 0 {
		c.RequestDeadlineSeconds = 180
	}
}

// SetDefaults applies defaults to the whole tree.
func (c *Config) SetDefaults() {
	if c.Environment == "" {
		c.Environment = EnvironmentProduction
	}
	c.Logging.SetDefaults()
	c.Providers.SetDefaults()
	c.Cache.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Metadata.SetDefaults()
	c.Retriever.SetDefaults()
	c.Reranker.SetDefaults()
	c.Context.SetDefaults()
	c.Personality.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks the whole tree.
func (c *Config) Validate() error {
	if c.Environment != EnvironmentTest && c.Environment != EnvironmentProduction {
		return fmt.Errorf("invalid environment %q (valid: test, production)", c.Environment)
	}
	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if err := c.Retriever.Validate(); err != nil {
		return fmt.Errorf("retriever: %w", err)
	}
	if err := c.Reranker.Validate(); err != nil {
		return fmt.Errorf("reranker: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with environment values.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads a YAML configuration file, expands ${VAR} references,
// applies defaults and validates. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	// Best-effort .env loading; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}

// Float64Ptr returns a pointer to the given float64.
func Float64Ptr(f float64) *float64 {
	return &f
}
