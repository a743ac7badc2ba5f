package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvironmentProduction, cfg.Environment)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 180, cfg.Server.RequestDeadlineSeconds)
	assert.Equal(t, "syscohada", cfg.VectorStore.Collection)
	assert.Equal(t, 1024, cfg.VectorStore.Dimension)
	assert.Equal(t, 1800, cfg.Context.MaxTokens)
	assert.Equal(t, 100, cfg.Cache.MemoryCapacity)
	assert.Equal(t, 3600, cfg.Cache.AnswerTTLSeconds)
	assert.Equal(t, 86400, cfg.Cache.EmbeddingTTLSeconds)
	assert.InDelta(t, 0.5, cfg.Retriever.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Reranker.CrossWeight, 1e-9)
	assert.Equal(t, "Expert OHADA", cfg.Personality.Name)
	assert.NotEmpty(t, cfg.Retriever.BoostRules)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("SYCORA_TEST_REDIS", "redis://cache.internal:6379")

	path := filepath.Join(t.TempDir(), "sycora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cache:
  redis_url: ${SYCORA_TEST_REDIS}
server:
  port: 9090
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis://cache.internal:6379", cfg.Cache.RedisURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadRejectsBadRerankerWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sycora.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
reranker:
  lexical_weight: 0.5
  vector_weight: 0.5
  cross_weight: 0.5
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sycora.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestProvidersValidateUnknownPriority(t *testing.T) {
	cfg := &ProvidersConfig{
		Priority: []string{"deepseek"},
		Providers: map[string]*ProviderConfig{
			"openai": {Type: ProviderTypeOpenAI},
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestProvidersPriorityListSkipsDisabled(t *testing.T) {
	cfg := &ProvidersConfig{
		Priority: []string{"openai", "deepseek"},
		Providers: map[string]*ProviderConfig{
			"openai":   {Type: ProviderTypeOpenAI, Enabled: BoolPtr(false)},
			"deepseek": {Type: ProviderTypeOpenAI},
		},
	}
	assert.Equal(t, []string{"deepseek"}, cfg.PriorityList())
}

func TestProviderModelFallbacks(t *testing.T) {
	p := &ProviderConfig{Models: ModelsConfig{Default: "gpt-4o-mini"}}
	assert.Equal(t, "gpt-4o-mini", p.ResponseModel())
	assert.Equal(t, "gpt-4o-mini", p.EmbeddingModel())

	p.Models.Response = "gpt-4o"
	p.Models.Embedding = "text-embedding-3-small"
	assert.Equal(t, "gpt-4o", p.ResponseModel())
	assert.Equal(t, "text-embedding-3-small", p.EmbeddingModel())
}

func TestRetrieverValidateWeights(t *testing.T) {
	cfg := &RetrieverConfig{LexicalWeight: 0.7, VectorWeight: 0.7}
	assert.Error(t, cfg.Validate())
}
