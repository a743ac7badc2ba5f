package config

// CacheConfig configures the tiered cache.
type CacheConfig struct {
	// RedisURL is the shared-cache endpoint (redis://host:port/db).
	// Empty disables that tier.
	RedisURL string `yaml:"redis_url,omitempty" json:"redis_url,omitempty"`

	// DiskDir is the directory for the persistent tier. Empty disables it.
	DiskDir string `yaml:"disk_dir,omitempty" json:"disk_dir,omitempty"`

	// MemoryCapacity bounds the in-process embedding cache.
	MemoryCapacity int `yaml:"memory_capacity,omitempty" json:"memory_capacity,omitempty"`

	// TTLs in seconds.
	AnswerTTLSeconds    int `yaml:"answer_ttl_s,omitempty" json:"answer_ttl_s,omitempty"`
	EmbeddingTTLSeconds int `yaml:"embedding_ttl_s,omitempty" json:"embedding_ttl_s,omitempty"`
}

func (c *CacheConfig) SetDefaults() {
	if c.MemoryCapacity == 0 {
		c.MemoryCapacity = 100
	}
	if c.AnswerTTLSeconds == 0 {
		c.AnswerTTLSeconds = 3600
	}
	if c.EmbeddingTTLSeconds == 0 {
		c.EmbeddingTTLSeconds = 86400
	}
}
