package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/logger"
	"github.com/ohadalab/sycora/pkg/metrics"
)

// Hit tiers, reported by GetEmbedding and counted in Stats.
const (
	TierMemory = "memory"
	TierRedis  = "redis"
	TierDisk   = "disk"
)

// Store cascades the three cache tiers. Embeddings probe memory, redis and
// disk in order; full answers probe redis then disk. Hits are promoted to
// the faster tiers; writes and tier errors are best-effort and never fail
// the request.
type Store struct {
	memory *MemoryCache
	redis  *RedisCache
	disk   *DiskCache

	answerTTL    time.Duration
	embeddingTTL time.Duration

	hits     atomic.Int64
	misses   atomic.Int64
	tierHits map[string]*atomic.Int64
	log      *slog.Logger
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64            `json:"hits"`
	Misses  int64            `json:"misses"`
	PerTier map[string]int64 `json:"per_tier"`
	HitRate float64          `json:"hit_rate"`
}

// NewStore wires the tiers from configuration. A missing redis endpoint or
// disk directory simply disables that tier.
func NewStore(ctx context.Context, cfg *config.CacheConfig) (*Store, error) {
	log := logger.For("cache")

	memory, err := NewMemoryCache(cfg.MemoryCapacity)
	if err != nil {
		return nil, err
	}

	var redisCache *RedisCache
	if cfg.RedisURL != "" {
		redisCache, err = NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis tier disabled", "error", err)
			redisCache = nil
		}
	}

	var diskCache *DiskCache
	if cfg.DiskDir != "" {
		diskCache, err = NewDiskCache(cfg.DiskDir)
		if err != nil {
			log.Warn("disk tier disabled", "error", err)
			diskCache = nil
		}
	}

	return &Store{
		memory:       memory,
		redis:        redisCache,
		disk:         diskCache,
		answerTTL:    time.Duration(cfg.AnswerTTLSeconds) * time.Second,
		embeddingTTL: time.Duration(cfg.EmbeddingTTLSeconds) * time.Second,
		tierHits: map[string]*atomic.Int64{
			TierMemory: {},
			TierRedis:  {},
			TierDisk:   {},
		},
		log: log,
	}, nil
}

func (s *Store) recordHit(tier string) {
	s.hits.Add(1)
	s.tierHits[tier].Add(1)
	metrics.CacheHits.WithLabelValues(tier).Inc()
}

func (s *Store) recordMiss(namespace string) {
	s.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(namespace).Inc()
}

// GetEmbedding probes memory, redis and disk in order, promoting hits to
// the faster tiers. The second return value names the hit tier.
func (s *Store) GetEmbedding(ctx context.Context, text string) ([]float32, string, bool) {
	key := EmbeddingKey(text)

	if vector, ok := s.memory.Get(key); ok {
		s.recordHit(TierMemory)
		return vector, TierMemory, true
	}

	if s.redis != nil {
		data, ok, err := s.redis.Get(ctx, key)
		if err != nil {
			s.log.Warn("redis read failed", "error", err)
		} else if ok {
			var vector []float32
			if err := json.Unmarshal(data, &vector); err == nil {
				s.memory.Put(key, vector)
				s.recordHit(TierRedis)
				return vector, TierRedis, true
			}
		}
	}

	if s.disk != nil {
		data, ok, err := s.disk.Get(NamespaceEmbeddings, key)
		if err != nil {
			s.log.Warn("disk read failed", "error", err)
		} else if ok {
			var vector []float32
			if err := json.Unmarshal(data, &vector); err == nil {
				s.promoteEmbedding(ctx, key, data, vector)
				s.recordHit(TierDisk)
				return vector, TierDisk, true
			}
		}
	}

	s.recordMiss(NamespaceEmbeddings)
	return nil, "", false
}

func (s *Store) promoteEmbedding(ctx context.Context, key string, data []byte, vector []float32) {
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, data, s.embeddingTTL); err != nil {
			s.log.Warn("redis promotion failed", "error", err)
		}
	}
	s.memory.Put(key, vector)
}

// PutEmbedding writes through disk, redis and memory, in that order.
func (s *Store) PutEmbedding(ctx context.Context, text string, vector []float32) {
	key := EmbeddingKey(text)

	data, err := json.Marshal(vector)
	if err != nil {
		s.log.Error("failed to serialize embedding", "error", err)
		return
	}

	if s.disk != nil {
		if err := s.disk.Set(NamespaceEmbeddings, key, data, s.embeddingTTL); err != nil {
			s.log.Warn("disk write failed", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, data, s.embeddingTTL); err != nil {
			s.log.Warn("redis write failed", "error", err)
		}
	}
	s.memory.Put(key, vector)
}

// GetAnswer probes redis then disk for a cached serialized answer.
func (s *Store) GetAnswer(ctx context.Context, query string, filters map[string]any) ([]byte, bool) {
	key := AnswerKey(query, filters)

	if s.redis != nil {
		data, ok, err := s.redis.Get(ctx, key)
		if err != nil {
			s.log.Warn("redis read failed", "error", err)
		} else if ok {
			s.recordHit(TierRedis)
			return data, true
		}
	}

	if s.disk != nil {
		data, ok, err := s.disk.Get(NamespaceAnswers, key)
		if err != nil {
			s.log.Warn("disk read failed", "error", err)
		} else if ok {
			if s.redis != nil {
				if err := s.redis.Set(ctx, key, data, s.answerTTL); err != nil {
					s.log.Warn("redis promotion failed", "error", err)
				}
			}
			s.recordHit(TierDisk)
			return data, true
		}
	}

	s.recordMiss(NamespaceAnswers)
	return nil, false
}

// PutAnswer writes a serialized answer through disk then redis.
func (s *Store) PutAnswer(ctx context.Context, query string, filters map[string]any, data []byte) {
	key := AnswerKey(query, filters)

	if s.disk != nil {
		if err := s.disk.Set(NamespaceAnswers, key, data, s.answerTTL); err != nil {
			s.log.Warn("disk write failed", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, key, data, s.answerTTL); err != nil {
			s.log.Warn("redis write failed", "error", err)
		}
	}
}

// Stats reports hit/miss counters across all tiers.
func (s *Store) Stats() Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()

	perTier := make(map[string]int64, len(s.tierHits))
	for tier, counter := range s.tierHits {
		perTier[tier] = counter.Load()
	}

	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:    hits,
		Misses:  misses,
		PerTier: perTier,
		HitRate: rate,
	}
}

// ClearNamespace drops every entry in a namespace across all tiers.
func (s *Store) ClearNamespace(ctx context.Context, namespace string) error {
	if namespace == NamespaceEmbeddings {
		s.memory.Purge()
	}
	if s.redis != nil {
		if _, err := s.redis.DeletePattern(ctx, NamespacePattern(namespace)); err != nil {
			return err
		}
	}
	if s.disk != nil {
		if _, err := s.disk.ClearNamespace(namespace); err != nil {
			return err
		}
	}
	return nil
}

// Close releases tier resources.
func (s *Store) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
