// Package config defines the engine's configuration surface: every option
// named in spec.md §6. It intentionally stops at the data shape and
// defaults; parsing CLI flags, environment-variable wizardry, and config
// file discovery are the job of an external front-end, not this package.
// Callers who want to load a config file can yaml.Unmarshal into Config
// directly with gopkg.in/yaml.v3; every field carries a yaml tag.
package config

import "time"

// EvictionPolicy selects the capacity manager's victim-selection strategy.
type EvictionPolicy string

const (
	EvictionNone              EvictionPolicy = ""
	EvictionLRU               EvictionPolicy = "lru"
	EvictionRelevanceWeighted EvictionPolicy = "relevance_weighted"
)

// EmbeddingProviderKind selects which semantic embedding provider to construct.
type EmbeddingProviderKind string

const (
	ProviderLocal  EmbeddingProviderKind = "local"
	ProviderOpenAI EmbeddingProviderKind = "openai"
	ProviderMistral EmbeddingProviderKind = "mistral"
	ProviderAzureOpenAI EmbeddingProviderKind = "azure_openai"
	ProviderCustomHTTP EmbeddingProviderKind = "custom_http"
	ProviderMock   EmbeddingProviderKind = "mock"
)

// BatchConfig controls step-buffer flush behavior (spec.md §4.2).
type BatchConfig struct {
	MaxStepsPerFlush int           `yaml:"max_steps_per_flush"`
	FlushInterval    time.Duration `yaml:"flush_interval"`
}

// ConcurrencyConfig controls the pattern-extraction worker pool (spec.md §4.7).
type ConcurrencyConfig struct {
	WorkerCount   int           `yaml:"worker_count"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxQueueSize  int           `yaml:"max_queue_size"`
	AsyncPatterns bool          `yaml:"async_patterns"`
}

// StorageConfig controls the dual-tier storage substrate (spec.md §4.1).
type StorageConfig struct {
	MaxEpisodesCache   int           `yaml:"max_episodes_cache"`
	SyncInterval       time.Duration `yaml:"sync_interval"`
	EnableCompression  bool          `yaml:"enable_compression"`
	CompressionAlgo    string        `yaml:"compression_algo"` // "gzip" | "zstd" | "lz4"
	CompressionMinSize int           `yaml:"compression_min_size"`
	PoolMinConns       int           `yaml:"pool_min_conns"`
	PoolMaxConns       int           `yaml:"pool_max_conns"`
	PoolIdleTimeout    time.Duration `yaml:"pool_idle_timeout"`
	PoolAcquireTimeout time.Duration `yaml:"pool_acquire_timeout"`
	QueryTimeout       time.Duration `yaml:"query_timeout"`
}

// EmbeddingConfig controls the semantic service (spec.md §4.8).
type EmbeddingConfig struct {
	Enabled            bool                  `yaml:"enabled"`
	Provider           EmbeddingProviderKind `yaml:"provider"`
	Model              string                `yaml:"model"`
	APIKeyEnvVar       string                `yaml:"api_key_env_var"`
	BaseURL            string                `yaml:"base_url"`
	Dimension          int                   `yaml:"dimension"`
	SimilarityThreshold float64              `yaml:"similarity_threshold"`
	BatchSize          int                   `yaml:"batch_size"`
	CallTimeout        time.Duration         `yaml:"call_timeout"`
	CircuitBreakerTrip int                   `yaml:"circuit_breaker_trip"`
	CircuitBreakerCooldown time.Duration     `yaml:"circuit_breaker_cooldown"`
}

// Config is the full recognized configuration surface.
type Config struct {
	QualityThreshold            float64        `yaml:"quality_threshold"`
	PatternExtractionThreshold  float64        `yaml:"pattern_extraction_threshold"`
	MaxEpisodes                 int            `yaml:"max_episodes"` // 0 means unbounded
	EvictionPolicy               EvictionPolicy `yaml:"eviction_policy"`
	RelevanceHalfLife            time.Duration  `yaml:"relevance_half_life"`

	EnableSummarization bool `yaml:"enable_summarization"`
	SummaryMinLength    int  `yaml:"summary_min_length"`
	SummaryMaxLength    int  `yaml:"summary_max_length"`
	SummaryMaxKeySteps  int  `yaml:"summary_max_key_steps"`

	EnableSpatiotemporalIndexing bool    `yaml:"enable_spatiotemporal_indexing"`
	EnableDiversityMaximization  bool    `yaml:"enable_diversity_maximization"`
	DiversityLambda              float64 `yaml:"diversity_lambda"`
	TemporalBiasWeight           float64 `yaml:"temporal_bias_weight"`
	MaxClustersToSearch          int     `yaml:"max_clusters_to_search"`

	RetrievalWeights RetrievalWeights `yaml:"retrieval_weights"`

	Embedding EmbeddingConfig `yaml:"embedding"`

	Batch       *BatchConfig      `yaml:"batch"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Storage     StorageConfig     `yaml:"storage"`

	QualityWeights QualityWeights `yaml:"quality_weights"`

	ClusterSimilarityThreshold float64 `yaml:"cluster_similarity_threshold"`
	PatternValidationThreshold float64 `yaml:"pattern_validation_threshold"`
}

// RetrievalWeights are the four hierarchical-scoring weights (spec.md §4.10).
type RetrievalWeights struct {
	Domain   float64 `yaml:"domain"`
	TaskType float64 `yaml:"task_type"`
	Temporal float64 `yaml:"temporal"`
	Semantic float64 `yaml:"semantic"`
}

// QualityWeights are the five quality-assessment feature weights (spec.md §4.3).
type QualityWeights struct {
	Complexity      float64 `yaml:"complexity"`
	StepDiversity   float64 `yaml:"step_diversity"`
	ErrorHandling   float64 `yaml:"error_handling"`
	ReflectionDepth float64 `yaml:"reflection_depth"`
	PatternNovelty  float64 `yaml:"pattern_novelty"`
}

// Default returns the engine's documented defaults.
func Default() Config {
	return Config{
		QualityThreshold:           0.7,
		PatternExtractionThreshold: 0.5,
		MaxEpisodes:                0,
		EvictionPolicy:             EvictionNone,
		RelevanceHalfLife:          14 * 24 * time.Hour,

		EnableSummarization: true,
		SummaryMinLength:    0,
		SummaryMaxLength:    200,
		SummaryMaxKeySteps:  5,

		EnableSpatiotemporalIndexing: false,
		EnableDiversityMaximization:  false,
		DiversityLambda:              0.7,
		TemporalBiasWeight:           1.0,
		MaxClustersToSearch:          8,

		RetrievalWeights: RetrievalWeights{
			Domain: 0.30, TaskType: 0.20, Temporal: 0.20, Semantic: 0.30,
		},

		Embedding: EmbeddingConfig{
			Enabled:                false,
			Provider:               ProviderLocal,
			Dimension:              256,
			SimilarityThreshold:    0.75,
			BatchSize:              16,
			CallTimeout:            10 * time.Second,
			CircuitBreakerTrip:     5,
			CircuitBreakerCooldown: 30 * time.Second,
		},

		Batch: nil,
		Concurrency: ConcurrencyConfig{
			WorkerCount:   2,
			PollInterval:  200 * time.Millisecond,
			MaxQueueSize:  256,
			AsyncPatterns: false,
		},
		Storage: StorageConfig{
			MaxEpisodesCache:   1000,
			SyncInterval:       30 * time.Second,
			EnableCompression:  false,
			CompressionAlgo:    "zstd",
			CompressionMinSize: 4096,
			PoolMinConns:       1,
			PoolMaxConns:       4,
			PoolIdleTimeout:    5 * time.Minute,
			PoolAcquireTimeout: 5 * time.Second,
			QueryTimeout:       10 * time.Second,
		},

		QualityWeights: QualityWeights{
			Complexity: 0.25, StepDiversity: 0.20, ErrorHandling: 0.20,
			ReflectionDepth: 0.20, PatternNovelty: 0.15,
		},

		ClusterSimilarityThreshold: 0.7,
		PatternValidationThreshold: 0.5,
	}
}
