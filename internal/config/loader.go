package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables (optionally .env).
func Load() (Config, error) {
	// Use Overload so .env values override existing OS environment variables.
	// This allows repository/local configuration to deterministically control
	// runtime behavior in development unless explicitly changed.
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Embedding.BaseURL = getenv("EMBED_BASE_URL")
	cfg.Embedding.APIKey = firstNonEmpty(getenv("EMBED_API_KEY"), getenv("OPENAI_API_KEY"))
	cfg.Embedding.Model = getenv("EMBED_MODEL")
	cfg.Embedding.Dimensions = intFromEnv("EMBED_DIMENSIONS", 0)
	cfg.Embedding.SupportsDimensionsParam = boolFromEnv("EMBED_SUPPORTS_DIMENSIONS_PARAM", false)
	cfg.Embedding.Timeout = intFromEnv("EMBED_TIMEOUT_SECONDS", 0)
	cfg.Embedding.MaxRetries = intFromEnv("EMBED_MAX_RETRIES", 0)
	cfg.Embedding.DefaultInstruction = getenv("EMBED_DEFAULT_INSTRUCTION")

	cfg.Rerank.BaseURL = getenv("RERANK_BASE_URL")
	cfg.Rerank.APIKey = getenv("RERANK_API_KEY")
	cfg.Rerank.Model = getenv("RERANK_MODEL")
	cfg.Rerank.WireFormat = strings.ToLower(getenv("RERANK_WIRE_FORMAT"))
	cfg.Rerank.BatchSize = intFromEnv("RERANK_BATCH_SIZE", 0)
	cfg.Rerank.Timeout = intFromEnv("RERANK_TIMEOUT_SECONDS", 0)
	cfg.Rerank.MaxRetries = intFromEnv("RERANK_MAX_RETRIES", 0)

	cfg.Resilient.MaxPrimaryFailures = intFromEnv("RESILIENT_MAX_PRIMARY_FAILURES", 0)

	cfg.LLM.Provider = strings.ToLower(getenv("LLM_PROVIDER"))
	cfg.LLM.BaseURL = getenv("LLM_BASE_URL")
	cfg.LLM.APIKey = firstNonEmpty(getenv("LLM_API_KEY"), getenv("OPENAI_API_KEY"))
	cfg.LLM.Model = getenv("LLM_MODEL")
	if v := getenv("LLM_TEMPERATURE"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.LLM.Temperature = f
		}
	}
	cfg.LLM.MaxRetries = intFromEnv("LLM_MAX_RETRIES", 0)
	cfg.LLM.Timeout = intFromEnv("LLM_TIMEOUT_SECONDS", 0)
	cfg.LLM.FallbackProvider = strings.ToLower(getenv("LLM_FALLBACK_PROVIDER"))
	cfg.LLM.FallbackBaseURL = getenv("LLM_FALLBACK_BASE_URL")
	cfg.LLM.FallbackAPIKey = firstNonEmpty(getenv("LLM_FALLBACK_API_KEY"), getenv("ANTHROPIC_API_KEY"))
	cfg.LLM.FallbackModel = getenv("LLM_FALLBACK_MODEL")

	cfg.DB.DefaultDSN = getenv("DATABASE_URL")
	cfg.DB.Document.Backend = strings.ToLower(getenv("DOCSTORE_BACKEND"))
	cfg.DB.Document.DSN = firstNonEmpty(getenv("DOCSTORE_DSN"), cfg.DB.DefaultDSN)
	cfg.DB.Inverted.Backend = strings.ToLower(getenv("INVERTED_INDEX_BACKEND"))
	cfg.DB.Inverted.DSN = firstNonEmpty(getenv("INVERTED_INDEX_DSN"), cfg.DB.DefaultDSN)
	cfg.DB.Vector.Backend = strings.ToLower(getenv("VECTOR_INDEX_BACKEND"))
	cfg.DB.Vector.DSN = getenv("QDRANT_URL")
	cfg.DB.Vector.Collection = getenv("QDRANT_COLLECTION")
	cfg.DB.Vector.Dimensions = intFromEnv("VECTOR_DIMENSIONS", 0)
	cfg.DB.Vector.Metric = strings.ToLower(getenv("VECTOR_METRIC"))

	cfg.Redis.Addr = getenv("REDIS_ADDR")
	cfg.Redis.Password = getenv("REDIS_PASSWORD")
	cfg.Redis.DB = intFromEnv("REDIS_DB", 0)
	cfg.Redis.TLSInsecureSkipVerify = boolFromEnv("REDIS_TLS_INSECURE_SKIP_VERIFY", false)

	cfg.Window.MaxWindowSize = intFromEnv("WINDOW_MAX_SIZE", 0)
	cfg.Window.SmartMaskThreshold = intFromEnv("WINDOW_SMART_MASK_THRESHOLD", 0)
	cfg.Window.BoundaryMaxRetries = intFromEnv("WINDOW_BOUNDARY_MAX_RETRIES", 0)
	cfg.Window.LockTTLSeconds = intFromEnv("WINDOW_LOCK_TTL_SECONDS", 0)

	cfg.Profile.MaxItems = intFromEnv("PROFILE_MAX_ITEMS", 0)
	if v := getenv("PROFILE_COMPACTION_TRIGGER_RATIO"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Profile.CompactionTriggerRatio = f
		}
	}
	if v := getenv("PROFILE_COMPACTION_TARGET_RATIO"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Profile.CompactionTargetRatio = f
		}
	}
	if v := getenv("PROFILE_CLUSTER_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Profile.ClusterSimilarityThreshold = f
		}
	}

	cfg.Concurrency.AtomicFactEmbedConcurrency = intFromEnv("CONCURRENCY_ATOMIC_FACT_EMBED", 0)
	cfg.Concurrency.BatchEmbedConcurrency = intFromEnv("CONCURRENCY_BATCH_EMBED", 0)
	cfg.Concurrency.RerankBatchConcurrency = intFromEnv("CONCURRENCY_RERANK_BATCH", 0)

	cfg.Retrieve.DefaultTopK = intFromEnv("RETRIEVE_DEFAULT_TOP_K", 0)
	if v := getenv("RETRIEVE_DEFAULT_RADIUS"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Retrieve.DefaultRadius = f
		}
	}
	cfg.Retrieve.RRFK = intFromEnv("RETRIEVE_RRF_K", 0)
	cfg.Retrieve.FetchLimitCap = intFromEnv("RETRIEVE_FETCH_LIMIT_CAP", 0)

	cfg.LogLevel = getenv("LOG_LEVEL")

	applyDefaults(&cfg)

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openai"
	}
	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		return Config{}, fmt.Errorf("llm provider must be one of openai, anthropic (got %q)", cfg.LLM.Provider)
	}
	if cfg.LLM.APIKey == "" {
		return Config{}, errors.New("LLM_API_KEY (or OPENAI_API_KEY) is required")
	}

	return cfg, nil
}

// applyDefaults fills in the values that are awkward to express as Go
// zero-values, after env parsing so explicit overrides always win.
func applyDefaults(cfg *Config) {
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions <= 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.Embedding.MaxRetries <= 0 {
		cfg.Embedding.MaxRetries = 3
	}

	if cfg.Rerank.WireFormat == "" {
		cfg.Rerank.WireFormat = "openai"
	}
	if cfg.Rerank.BatchSize <= 0 {
		cfg.Rerank.BatchSize = 50
	}
	if cfg.Rerank.Timeout <= 0 {
		cfg.Rerank.Timeout = 15
	}
	if cfg.Rerank.MaxRetries <= 0 {
		cfg.Rerank.MaxRetries = 3
	}

	if cfg.Resilient.MaxPrimaryFailures <= 0 {
		cfg.Resilient.MaxPrimaryFailures = 3
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.MaxRetries <= 0 {
		cfg.LLM.MaxRetries = 5
	}
	if cfg.LLM.Timeout <= 0 {
		cfg.LLM.Timeout = 60
	}
	if cfg.LLM.FallbackProvider == "" && cfg.LLM.FallbackAPIKey != "" {
		cfg.LLM.FallbackProvider = "anthropic"
	}
	if cfg.LLM.FallbackModel == "" {
		cfg.LLM.FallbackModel = "claude-3-5-haiku-latest"
	}

	// A DefaultDSN with no explicit backend means "try Postgres"; an empty
	// DefaultDSN falls back to the in-memory adapters so tests and local
	// runs work without infrastructure.
	if cfg.DB.Document.Backend == "" {
		if cfg.DB.DefaultDSN != "" {
			cfg.DB.Document.Backend = "postgres"
		} else {
			cfg.DB.Document.Backend = "memory"
		}
	}
	if cfg.DB.Inverted.Backend == "" {
		if cfg.DB.DefaultDSN != "" {
			cfg.DB.Inverted.Backend = "postgres"
		} else {
			cfg.DB.Inverted.Backend = "memory"
		}
	}
	if cfg.DB.Vector.Backend == "" {
		if cfg.DB.Vector.DSN != "" {
			cfg.DB.Vector.Backend = "qdrant"
		} else {
			cfg.DB.Vector.Backend = "memory"
		}
	}
	if cfg.DB.Vector.Collection == "" {
		cfg.DB.Vector.Collection = "episodic_memory"
	}
	if cfg.DB.Vector.Dimensions <= 0 {
		cfg.DB.Vector.Dimensions = cfg.Embedding.Dimensions
	}
	if cfg.DB.Vector.Metric == "" {
		cfg.DB.Vector.Metric = "cosine"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.Window.MaxWindowSize <= 0 {
		cfg.Window.MaxWindowSize = 500
	}
	if cfg.Window.SmartMaskThreshold <= 0 {
		cfg.Window.SmartMaskThreshold = 5
	}
	if cfg.Window.BoundaryMaxRetries <= 0 {
		cfg.Window.BoundaryMaxRetries = 5
	}
	if cfg.Window.LockTTLSeconds <= 0 {
		cfg.Window.LockTTLSeconds = 300
	}

	if cfg.Profile.MaxItems <= 0 {
		cfg.Profile.MaxItems = 25
	}
	if cfg.Profile.CompactionTriggerRatio <= 0 {
		cfg.Profile.CompactionTriggerRatio = 1.5
	}
	if cfg.Profile.CompactionTargetRatio <= 0 {
		cfg.Profile.CompactionTargetRatio = 0.7
	}
	if cfg.Profile.ClusterSimilarityThreshold <= 0 {
		cfg.Profile.ClusterSimilarityThreshold = 0.75
	}

	if cfg.Concurrency.AtomicFactEmbedConcurrency <= 0 {
		cfg.Concurrency.AtomicFactEmbedConcurrency = 20
	}
	if cfg.Concurrency.BatchEmbedConcurrency <= 0 {
		cfg.Concurrency.BatchEmbedConcurrency = 10
	}
	if cfg.Concurrency.RerankBatchConcurrency <= 0 {
		cfg.Concurrency.RerankBatchConcurrency = 5
	}

	if cfg.Retrieve.DefaultTopK <= 0 {
		cfg.Retrieve.DefaultTopK = 10
	}
	if cfg.Retrieve.DefaultRadius <= 0 {
		cfg.Retrieve.DefaultRadius = 0.6
	}
	if cfg.Retrieve.RRFK <= 0 {
		cfg.Retrieve.RRFK = 60
	}
	if cfg.Retrieve.FetchLimitCap <= 0 {
		cfg.Retrieve.FetchLimitCap = 500
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
