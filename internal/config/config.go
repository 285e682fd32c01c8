package config

// EmbeddingConfig configures the embedding provider client (component A).
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	// SupportsDimensionsParam indicates the provider accepts a `dimensions`
	// request field; when false the client truncates over-long vectors
	// client-side instead.
	SupportsDimensionsParam bool
	Timeout                 int
	MaxRetries              int
	DefaultInstruction      string
}

// RerankConfig configures the rerank provider client (component B).
type RerankConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	WireFormat string // "openai" | "qwen"
	BatchSize  int
	Timeout    int
	MaxRetries int
}

// ResilientConfig configures the primary+fallback provider wrapper
// (component C) shared by embedding and rerank.
type ResilientConfig struct {
	MaxPrimaryFailures int
}

// LLMConfig configures the extractor LLM client (components H/I).
type LLMConfig struct {
	Provider    string // "openai" | "anthropic"
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxRetries  int
	Timeout     int

	FallbackProvider string
	FallbackBaseURL  string
	FallbackAPIKey   string
	FallbackModel    string
}

// BackendConfig is the common shape for document/inverted backends.
type BackendConfig struct {
	Backend string // "memory" | "postgres" | "auto"
	DSN     string
}

// VectorBackendConfig adds vector-specific fields to BackendConfig.
type VectorBackendConfig struct {
	Backend    string // "memory" | "qdrant" | "auto"
	DSN        string
	Collection string
	Dimensions int
	Metric     string // "cosine" | "l2" | "ip"
}

// DBConfig configures the document store, vector index and inverted index
// backends (components D, E, F). DefaultDSN lets a single Postgres URL back
// both the document store and the inverted index unless overridden.
type DBConfig struct {
	DefaultDSN string
	Document   BackendConfig
	Vector     VectorBackendConfig
	Inverted   BackendConfig
}

// RedisConfig configures the distributed per-group lock (component J).
type RedisConfig struct {
	Addr                  string
	Password              string
	DB                    int
	TLSInsecureSkipVerify bool
}

// WindowConfig tunes the ingest coordinator's window handling.
type WindowConfig struct {
	MaxWindowSize      int // hard cap on messages materialized per ingest, default 500
	SmartMaskThreshold int // message count (history+new) above which smart_mask_flag is set, default 5
	BoundaryMaxRetries int // LLM boundary-detection retry budget, default 5
	LockTTLSeconds     int
}

// ProfileConfig tunes the profile manager's capacity model (component M).
type ProfileConfig struct {
	MaxItems                   int     // target steady-state item count, default 25
	CompactionTriggerRatio     float64 // compact once TotalItems() > MaxItems*ratio, default 1.5
	CompactionTargetRatio      float64 // compact back down to MaxItems*ratio, default 0.7
	ClusterSimilarityThreshold float64 // cosine threshold for joining an existing cluster, default 0.75
}

// ConcurrencyConfig bounds parallelism inside the per-group critical section.
type ConcurrencyConfig struct {
	AtomicFactEmbedConcurrency int // default 20
	BatchEmbedConcurrency      int // default 10
	RerankBatchConcurrency     int // default 5
}

// RetrieveConfig tunes default retrieval parameters (component L).
type RetrieveConfig struct {
	DefaultTopK   int
	DefaultRadius float64 // cosine-distance cutoff, default 0.6
	RRFK          int     // reciprocal rank fusion constant, default 60
	FetchLimitCap int     // hard per-query cap, default 500
}

// Config aggregates every section Load populates.
type Config struct {
	Embedding   EmbeddingConfig
	Rerank      RerankConfig
	Resilient   ResilientConfig
	LLM         LLMConfig
	DB          DBConfig
	Redis       RedisConfig
	Window      WindowConfig
	Profile     ProfileConfig
	Concurrency ConcurrencyConfig
	Retrieve    RetrieveConfig
	LogLevel    string
}
