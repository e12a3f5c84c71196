// Package config provides configuration management for the filing-tree
// RAG system. It follows Uber Go Style Guide conventions for struct
// organization and error handling.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Common configuration errors.
var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port string `mapstructure:"port" validate:"required,numeric"`
}

// LLMConfig configures the chat-completion adapter.
type LLMConfig struct {
	Model   string `mapstructure:"llm_model" validate:"required"`
	BaseURL string `mapstructure:"llm_base_url" validate:"required,url"`
	APIKey  string `mapstructure:"llm_api_key" validate:"required"`
	Retries int    `mapstructure:"llm_retries" validate:"min=0"`
}

// ExtractorConfig configures the external PDF-to-text extraction service
// (spec.md "Out of scope: PDF→text extraction (external library)").
type ExtractorConfig struct {
	BaseURL string `mapstructure:"extractor_base_url" validate:"required,url"`
	APIKey  string `mapstructure:"extractor_api_key"`
}

// EmbeddingConfig configures the vector-embedding adapter.
type EmbeddingConfig struct {
	Model     string `mapstructure:"embedding_model" validate:"required"`
	URL       string `mapstructure:"embedding_url" validate:"required,url"`
	Dim       int    `mapstructure:"embedding_dim" validate:"required,min=1"`
	BatchSize int    `mapstructure:"embed_batch_size" validate:"required,min=1"`
}

// StorageConfig configures durable state: the document/tree/chunk store
// and the directory for uploaded PDF bytes.
type StorageConfig struct {
	DatabasePath string `mapstructure:"database_path" validate:"required"`
	UploadDir    string `mapstructure:"upload_dir" validate:"required"`
}

// TreeConfig configures Tree Builder phases (spec.md §4.1).
type TreeConfig struct {
	TOCCheckPages     int     `mapstructure:"toc_check_pages" validate:"required,min=1"`
	MaxPagesPerNode   int     `mapstructure:"max_pages_per_node" validate:"required,min=1"`
	MaxTokensPerNode  int     `mapstructure:"max_tokens_per_node" validate:"required,min=1"`
	AccuracyThreshold float64 `mapstructure:"accuracy_threshold" validate:"min=0,max=1"`
	// GenerateDocumentDescription enables the whole-document description
	// generated from ordered root-level summaries (spec.md §4.2).
	GenerateDocumentDescription bool `mapstructure:"generate_document_description"`
}

// ChunkingConfig defines text chunking parameters (spec.md §4.3).
type ChunkingConfig struct {
	MaxTokens     int `mapstructure:"chunk_max_tokens" validate:"required,min=1"`
	OverlapTokens int `mapstructure:"chunk_overlap_tokens" validate:"min=0"`
	MinTokens     int `mapstructure:"chunk_min_tokens" validate:"required,min=1"`
}

// Validate checks the chunking configuration's internal consistency.
func (c *ChunkingConfig) Validate() error {
	if c.MinTokens >= c.MaxTokens {
		return fmt.Errorf("%w: chunk_min_tokens must be less than chunk_max_tokens", ErrInvalidConfig)
	}
	if c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens must be less than chunk_max_tokens", ErrInvalidConfig)
	}
	return nil
}

// RetrievalConfig configures the Retrieval Orchestrator (spec.md §4.5, §5).
type RetrievalConfig struct {
	ContextBudgetTokens  int `mapstructure:"context_budget_tokens" validate:"required,min=1"`
	ValueSearchTopK      int `mapstructure:"value_search_top_k" validate:"required,min=1"`
	RetrievalConcurrency int `mapstructure:"retrieval_concurrency" validate:"required,min=1"`
}

// DatabaseConfig configures the Postgres connection the document/tree/chunk
// store opens. StorageConfig.DatabasePath is not used to connect.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required,hostname"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	DBName   string `mapstructure:"dbname" validate:"required"`
}

// RedisConfig configures the cache client.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required,hostname"`
	Port     int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0,max=15"`
}

// MinIOConfig configures object storage for uploaded PDF bytes.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required,url"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	BucketName      string `mapstructure:"bucket_name" validate:"required"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Config represents the complete, immutable application configuration.
// A loaded Config is passed by value into every component constructor
// (spec.md §9 "Configuration passing") — no package-level singleton holds it.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Storage   StorageConfig   `mapstructure:",squash"`
	Extractor ExtractorConfig `mapstructure:",squash"`
	LLM       LLMConfig       `mapstructure:",squash"`
	Embedding EmbeddingConfig `mapstructure:",squash"`
	Tree      TreeConfig      `mapstructure:",squash"`
	Chunking  ChunkingConfig  `mapstructure:",squash"`
	Retrieval RetrievalConfig `mapstructure:",squash"`
}

// Validate performs configuration validation across sub-structs.
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking config: %w", err)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrConfigNotFound, err)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures the default values named in spec.md §6.
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")

	viper.SetDefault("llm_retries", 10)

	viper.SetDefault("embed_batch_size", 32)

	viper.SetDefault("toc_check_pages", 20)
	viper.SetDefault("max_pages_per_node", 10)
	viper.SetDefault("max_tokens_per_node", 20000)
	viper.SetDefault("accuracy_threshold", 0.6)
	viper.SetDefault("generate_document_description", true)

	viper.SetDefault("chunk_max_tokens", 512)
	viper.SetDefault("chunk_overlap_tokens", 64)
	viper.SetDefault("chunk_min_tokens", 32)

	viper.SetDefault("context_budget_tokens", 50000)
	viper.SetDefault("value_search_top_k", 20)
	viper.SetDefault("retrieval_concurrency", 8)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("minio.use_ssl", false)
}

// MustLoadConfig loads configuration and panics on failure.
// Use this only in main() where failure should be fatal.
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
