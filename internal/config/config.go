// Package config provides YAML-based configuration for carevoice.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CAREVOICE_CONFIG environment variable
//  3. ~/.carevoice/config.yaml
//  4. ./carevoice.yaml
//
// If no file is found the system runs entirely from env vars.
//
// Engine components never read the environment themselves: the CLI layer
// calls [Load] then [Resolve] once at startup and passes the resulting
// typed sections into each constructor.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Docstore configures the document store backend and index names.
	Docstore DocstoreConfig `yaml:"docstore"`

	// Retrieval configures context retrieval defaults.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Learning configures the conversation learning store.
	Learning LearningConfig `yaml:"learning"`

	// Ingestion configures the knowledge-base ingestion pipeline.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Oplog configures the administrative operations log.
	Oplog OplogConfig `yaml:"oplog"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: ollama, openai, azure.
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// AzureAPIVersion is the Azure OpenAI API version (azure provider only).
	AzureAPIVersion string `yaml:"azure_api_version"`
}

// DocstoreConfig holds document store settings.
type DocstoreConfig struct {
	// Backend selects the store implementation: qdrant, memory.
	Backend string `yaml:"backend"`
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
	// KnowledgeIndex is the knowledge-base index name.
	KnowledgeIndex string `yaml:"knowledge_index"`
	// LearningIndex is the conversation index name.
	// Defaults to "<knowledge_index>_conversations".
	LearningIndex string `yaml:"learning_index"`
}

// RetrievalConfig holds context retrieval defaults.
type RetrievalConfig struct {
	// MaxContextChunks is the default number of passages returned per query.
	MaxContextChunks int `yaml:"max_context_chunks"`
	// MinScore is the default similarity floor for vector search (0.0–1.0).
	MinScore float32 `yaml:"min_score"`
}

// LearningConfig holds conversation learning settings.
type LearningConfig struct {
	// Enabled toggles conversation recording. Default: true.
	Enabled *bool `yaml:"enabled"`
	// SimilarMinScore is the default floor for similar-conversation search.
	SimilarMinScore float32 `yaml:"similar_min_score"`
	// ReuseThreshold is the similarity above which a past answer is
	// considered reusable by callers. Not applied by the engine itself.
	ReuseThreshold float32 `yaml:"reuse_threshold"`
}

// IngestionConfig holds knowledge-base ingestion settings.
type IngestionConfig struct {
	// ChunkSize is the number of words per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the number of words of overlap between chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CAREVOICE_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// OplogConfig holds operations log settings.
type OplogConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// Default values applied by Resolve when neither YAML nor env set a field.
const (
	// DefaultKnowledgeIndex is the default knowledge-base index name.
	DefaultKnowledgeIndex = "customer-care-kb"
	// DefaultMaxContextChunks is the default passage count per retrieval.
	DefaultMaxContextChunks = 5
	// DefaultMinScore is the default similarity floor for retrieval.
	DefaultMinScore = 0.7
	// DefaultSimilarMinScore is the default floor for similar-conversation search.
	DefaultSimilarMinScore = 0.8
	// DefaultReuseThreshold is the similarity above which a past answer is
	// considered safe to reuse instead of a fresh LLM call.
	DefaultReuseThreshold = 0.85
	// DefaultChunkSize is the default ingestion chunk size in words.
	DefaultChunkSize = 600
	// DefaultChunkOverlap is the default ingestion chunk overlap in words.
	DefaultChunkOverlap = 100
)

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Embedding.AzureAPIVersion }},
	{"DOCSTORE_BACKEND", func(c *Config) string { return c.Docstore.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Docstore.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Docstore.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Docstore.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Docstore.TLS) }},
	{"KNOWLEDGE_INDEX", func(c *Config) string { return c.Docstore.KnowledgeIndex }},
	{"LEARNING_INDEX", func(c *Config) string { return c.Docstore.LearningIndex }},
	{"RETRIEVAL_MAX_CONTEXT_CHUNKS", func(c *Config) string { return intStr(c.Retrieval.MaxContextChunks) }},
	{"RETRIEVAL_MIN_SCORE", func(c *Config) string { return float32Str(c.Retrieval.MinScore) }},
	{"LEARNING_ENABLED", func(c *Config) string { return boolPtrStr(c.Learning.Enabled) }},
	{"LEARNING_SIMILAR_MIN_SCORE", func(c *Config) string { return float32Str(c.Learning.SimilarMinScore) }},
	{"LEARNING_REUSE_THRESHOLD", func(c *Config) string { return float32Str(c.Learning.ReuseThreshold) }},
	{"INGEST_CHUNK_SIZE", func(c *Config) string { return intStr(c.Ingestion.ChunkSize) }},
	{"INGEST_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Ingestion.ChunkOverlap) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CAREVOICE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"CAREVOICE_OPLOG_DB", func(c *Config) string { return c.Oplog.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// Resolve reads the effective environment (after Load has layered any YAML
// values into it) and returns a fully defaulted Config. This is the single
// place the engine reads the process environment; everything downstream
// receives explicit sections from the returned struct.
func Resolve() *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:        getEnvOrDefault("EMBEDDING_PROVIDER", "ollama"),
			Model:           os.Getenv("EMBEDDING_MODEL"),
			Dimensions:      getEnvInt("EMBEDDING_DIMENSIONS", 0),
			APIKey:          os.Getenv("EMBEDDING_API_KEY"),
			Endpoint:        os.Getenv("EMBEDDING_ENDPOINT"),
			AzureAPIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
		},
		Docstore: DocstoreConfig{
			Backend:        getEnvOrDefault("DOCSTORE_BACKEND", "qdrant"),
			Host:           getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:           getEnvInt("QDRANT_PORT", 6334),
			APIKey:         os.Getenv("QDRANT_API_KEY"),
			TLS:            os.Getenv("QDRANT_TLS") == "true",
			KnowledgeIndex: getEnvOrDefault("KNOWLEDGE_INDEX", DefaultKnowledgeIndex),
			LearningIndex:  os.Getenv("LEARNING_INDEX"),
		},
		Retrieval: RetrievalConfig{
			MaxContextChunks: getEnvInt("RETRIEVAL_MAX_CONTEXT_CHUNKS", DefaultMaxContextChunks),
			MinScore:         getEnvFloat32("RETRIEVAL_MIN_SCORE", DefaultMinScore),
		},
		Learning: LearningConfig{
			SimilarMinScore: getEnvFloat32("LEARNING_SIMILAR_MIN_SCORE", DefaultSimilarMinScore),
			ReuseThreshold:  getEnvFloat32("LEARNING_REUSE_THRESHOLD", DefaultReuseThreshold),
		},
		Ingestion: IngestionConfig{
			ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", DefaultChunkSize),
			ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", DefaultChunkOverlap),
		},
		Server: ServerConfig{
			Host:   getEnvOrDefault("SERVER_HOST", "127.0.0.1"),
			Port:   getEnvInt("SERVER_PORT", 8080),
			APIKey: os.Getenv("CAREVOICE_API_KEY"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Oplog: OplogConfig{
			DBPath: os.Getenv("CAREVOICE_OPLOG_DB"),
		},
	}

	enabled := os.Getenv("LEARNING_ENABLED") != "false"
	cfg.Learning.Enabled = &enabled

	// Provider-specific credential fallbacks, so users with standard
	// OpenAI/Azure env vars need no embedding-specific duplicates.
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		case "azure":
			cfg.Embedding.APIKey = os.Getenv("AZURE_OPENAI_API_KEY")
		}
	}
	if cfg.Embedding.Endpoint == "" && cfg.Embedding.Provider == "azure" {
		cfg.Embedding.Endpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")
	}

	if cfg.Docstore.LearningIndex == "" {
		cfg.Docstore.LearningIndex = cfg.Docstore.KnowledgeIndex + "_conversations"
	}

	return cfg
}

// LearningEnabled reports whether conversation recording is on.
// Defaults to true when the field was never set.
func (c *Config) LearningEnabled() bool {
	return c.Learning.Enabled == nil || *c.Learning.Enabled
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CAREVOICE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".carevoice", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("carevoice.yaml"); err == nil {
		return "carevoice.yaml"
	}

	return ""
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the float value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// boolPtrStr converts an optional bool to string, returning "" when unset.
func boolPtrStr(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}
