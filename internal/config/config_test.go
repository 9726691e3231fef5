package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: openai
  model: text-embedding-3-small
  dimensions: 1536
docstore:
  host: qdrant.internal
  port: 6334
  knowledge_index: support-kb
retrieval:
  max_context_chunks: 3
  min_score: 0.5
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS",
		"QDRANT_HOST", "QDRANT_PORT", "KNOWLEDGE_INDEX",
		"RETRIEVAL_MAX_CONTEXT_CHUNKS", "RETRIEVAL_MIN_SCORE",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER":           "openai",
		"EMBEDDING_MODEL":              "text-embedding-3-small",
		"EMBEDDING_DIMENSIONS":         "1536",
		"QDRANT_HOST":                  "qdrant.internal",
		"QDRANT_PORT":                  "6334",
		"KNOWLEDGE_INDEX":              "support-kb",
		"RETRIEVAL_MAX_CONTEXT_CHUNKS": "3",
		"RETRIEVAL_MIN_SCORE":          "0.5",
		"LOG_LEVEL":                    "debug",
		"LOG_FORMAT":                   "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvWins(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
docstore:
  host: from-yaml
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("QDRANT_HOST", "from-env")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("QDRANT_HOST"); got != "from-env" {
		t.Errorf("env var overridden by YAML: got %q", got)
	}
}

func TestResolve_Defaults(t *testing.T) {
	envKeys := []string{
		"EMBEDDING_PROVIDER", "DOCSTORE_BACKEND", "QDRANT_HOST", "QDRANT_PORT",
		"KNOWLEDGE_INDEX", "LEARNING_INDEX", "RETRIEVAL_MAX_CONTEXT_CHUNKS",
		"RETRIEVAL_MIN_SCORE", "LEARNING_ENABLED", "LEARNING_SIMILAR_MIN_SCORE",
		"LEARNING_REUSE_THRESHOLD", "INGEST_CHUNK_SIZE", "INGEST_CHUNK_OVERLAP",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := Resolve()

	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("embedding provider: got %q, want ollama", cfg.Embedding.Provider)
	}
	if cfg.Docstore.KnowledgeIndex != DefaultKnowledgeIndex {
		t.Errorf("knowledge index: got %q, want %q", cfg.Docstore.KnowledgeIndex, DefaultKnowledgeIndex)
	}
	if want := DefaultKnowledgeIndex + "_conversations"; cfg.Docstore.LearningIndex != want {
		t.Errorf("learning index: got %q, want %q", cfg.Docstore.LearningIndex, want)
	}
	if cfg.Retrieval.MaxContextChunks != DefaultMaxContextChunks {
		t.Errorf("max context chunks: got %d, want %d", cfg.Retrieval.MaxContextChunks, DefaultMaxContextChunks)
	}
	if cfg.Retrieval.MinScore != DefaultMinScore {
		t.Errorf("min score: got %v, want %v", cfg.Retrieval.MinScore, DefaultMinScore)
	}
	if !cfg.LearningEnabled() {
		t.Error("learning should default to enabled")
	}
	if cfg.Learning.ReuseThreshold != DefaultReuseThreshold {
		t.Errorf("reuse threshold: got %v, want %v", cfg.Learning.ReuseThreshold, DefaultReuseThreshold)
	}
	if cfg.Ingestion.ChunkSize != DefaultChunkSize {
		t.Errorf("chunk size: got %d, want %d", cfg.Ingestion.ChunkSize, DefaultChunkSize)
	}
}

func TestResolve_LearningDisabled(t *testing.T) {
	t.Setenv("LEARNING_ENABLED", "false")

	cfg := Resolve()
	if cfg.LearningEnabled() {
		t.Error("LEARNING_ENABLED=false should disable learning")
	}
}
