// Package ingestion implements the knowledge-base ingestion pipeline.
// It reads text and markdown files, chunks the content by words, embeds each
// chunk, and bulk-writes the results into the document store. The pipeline is
// invoked by the `carevoice ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// ingestExtensions are the file extensions picked up by IngestDirectory.
var ingestExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of words per chunk.
	// Defaults to 600 if zero.
	ChunkSize int

	// ChunkOverlap is the number of words repeated between consecutive
	// chunks. Defaults to 100; forced below ChunkSize when misconfigured.
	ChunkOverlap int
}

// FileOptions classifies the documents produced from a file.
type FileOptions struct {
	// DocType labels the content kind (faq, manual, policy). Default: faq.
	DocType string
	// Product scopes the content to a product line. Default: general.
	Product string
	// Language is the content language code. Default: en.
	Language string
}

func (o FileOptions) withDefaults() FileOptions {
	if o.DocType == "" {
		o.DocType = "faq"
	}
	if o.Product == "" {
		o.Product = "general"
	}
	if o.Language == "" {
		o.Language = "en"
	}
	return o
}

// FileResult reports the outcome of ingesting one file.
type FileResult struct {
	// Chunks is the number of chunks successfully indexed.
	Chunks int
	// Errors is the number of chunks that failed.
	Errors int
}

// DirResult reports the outcome of ingesting a directory tree.
type DirResult struct {
	FilesProcessed int
	TotalChunks    int
	TotalErrors    int
}

// Pipeline orchestrates the read, chunk, embed, bulk-index flow.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store docstore.Store

	// index is the knowledge-base index chunks are written into.
	index string

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store docstore.Store, index string, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if index == "" {
		return nil, fmt.Errorf("ingestion: index must not be empty")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 600
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		index:    index,
		cfg:      cfg,
	}, nil
}

// IngestFile reads, chunks, embeds, and indexes one file. Chunk ids are
// deterministic ("<stem>_chunk_<n>"), so re-ingesting the same file updates
// its chunks in place instead of duplicating them.
func (p *Pipeline) IngestFile(ctx context.Context, path string, opts FileOptions) (FileResult, error) {
	opts = opts.withDefaults()
	log := logging.FromContext(ctx)

	content, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Errors: 1}, fmt.Errorf("ingestion: read %s: %w", path, err)
	}

	chunks := Chunk(string(content), p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		log.Warn("file produced no chunks", "path", path)
		return FileResult{}, nil
	}
	log.Info("document chunked", "file", filepath.Base(path), "chunks", len(chunks))

	embeddings, err := p.embedder.Embed(ctx, chunks)
	if err != nil {
		return FileResult{Errors: len(chunks)}, fmt.Errorf("ingestion: embedding failed for %s: %w", path, err)
	}
	if len(embeddings) != len(chunks) {
		return FileResult{Errors: len(chunks)}, fmt.Errorf("ingestion: expected %d embeddings for %s, got %d", len(chunks), path, len(embeddings))
	}

	source := filepath.Base(path)
	stem := strings.TrimSuffix(source, filepath.Ext(source))
	createdAt := time.Now().UTC().Format(time.RFC3339)

	docs := make([]docstore.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, docstore.Document{
			ID: fmt.Sprintf("%s_chunk_%d", stem, i+1),
			Payload: map[string]any{
				"text": chunk,
				"metadata": map[string]any{
					"source":     source,
					"doc_type":   opts.DocType,
					"product":    opts.Product,
					"language":   opts.Language,
					"created_at": createdAt,
					"chunk_id":   i + 1,
					"chunk_size": len(strings.Fields(chunk)),
				},
			},
			Vectors: map[string][]float32{docstore.DefaultVectorField: embeddings[i]},
		})
	}

	res, err := p.store.BulkIndex(ctx, p.index, docs)
	if err != nil {
		return FileResult{Errors: len(docs)}, fmt.Errorf("ingestion: bulk index failed for %s: %w", path, err)
	}

	log.Info("file ingested", "file", source, "indexed", res.Indexed, "failed", res.Failed)
	return FileResult{Chunks: res.Indexed, Errors: res.Failed}, nil
}

// IngestDirectory walks the tree under dir and ingests every text and
// markdown file. One broken file does not stop the run: its chunks count as
// errors and the walk continues.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string, opts FileOptions) (DirResult, error) {
	log := logging.FromContext(ctx)

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return DirResult{}, fmt.Errorf("ingestion: walk %s: %w", dir, err)
	}
	log.Info("found files", "count", len(files), "directory", dir)

	var out DirResult
	for _, path := range files {
		res, err := p.IngestFile(ctx, path, opts)
		if err != nil {
			log.Error("file ingestion failed", "path", path, "error", err)
		}
		out.FilesProcessed++
		out.TotalChunks += res.Chunks
		out.TotalErrors += res.Errors
	}
	return out, nil
}

// Chunk splits text into word-based chunks of at most size words, with
// overlap words repeated between consecutive chunks. Whitespace-only input
// yields no chunks.
func Chunk(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []string
	for start := 0; start < len(words); start += size - overlap {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
