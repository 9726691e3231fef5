package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/ingestion"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
)

// NewIngestCmd constructs the `carevoice ingest` command, which chunks,
// embeds, and indexes support documentation into the knowledge base.
func NewIngestCmd() *cobra.Command {
	var dir string
	var files []string
	var sample bool
	var docType string
	var product string
	var language string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest support documentation into the knowledge base",
		Long: `Chunk, embed, and index support documentation into the knowledge base.

Accepts individual files (--file, repeatable), a directory tree (--dir,
picking up .txt/.md/.markdown recursively), or --sample to seed a few
starter FAQ entries. Chunk ids are deterministic, so re-ingesting the same
file updates its chunks in place instead of duplicating them.

An embedding provider is required: ingestion has no keyword-only mode.

Examples:
  carevoice ingest --sample
  carevoice ingest --file docs/billing_faq.md --doc-type faq --product billing
  carevoice ingest --dir ./support-docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = commandContext(ctx, log)
			cfg := config.Resolve()

			if dir == "" && len(files) == 0 && !sample {
				return fmt.Errorf("ingest: one of --dir, --file, or --sample is required")
			}

			emb, err := buildEmbedder(cfg, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if emb == nil {
				return fmt.Errorf("ingest: an embedding provider is required (EMBEDDING_PROVIDER=none)")
			}

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = store.Close() }()

			opLog, closeOpLog := openOpLog(cfg, log)
			defer closeOpLog()

			if err := ensureKnowledgeIndex(ctx, store, emb, cfg, log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(emb, store, cfg.Docstore.KnowledgeIndex, &ingestion.Config{
				ChunkSize:    cfg.Ingestion.ChunkSize,
				ChunkOverlap: cfg.Ingestion.ChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			opts := ingestion.FileOptions{
				DocType:  docType,
				Product:  product,
				Language: language,
			}

			totalChunks, totalErrors := 0, 0
			var targets []string

			if sample {
				res, err := pipeline.IngestSamples(ctx)
				if err != nil {
					return fmt.Errorf("ingest: samples: %w", err)
				}
				totalChunks += res.Chunks
				totalErrors += res.Errors
				targets = append(targets, "samples")
			}

			for _, f := range files {
				res, err := pipeline.IngestFile(ctx, f, opts)
				if err != nil {
					log.Error("file ingestion failed", slog.String("file", f), slog.Any("error", err))
				}
				totalChunks += res.Chunks
				totalErrors += res.Errors
				targets = append(targets, f)
			}

			if dir != "" {
				res, err := pipeline.IngestDirectory(ctx, dir, opts)
				if err != nil {
					return fmt.Errorf("ingest: directory %s: %w", dir, err)
				}
				log.Info("directory ingested",
					slog.String("dir", dir),
					slog.Int("files", res.FilesProcessed),
				)
				totalChunks += res.TotalChunks
				totalErrors += res.TotalErrors
				targets = append(targets, dir)
			}

			if err := opLog.Append(ctx, oplog.OpIngest, strings.Join(targets, ","),
				fmt.Sprintf("chunks=%d errors=%d", totalChunks, totalErrors)); err != nil {
				log.Warn("oplog append failed", slog.Any("error", err))
			}

			log.Info("ingestion complete",
				slog.Int("chunks", totalChunks),
				slog.Int("errors", totalErrors),
			)
			if totalErrors > 0 {
				return fmt.Errorf("ingest: %d chunks failed (see log)", totalErrors)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory tree to ingest (recursive, .txt/.md/.markdown)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Document file to ingest (repeatable)")
	cmd.Flags().BoolVar(&sample, "sample", false, "Seed the knowledge base with sample FAQ entries")
	cmd.Flags().StringVarP(&docType, "doc-type", "d", "faq", "Document type label (faq, manual, policy)")
	cmd.Flags().StringVarP(&product, "product", "P", "general", "Product line label")
	cmd.Flags().StringVarP(&language, "language", "l", "en", "Content language code")

	return cmd
}
