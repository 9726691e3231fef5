package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
)

// NewIndexCmd constructs the `carevoice index` command group for document
// store index administration.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Administer document store indexes",
	}
	cmd.AddCommand(newIndexCreateCmd(), newIndexCountCmd(), newIndexDeleteCmd())
	return cmd
}

func newIndexCreateCmd() *cobra.Command {
	var dimensions int

	cmd := &cobra.Command{
		Use:   "create <index>",
		Short: "Create a document store index",
		Long: `Create a document store index sized for the configured embedding provider,
or for an explicit --dimensions value. Creating an index that already exists
with a matching dimension is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := args[0]
			log := logging.New()
			cfg := config.Resolve()
			ctx := commandContext(cmd.Context(), log)

			if dimensions <= 0 {
				emb, err := buildEmbedder(cfg, log)
				if err != nil {
					return fmt.Errorf("index create: %w", err)
				}
				if emb == nil {
					return fmt.Errorf("index create: no embedding provider configured, pass --dimensions")
				}
				dimensions = emb.Dimensions()
			}

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("index create: %w", err)
			}
			defer func() { _ = store.Close() }()

			opLog, closeOpLog := openOpLog(cfg, log)
			defer closeOpLog()

			if _, err := store.EnsureIndex(ctx, docstore.IndexSpec{Name: index, Dimension: dimensions}); err != nil {
				return fmt.Errorf("index create: %s: %w", index, err)
			}
			if err := opLog.Append(ctx, oplog.OpIndexCreate, index, fmt.Sprintf("dimensions=%d", dimensions)); err != nil {
				log.Warn("oplog append failed", slog.Any("error", err))
			}
			fmt.Printf("Index %s ready (%d dimensions)\n", index, dimensions)
			return nil
		},
	}

	cmd.Flags().IntVar(&dimensions, "dimensions", 0, "Vector dimension (default: the embedding provider's)")
	return cmd
}

func newIndexCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [index]",
		Short: "Print the document count of an index",
		Long: `Print the document count of an index. With no argument, counts both the
knowledge-base and conversation indexes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			cfg := config.Resolve()
			ctx := commandContext(cmd.Context(), log)

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("index count: %w", err)
			}
			defer func() { _ = store.Close() }()

			indexes := []string{cfg.Docstore.KnowledgeIndex, cfg.Docstore.LearningIndex}
			if len(args) == 1 {
				indexes = args
			}
			for _, idx := range indexes {
				n, err := store.Count(ctx, idx)
				if err != nil {
					return fmt.Errorf("index count: %s: %w", idx, err)
				}
				fmt.Printf("%s: %d\n", idx, n)
			}
			return nil
		},
	}
}

func newIndexDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete an index and all its documents",
		Long: `Delete an index and all its documents. Deleting an absent index is not an
error. This is irreversible; pass --yes to skip the confirmation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := args[0]
			if !yes {
				return fmt.Errorf("index delete: refusing to delete %q without --yes", index)
			}

			log := logging.New()
			cfg := config.Resolve()
			ctx := commandContext(cmd.Context(), log)

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("index delete: %w", err)
			}
			defer func() { _ = store.Close() }()

			opLog, closeOpLog := openOpLog(cfg, log)
			defer closeOpLog()

			if err := store.DeleteIndex(ctx, index); err != nil {
				return fmt.Errorf("index delete: %s: %w", index, err)
			}
			if err := opLog.Append(ctx, oplog.OpIndexDelete, index, ""); err != nil {
				log.Warn("oplog append failed", slog.Any("error", err))
			}
			fmt.Printf("Deleted index %s\n", index)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
