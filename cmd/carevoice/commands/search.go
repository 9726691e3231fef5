package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// NewSearchCmd constructs the `carevoice search` command, which queries the
// knowledge base directly from the terminal.
func NewSearchCmd() *cobra.Command {
	var topK int
	var minScore float32
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base and print the matching passages.

Uses vector search when an embedding provider is configured, keyword search
otherwise. Useful for checking what the assistant will see for a given
question without going through the HTTP API.

Examples:
  carevoice search "how do I reset my password"
  carevoice search --top-k 3 --json "refund policy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = commandContext(ctx, log)
			cfg := config.Resolve()
			query := strings.Join(args, " ")

			emb, err := buildEmbedder(cfg, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = store.Close() }()

			retriever, err := buildRetriever(store, emb, cfg)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			docs, err := retriever.Search(ctx, query, topK, minScore)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			if len(docs) == 0 {
				fmt.Println("No matching passages.")
				return nil
			}
			for i, doc := range docs {
				source := doc.Metadata["source"]
				if source == "" {
					source = "unknown"
				}
				fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, doc.Score, doc.ID, source)
				fmt.Printf("   %s\n", doc.Text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to return (0 = configured default)")
	cmd.Flags().Float32Var(&minScore, "min-score", -1, "Similarity floor, 0 disables (-1 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}
