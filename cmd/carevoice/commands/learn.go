package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/learning"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
)

// NewLearnCmd constructs the `carevoice learn` command group for
// administering the conversation learning store.
func NewLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Administer the conversation learning store",
		Long: `Administer the conversation learning store: inspect statistics, search
past exchanges, record feedback, and promote well-received answers into the
knowledge base.

All subcommands require an embedding provider.`,
	}

	cmd.AddCommand(
		newLearnStatsCmd(),
		newLearnSimilarCmd(),
		newLearnFeedbackCmd(),
		newLearnPromoteCmd(),
	)
	return cmd
}

// learnSetup wires the store and learner shared by all learn subcommands.
// The returned cleanup closes the store and the oplog.
func learnSetup(cmd *cobra.Command) (*learning.Store, oplog.Log, *slog.Logger, func(), error) {
	log := logging.New()
	cfg := config.Resolve()

	emb, err := buildEmbedder(cfg, log)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if emb == nil {
		return nil, nil, nil, nil, fmt.Errorf("learning requires an embedding provider (EMBEDDING_PROVIDER=none)")
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	ctx := commandContext(cmd.Context(), log)
	cmd.SetContext(ctx)

	learner, err := buildLearner(ctx, store, emb, cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, nil, err
	}

	opLog, closeOpLog := openOpLog(cfg, log)
	cleanup := func() {
		closeOpLog()
		_ = store.Close()
	}
	return learner, opLog, log, cleanup, nil
}

func newLearnStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print conversation learning statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			learner, _, _, cleanup, err := learnSetup(cmd)
			if err != nil {
				return fmt.Errorf("learn stats: %w", err)
			}
			defer cleanup()

			stats, err := learner.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("learn stats: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func newLearnSimilarCmd() *cobra.Command {
	var topK int
	var minScore float32

	cmd := &cobra.Command{
		Use:   "similar <question>",
		Short: "Search past conversations for similar questions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			learner, _, _, cleanup, err := learnSetup(cmd)
			if err != nil {
				return fmt.Errorf("learn similar: %w", err)
			}
			defer cleanup()

			question := strings.Join(args, " ")
			results, err := learner.SearchSimilarConversations(cmd.Context(), question, topK, minScore)
			if err != nil {
				return fmt.Errorf("learn similar: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No similar conversations.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s (feedback: %s)\n", i+1, r.Score, r.ID, r.Feedback)
				fmt.Printf("   Q: %s\n   A: %s\n", r.Question, r.Answer)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of conversations to return (0 = default)")
	cmd.Flags().Float32Var(&minScore, "min-score", 0, "Similarity floor (0 = configured default)")
	return cmd
}

func newLearnFeedbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feedback <conversation-id> <positive|negative|neutral>",
		Short: "Record feedback on a past conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, value := args[0], args[1]
			if !learning.ValidFeedback(value) {
				return fmt.Errorf("learn feedback: %q is not one of positive, negative, neutral", value)
			}

			learner, opLog, log, cleanup, err := learnSetup(cmd)
			if err != nil {
				return fmt.Errorf("learn feedback: %w", err)
			}
			defer cleanup()

			if err := learner.UpdateFeedback(cmd.Context(), id, value); err != nil {
				return fmt.Errorf("learn feedback: %w", err)
			}
			if err := opLog.Append(cmd.Context(), oplog.OpFeedback, id, value); err != nil {
				log.Warn("oplog append failed", slog.Any("error", err))
			}
			fmt.Printf("Feedback %q recorded for %s\n", value, id)
			return nil
		},
	}
}

func newLearnPromoteCmd() *cobra.Command {
	var docType string
	var product string

	cmd := &cobra.Command{
		Use:   "promote <conversation-id>",
		Short: "Promote a conversation into the knowledge base",
		Long: `Turn a past conversation into a knowledge-base entry so future questions
retrieve its answer directly. The stored question vector is reused, so
promotion makes no embedding calls.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			learner, opLog, log, cleanup, err := learnSetup(cmd)
			if err != nil {
				return fmt.Errorf("learn promote: %w", err)
			}
			defer cleanup()

			kbID, err := learner.PromoteToKnowledgeBase(cmd.Context(), id, docType, product)
			if err != nil {
				return fmt.Errorf("learn promote: %w", err)
			}
			if err := opLog.Append(cmd.Context(), oplog.OpPromote, id, kbID); err != nil {
				log.Warn("oplog append failed", slog.Any("error", err))
			}
			fmt.Printf("Promoted %s to knowledge base as %s\n", id, kbID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&docType, "doc-type", "d", "", "Document type for the promoted entry (default: learned_faq)")
	cmd.Flags().StringVarP(&product, "product", "P", "", "Product line for the promoted entry (default: general)")
	return cmd
}
