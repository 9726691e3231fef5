package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/server"
)

// NewServeCmd constructs the `carevoice serve` command, which starts the HTTP
// server exposing the retrieval and learning API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the carevoice HTTP server",
		Long: `Start the carevoice HTTP server.

The server exposes the retrieval endpoint used by assistant frontends, the
conversation learning API (record, search, feedback, promote), and the usual
operational routes: /api/health, /api/ready, /api/status, /metrics.

Set CAREVOICE_API_KEY to require Bearer authentication on the API.

Examples:
  carevoice serve
  carevoice serve --port 9090
  EMBEDDING_PROVIDER=openai carevoice serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = commandContext(ctx, log)
			cfg := config.Resolve()

			emb, err := buildEmbedder(cfg, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if emb == nil {
				log.Warn("no embedding provider configured, running in keyword search mode")
			}

			store, err := buildStore(cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = store.Close() }()
			log.Info("document store ready",
				slog.String("backend", cfg.Docstore.Backend),
				slog.String("knowledge_index", cfg.Docstore.KnowledgeIndex),
			)

			opLog, closeOpLog := openOpLog(cfg, log)
			defer closeOpLog()

			if err := ensureKnowledgeIndex(ctx, store, emb, cfg, log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			learner, err := buildLearner(ctx, store, emb, cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			retriever, err := buildRetriever(store, emb, cfg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				&server.StorePinger{Backend: cfg.Docstore.Backend, Store: store},
			}
			if emb != nil {
				pingers = append(pingers, &server.EmbedderPinger{
					Provider: cfg.Embedding.Provider,
					Embedder: emb,
				})
			}

			if !cmd.Flags().Changed("host") {
				host = cfg.Server.Host
			}
			if !cmd.Flags().Changed("port") {
				port = cfg.Server.Port
			}

			srv, err := server.New(&server.Deps{
				Retriever:      retriever,
				Learner:        learner,
				Store:          store,
				KnowledgeIndex: cfg.Docstore.KnowledgeIndex,
				LearningIndex:  cfg.Docstore.LearningIndex,
				OpLog:          opLog,
			}, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  cfg.Server.APIKey,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
