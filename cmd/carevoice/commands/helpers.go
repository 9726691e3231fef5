package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kaziNymul/carevoice-go/internal/config"
	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/embedder"
	"github.com/kaziNymul/carevoice-go/internal/learning"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// buildEmbedder constructs the embedding provider from the resolved config.
// Provider "none" returns a nil embedder, which switches retrieval to keyword
// mode and disables conversation learning.
func buildEmbedder(cfg *config.Config, log *slog.Logger) (rag.Embedder, error) {
	if cfg.Embedding.Provider == "none" {
		return nil, nil
	}
	if err := embedder.Validate(&cfg.Embedding, log); err != nil {
		return nil, err
	}
	return embedder.New(&cfg.Embedding)
}

// buildStore opens the document store selected by the resolved config.
func buildStore(cfg *config.Config) (docstore.Store, error) {
	return docstore.Open(cfg.Docstore.Backend, &docstore.QdrantConfig{
		Host:   cfg.Docstore.Host,
		Port:   cfg.Docstore.Port,
		APIKey: cfg.Docstore.APIKey,
		UseTLS: cfg.Docstore.TLS,
	})
}

// ensureKnowledgeIndex makes sure the knowledge-base index exists, sized
// from the embedder. EnsureIndex reports existence, not creation, so the
// result is only checked for errors. A nil embedder skips the call entirely:
// keyword mode queries whatever indexes already exist.
func ensureKnowledgeIndex(ctx context.Context, store docstore.Store, emb rag.Embedder, cfg *config.Config, log *slog.Logger) error {
	if emb == nil {
		return nil
	}
	if _, err := store.EnsureIndex(ctx, docstore.IndexSpec{
		Name:      cfg.Docstore.KnowledgeIndex,
		Dimension: emb.Dimensions(),
	}); err != nil {
		return fmt.Errorf("ensure index %s: %w", cfg.Docstore.KnowledgeIndex, err)
	}
	log.Debug("knowledge index ready",
		slog.String("index", cfg.Docstore.KnowledgeIndex),
		slog.Int("dimensions", emb.Dimensions()),
	)
	return nil
}

// buildLearner constructs the conversation learning store and ensures its
// index exists. Returns nil without error when no embedder is available.
func buildLearner(ctx context.Context, store docstore.Store, emb rag.Embedder, cfg *config.Config) (*learning.Store, error) {
	if emb == nil {
		return nil, nil
	}
	learner, err := learning.New(store, emb, &learning.Config{
		Index:           cfg.Docstore.LearningIndex,
		KnowledgeIndex:  cfg.Docstore.KnowledgeIndex,
		Enabled:         cfg.LearningEnabled(),
		SimilarMinScore: cfg.Learning.SimilarMinScore,
		ReuseThreshold:  cfg.Learning.ReuseThreshold,
	})
	if err != nil {
		return nil, err
	}
	if _, err := learner.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure index %s: %w", cfg.Docstore.LearningIndex, err)
	}
	return learner, nil
}

// buildRetriever constructs the retriever with the strategy matching the
// available embedder.
func buildRetriever(store docstore.Store, emb rag.Embedder, cfg *config.Config) (*rag.Retriever, error) {
	return rag.NewRetriever(
		store,
		rag.ChooseStrategy(emb),
		cfg.Docstore.KnowledgeIndex,
		cfg.Retrieval.MaxContextChunks,
		cfg.Retrieval.MinScore,
	)
}

// openOpLog opens the administrative operations log. CAREVOICE_OPLOG_DB
// overrides the default path (~/.carevoice/oplog.db); "disabled" turns it
// off. Failures degrade to a no-op log rather than failing the command.
func openOpLog(cfg *config.Config, log *slog.Logger) (oplog.Log, func()) {
	path := cfg.Oplog.DBPath
	if path == "disabled" {
		log.Info("oplog disabled via CAREVOICE_OPLOG_DB=disabled")
		return oplog.Nop{}, func() {}
	}
	if path == "" {
		var err error
		path, err = oplog.DefaultDBPath()
		if err != nil {
			log.Warn("oplog: could not resolve default DB path, disabling", slog.Any("error", err))
			return oplog.Nop{}, func() {}
		}
	}
	l, err := oplog.Open(path)
	if err != nil {
		log.Warn("oplog: failed to open, disabling", slog.String("path", path), slog.Any("error", err))
		return oplog.Nop{}, func() {}
	}
	log.Debug("oplog opened", slog.String("path", path))
	return l, func() { _ = l.Close() }
}

// commandContext returns the command context with a configured logger attached.
func commandContext(ctx context.Context, log *slog.Logger) context.Context {
	return logging.WithLogger(ctx, log)
}
