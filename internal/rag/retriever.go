package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// NoContextMessage is the formatted context returned when no passage clears
// the similarity floor. Callers treat it as a complete, valid context string.
const NoContextMessage = "No relevant context available."

// SearchStrategy is the query execution mode, chosen once at startup based on
// whether an embedding provider is configured. There is no per-request
// fallback: a degraded provider surfaces as errors, not as silently worse
// keyword results.
type SearchStrategy interface {
	// Search executes the query against the store.
	Search(ctx context.Context, store docstore.Store, index, query string, topK int, minScore float32) ([]docstore.Hit, error)

	// Mode names the strategy for logs and metrics.
	Mode() string
}

// VectorStrategy embeds the query and runs similarity search.
type VectorStrategy struct {
	// Embedder converts query text to a dense vector.
	Embedder Embedder

	// Field is the vector field searched (default: docstore.DefaultVectorField).
	Field string
}

func (s *VectorStrategy) Mode() string { return "vector" }

func (s *VectorStrategy) Search(ctx context.Context, store docstore.Store, index, query string, topK int, minScore float32) ([]docstore.Hit, error) {
	embeddings, err := s.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned empty result for query")
	}
	field := s.Field
	if field == "" {
		field = docstore.DefaultVectorField
	}
	return store.VectorSearch(ctx, index, field, embeddings[0], topK, minScore)
}

// KeywordStrategy runs weighted full-text matching. It ignores the similarity
// floor, which only applies to vector scores.
type KeywordStrategy struct{}

func (s *KeywordStrategy) Mode() string { return "keyword" }

func (s *KeywordStrategy) Search(ctx context.Context, store docstore.Store, index, query string, topK int, _ float32) ([]docstore.Hit, error) {
	return store.KeywordSearch(ctx, index, query, topK)
}

// ChooseStrategy picks the search mode for the process lifetime: vector when
// an embedding provider is available, keyword otherwise.
func ChooseStrategy(emb Embedder) SearchStrategy {
	if emb == nil {
		return &KeywordStrategy{}
	}
	return &VectorStrategy{Embedder: emb}
}

// Retriever answers knowledge-base queries and assembles the formatted
// context block handed to the answer generator. Safe for concurrent use.
type Retriever struct {
	store    docstore.Store
	strategy SearchStrategy
	index    string

	// defaultTopK is the passage count used when the caller passes 0.
	defaultTopK int

	// defaultMinScore is the similarity floor used when the caller passes
	// a negative value.
	defaultMinScore float32
}

// NewRetriever constructs a Retriever over the given store and strategy.
// defaultTopK and defaultMinScore replace zero/negative per-call values.
func NewRetriever(store docstore.Store, strategy SearchStrategy, index string, defaultTopK int, defaultMinScore float32) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if strategy == nil {
		return nil, fmt.Errorf("rag: strategy must not be nil")
	}
	if index == "" {
		return nil, fmt.Errorf("rag: index must not be empty")
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if defaultMinScore <= 0 {
		defaultMinScore = 0.7
	}
	return &Retriever{
		store:           store,
		strategy:        strategy,
		index:           index,
		defaultTopK:     defaultTopK,
		defaultMinScore: defaultMinScore,
	}, nil
}

// Mode names the active search strategy.
func (r *Retriever) Mode() string { return r.strategy.Mode() }

// Search returns the top-k most relevant documents for the query, ordered by
// descending score. topK <= 0 uses the configured default; minScore < 0 uses
// the configured floor, 0 disables it.
func (r *Retriever) Search(ctx context.Context, query string, topK int, minScore float32) ([]Document, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}
	if minScore < 0 {
		minScore = r.defaultMinScore
	}

	hits, err := r.strategy.Search(ctx, r.store, r.index, query, topK, minScore)
	if err != nil {
		return nil, &RetrievalError{Op: "search", Err: err}
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, Document{
			ID:       h.ID,
			Text:     h.Text,
			Score:    h.Score,
			Metadata: h.Metadata,
		})
	}
	return docs, nil
}

// RetrieveContext searches the knowledge base and formats the results into a
// single context block for answer generation. maxChunks <= 0 and
// minScore <= 0 fall back to the configured defaults. An empty result set is
// not an error: the returned context carries NoContextMessage and no
// documents, so the caller can still generate an answer and say it found
// nothing.
func (r *Retriever) RetrieveContext(ctx context.Context, query string, maxChunks int, minScore float32) (*Context, error) {
	if maxChunks <= 0 {
		maxChunks = r.defaultTopK
	}
	if minScore <= 0 {
		minScore = r.defaultMinScore
	}

	docs, err := r.Search(ctx, query, maxChunks, minScore)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		logging.FromContext(ctx).Debug("no passages cleared the similarity floor",
			"index", r.index, "mode", r.Mode())
		return &Context{Documents: nil, FormattedContext: NoContextMessage}, nil
	}

	return &Context{
		Documents:        docs,
		FormattedContext: formatContext(docs),
	}, nil
}

// formatContext renders retrieved passages as a numbered block:
//
//	[1] <text> (Source: <source>)
//
// Passages are separated by blank lines and keep their relevance order so
// the generator sees the best evidence first.
func formatContext(docs []Document) string {
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		source := doc.Metadata["source"]
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "[%d] %s (Source: %s)", i+1, doc.Text, source)
	}
	return b.String()
}
