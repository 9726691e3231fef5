// Package rag defines the interfaces and types for the retrieval-augmented
// generation core: text embedding, context retrieval, and the search strategy
// chosen at startup. Concrete backends (the document store, the embedding
// providers) satisfy these interfaces so callers never depend on a specific
// implementation.
package rag

import (
	"context"
	"fmt"
)

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice: one vector per
	// input, in input order. A provider failure fails the whole batch;
	// partial results are never returned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the length of the vectors this embedder produces.
	Dimensions() int
}

// Document is a knowledge-base passage as seen by retrieval callers.
type Document struct {
	// ID is the unique identifier of the passage within its index.
	ID string `json:"id"`

	// Text is the passage content.
	Text string `json:"text"`

	// Score is the similarity or relevance score assigned during retrieval.
	Score float32 `json:"score"`

	// Metadata holds the passage metadata (source, doc_type, product,
	// language, created_at, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Context is the result of a retrieval: the ranked documents plus a single
// formatted text block ready to hand to a language model.
type Context struct {
	// Documents are the retrieved passages, ordered by descending score.
	Documents []Document

	// FormattedContext is the rendered context block. When Documents is
	// empty it carries the literal no-context message rather than "".
	FormattedContext string
}

// RetrievalError wraps any embedding or search failure encountered while
// retrieving context. Callers decide whether to proceed with zero context
// or abort; the engine does not retry.
type RetrievalError struct {
	// Op names the retrieval step that failed ("embed query", "vector search", ...).
	Op string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RetrievalError) Error() string {
	return fmt.Sprintf("rag: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *RetrievalError) Unwrap() error { return e.Err }
