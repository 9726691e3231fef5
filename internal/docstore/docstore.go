// Package docstore provides the search-index abstraction behind the
// retrieval engine: index lifecycle, document writes, vector and keyword
// search primitives, and the aggregations needed by learning statistics.
// Two backends satisfy the Store interface: a Qdrant-backed store for
// production and an in-memory store for development and tests. The backend
// is selected once at startup and never mixed.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultVectorField is the vector field name used by indexes that carry a
// single embedding per document (the knowledge-base index).
const DefaultVectorField = "embedding"

// candidateMultiplier is the factor applied to topK when asking the backend
// for approximate-nearest-neighbour candidates. Searching more candidates
// than results keeps recall stable under approximate indexing.
const candidateMultiplier = 10

// IndexSpec describes an index to be created by EnsureIndex.
type IndexSpec struct {
	// Name is the index (collection) name.
	Name string

	// Dimension is the embedding vector length for every vector field.
	// All documents written to the index must carry vectors of this
	// exact length; mixing embedding models within one index is invalid.
	Dimension int

	// VectorFields lists the dense-vector field names. Empty means the
	// single DefaultVectorField.
	VectorFields []string

	// FacetFields lists payload fields that Facet will aggregate on.
	// Backends that need a payload index for faceting (Qdrant) create a
	// keyword index per field at creation time; the memory backend
	// facets any field and ignores this. Dotted paths address nested
	// fields.
	FacetFields []string
}

// vectorFields returns the spec's vector field names, defaulted.
func (s IndexSpec) vectorFields() []string {
	if len(s.VectorFields) == 0 {
		return []string{DefaultVectorField}
	}
	return s.VectorFields
}

// Document is a unit of stored content: an id, a free-form payload, and one
// vector per vector field of the target index.
type Document struct {
	// ID is the external document id, unique per index. When empty,
	// IndexDocument generates one. Writes with an existing id overwrite
	// the stored document.
	ID string

	// Payload holds the document fields (text, question, answer,
	// metadata, ...). Nested maps are preserved.
	Payload map[string]any

	// Vectors maps vector field name to embedding.
	Vectors map[string][]float32
}

// Hit is a single search result. Both search modes produce the same shape so
// retrieval callers never need to know which mode ran.
type Hit struct {
	// ID is the external document id.
	ID string

	// Score is the similarity (vector mode) or relevance (keyword mode)
	// score. Hits are always returned in descending score order.
	Score float32

	// Text is the primary content of the hit.
	Text string

	// Metadata holds the document's metadata sub-object as strings.
	Metadata map[string]string

	// Payload is the full stored payload, for callers that need fields
	// beyond Text (the learning store reads question/answer from it).
	Payload map[string]any
}

// BulkResult reports the exact per-document outcome of a bulk write.
// Indexed + Failed always equals the number of documents attempted.
type BulkResult struct {
	// Indexed is the number of documents written successfully.
	Indexed int
	// Failed is the number of documents rejected or failed.
	Failed int
}

// Store is the document store contract. Implementations must be safe to
// call from multiple goroutines.
type Store interface {
	// EnsureIndex creates the index if absent. It is idempotent: the
	// returned bool reports whether the index exists after the call, so
	// it is true for a fresh creation and for a pre-existing index alike.
	// A dimension mismatch between spec and the live index fails fast
	// with an *IndexError rather than surfacing later as a cryptic write
	// rejection. Concurrent first-time creation races are treated as
	// success.
	EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error)

	// IndexDocument upserts a single document and returns its id,
	// generating one when doc.ID is empty.
	IndexDocument(ctx context.Context, index string, doc Document) (string, error)

	// BulkIndex writes documents best-effort: a malformed or failed
	// document does not abort the batch. The returned counts are exact.
	BulkIndex(ctx context.Context, index string, docs []Document) (BulkResult, error)

	// VectorSearch returns up to topK hits for the query vector against
	// the named vector field, ordered by descending similarity. The
	// backend is asked for at least candidateMultiplier*topK internal
	// candidates. Hits scoring below minScore are excluded; pass 0 to
	// disable the floor.
	VectorSearch(ctx context.Context, index, field string, vector []float32, topK int, minScore float32) ([]Hit, error)

	// KeywordSearch performs a weighted fuzzy full-text match across the
	// designated text fields. Used only when vector search is
	// structurally unavailable.
	KeywordSearch(ctx context.Context, index, query string, topK int) ([]Hit, error)

	// GetDocument fetches a document with its vectors by external id.
	// Returns an error wrapping ErrNotFound when the id is unknown.
	GetDocument(ctx context.Context, index, id string) (*Document, error)

	// SetFields partially updates the payload of an existing document.
	// Returns an error wrapping ErrNotFound for an unknown id; it never
	// creates the document.
	SetFields(ctx context.Context, index, id string, fields map[string]any) error

	// Count returns the number of documents in the index.
	Count(ctx context.Context, index string) (int, error)

	// DeleteIndex removes the index. Deleting an absent index is not an
	// error.
	DeleteIndex(ctx context.Context, index string) error

	// Facet returns the document count per distinct value of the given
	// payload field. Dotted paths address nested fields
	// (e.g. "metadata.channel").
	Facet(ctx context.Context, index, field string) (map[string]int, error)

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound reports that a document id does not exist in the index.
var ErrNotFound = errors.New("docstore: document not found")

// IndexError reports an index schema creation, validation, or deletion failure.
type IndexError struct {
	// Index is the index name the operation targeted.
	Index string
	// Err is the underlying cause.
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("docstore: index %q: %v", e.Index, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// SearchError reports a malformed query or an unreachable backend during search.
type SearchError struct {
	// Index is the index name the search targeted.
	Index string
	// Err is the underlying cause.
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("docstore: search %q: %v", e.Index, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// WriteError reports a document write or bulk-write failure.
type WriteError struct {
	// Index is the index name the write targeted.
	Index string
	// Err is the underlying cause.
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("docstore: write %q: %v", e.Index, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// hitText extracts the primary content for a hit: the text field when
// present, otherwise the answer field (conversation documents carry no text).
func hitText(payload map[string]any) string {
	if t, ok := payload["text"].(string); ok && t != "" {
		return t
	}
	if a, ok := payload["answer"].(string); ok {
		return a
	}
	return ""
}

// hitMetadata extracts the metadata sub-object of a payload as strings.
func hitMetadata(payload map[string]any) map[string]string {
	out := map[string]string{}
	meta, ok := payload["metadata"].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range meta {
		if v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			out[k] = t
		default:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}

// lookupField resolves a possibly dotted field path within a payload.
func lookupField(payload map[string]any, field string) (any, bool) {
	cur := any(payload)
	for {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		dot := strings.IndexByte(field, '.')
		if dot < 0 {
			v, ok := m[field]
			return v, ok
		}
		cur, ok = m[field[:dot]]
		if !ok {
			return nil, false
		}
		field = field[dot+1:]
	}
}

// validateForBulk reports why a knowledge-base document is malformed, or
// nil when it is writable. dimension 0 disables the vector length check.
func validateForBulk(doc Document, dimension int) error {
	if t, ok := doc.Payload["text"].(string); !ok || t == "" {
		return errors.New("missing text field")
	}
	if dimension > 0 {
		for field, vec := range doc.Vectors {
			if len(vec) != dimension {
				return fmt.Errorf("vector %q has dimension %d, index expects %d", field, len(vec), dimension)
			}
		}
	}
	return nil
}
