package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
)

// fakeEmbedder returns canned vectors per exact input text.
type fakeEmbedder struct {
	vecs map[string][]float32
	dim  int
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := f.vecs[t]
		if !ok {
			vec = make([]float32, f.dim)
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

func seedKnowledgeBase(t *testing.T) docstore.Store {
	t.Helper()
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.EnsureIndex(ctx, docstore.IndexSpec{Name: "kb", Dimension: 2}); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	docs := []docstore.Document{
		{
			ID:      "faq-1",
			Payload: map[string]any{"text": "Reset your password from the account page.", "metadata": map[string]any{"source": "faq.md"}},
			Vectors: map[string][]float32{docstore.DefaultVectorField: {1, 0}},
		},
		{
			ID:      "faq-2",
			Payload: map[string]any{"text": "Orders ship within two business days.", "metadata": map[string]any{"source": "shipping.md"}},
			Vectors: map[string][]float32{docstore.DefaultVectorField: {0.8, 0.6}},
		},
		{
			ID:      "faq-3",
			Payload: map[string]any{"text": "Contact billing for invoice questions.", "metadata": map[string]any{"source": "billing.md"}},
			Vectors: map[string][]float32{docstore.DefaultVectorField: {0, 1}},
		},
	}
	for _, d := range docs {
		if _, err := store.IndexDocument(ctx, "kb", d); err != nil {
			t.Fatalf("IndexDocument(%q) error = %v", d.ID, err)
		}
	}
	return store
}

func TestChooseStrategy(t *testing.T) {
	t.Parallel()
	if got := ChooseStrategy(nil).Mode(); got != "keyword" {
		t.Errorf("ChooseStrategy(nil).Mode() = %q, want keyword", got)
	}
	if got := ChooseStrategy(&fakeEmbedder{dim: 2}).Mode(); got != "vector" {
		t.Errorf("ChooseStrategy(embedder).Mode() = %q, want vector", got)
	}
}

func TestRetriever_Search_OrderedAndFiltered(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"password help": {1, 0}}}
	r, err := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.7)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}

	docs, err := r.Search(context.Background(), "password help", 0, -1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Search() docs = %d, want 2 (billing doc below floor)", len(docs))
	}
	if docs[0].ID != "faq-1" || docs[1].ID != "faq-2" {
		t.Errorf("doc order = [%s %s], want [faq-1 faq-2]", docs[0].ID, docs[1].ID)
	}
	if docs[0].Score <= docs[1].Score {
		t.Errorf("scores not descending: %v then %v", docs[0].Score, docs[1].Score)
	}
}

func TestRetriever_Search_EmbedderFailure(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	emb := &fakeEmbedder{dim: 2, err: errors.New("provider down")}
	r, _ := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.7)

	_, err := r.Search(context.Background(), "anything", 3, -1)
	var re *RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v (%T), want *RetrievalError", err, err)
	}
}

func TestRetrieveContext_MinScoreOverride(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"password help": {1, 0}}}
	r, err := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.7)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	ctx := context.Background()

	// Default floor 0.7 keeps the 0.8-scored shipping doc.
	rctx, err := r.RetrieveContext(ctx, "password help", 5, 0)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if len(rctx.Documents) != 2 {
		t.Fatalf("default floor: %d documents, want 2", len(rctx.Documents))
	}

	// A caller-supplied floor above it leaves only the exact match.
	rctx, err = r.RetrieveContext(ctx, "password help", 5, 0.9)
	if err != nil {
		t.Fatalf("RetrieveContext(minScore=0.9) error = %v", err)
	}
	if len(rctx.Documents) != 1 || rctx.Documents[0].ID != "faq-1" {
		t.Fatalf("minScore=0.9: documents = %v, want only faq-1", rctx.Documents)
	}
}

func TestRetrieveContext_Format(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"password help": {1, 0}}}
	r, _ := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.7)

	rctx, err := r.RetrieveContext(context.Background(), "password help", 5, 0)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if len(rctx.Documents) != 2 {
		t.Fatalf("Documents = %d, want 2", len(rctx.Documents))
	}
	want := "[1] Reset your password from the account page. (Source: faq.md)\n\n" +
		"[2] Orders ship within two business days. (Source: shipping.md)"
	if rctx.FormattedContext != want {
		t.Errorf("FormattedContext =\n%q\nwant\n%q", rctx.FormattedContext, want)
	}
}

func TestRetrieveContext_NoResults(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	// Query vector orthogonal to everything above the 0.99 floor.
	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"unrelated": {-1, 0}}}
	r, _ := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.99)

	rctx, err := r.RetrieveContext(context.Background(), "unrelated", 5, 0)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v, want nil on empty result", err)
	}
	if len(rctx.Documents) != 0 {
		t.Errorf("Documents = %d, want 0", len(rctx.Documents))
	}
	if rctx.FormattedContext != NoContextMessage {
		t.Errorf("FormattedContext = %q, want %q", rctx.FormattedContext, NoContextMessage)
	}
}

func TestRetrieveContext_MissingSource(t *testing.T) {
	t.Parallel()
	store := docstore.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.EnsureIndex(ctx, docstore.IndexSpec{Name: "kb", Dimension: 2}); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if _, err := store.IndexDocument(ctx, "kb", docstore.Document{
		ID:      "bare",
		Payload: map[string]any{"text": "A passage with no metadata."},
		Vectors: map[string][]float32{docstore.DefaultVectorField: {1, 0}},
	}); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float32{"q": {1, 0}}}
	r, _ := NewRetriever(store, ChooseStrategy(emb), "kb", 5, 0.7)

	rctx, err := r.RetrieveContext(ctx, "q", 5, 0)
	if err != nil {
		t.Fatalf("RetrieveContext() error = %v", err)
	}
	if !strings.Contains(rctx.FormattedContext, "(Source: unknown)") {
		t.Errorf("FormattedContext = %q, want source fallback to unknown", rctx.FormattedContext)
	}
}

func TestRetriever_KeywordMode(t *testing.T) {
	t.Parallel()
	store := seedKnowledgeBase(t)
	r, err := NewRetriever(store, ChooseStrategy(nil), "kb", 5, 0.7)
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}

	docs, err := r.Search(context.Background(), "reset password", 5, -1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(docs) == 0 || docs[0].ID != "faq-1" {
		t.Fatalf("keyword Search() top hit = %+v, want faq-1", docs)
	}
}
