package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestIndex(t *testing.T, s *MemoryStore, name string, dim int, fields ...string) {
	t.Helper()
	created, err := s.EnsureIndex(context.Background(), IndexSpec{Name: name, Dimension: dim, VectorFields: fields})
	if err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	if !created {
		t.Fatalf("EnsureIndex() created = false, want true")
	}
}

func kbDoc(id, text string, vec []float32, meta map[string]any) Document {
	payload := map[string]any{"text": text}
	if meta != nil {
		payload["metadata"] = meta
	}
	return Document{ID: id, Payload: payload, Vectors: map[string][]float32{DefaultVectorField: vec}}
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	exists, err := s.EnsureIndex(ctx, IndexSpec{Name: "kb", Dimension: 4})
	if err != nil || !exists {
		t.Fatalf("first EnsureIndex() = (%v, %v), want (true, nil)", exists, err)
	}
	exists, err = s.EnsureIndex(ctx, IndexSpec{Name: "kb", Dimension: 4})
	if err != nil {
		t.Fatalf("second EnsureIndex() error = %v", err)
	}
	if !exists {
		t.Errorf("second EnsureIndex() = false, want true for a pre-existing index")
	}
}

func TestEnsureIndex_DimensionMismatch(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.EnsureIndex(ctx, IndexSpec{Name: "kb", Dimension: 4}); err != nil {
		t.Fatalf("EnsureIndex() error = %v", err)
	}
	_, err := s.EnsureIndex(ctx, IndexSpec{Name: "kb", Dimension: 8})
	if err == nil {
		t.Fatal("EnsureIndex() with mismatched dimension: want error, got nil")
	}
	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Errorf("error type = %T, want *IndexError", err)
	}
}

func TestVectorSearch_OrderAndFloor(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	docs := []Document{
		kbDoc("a", "exact match", []float32{1, 0}, nil),
		kbDoc("b", "close match", []float32{0.9, 0.1}, nil),
		kbDoc("c", "orthogonal", []float32{0, 1}, nil),
	}
	for _, d := range docs {
		if _, err := s.IndexDocument(ctx, "kb", d); err != nil {
			t.Fatalf("IndexDocument(%q) error = %v", d.ID, err)
		}
	}

	hits, err := s.VectorSearch(ctx, "kb", DefaultVectorField, []float32{1, 0}, 10, 0.7)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("VectorSearch() hits = %d, want 2 (orthogonal doc filtered)", len(hits))
	}
	if hits[0].ID != "a" || hits[1].ID != "b" {
		t.Errorf("hit order = [%s %s], want [a b]", hits[0].ID, hits[1].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("scores not descending: %v then %v", hits[0].Score, hits[1].Score)
	}
}

func TestVectorSearch_TopKLimit(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	for _, id := range []string{"a", "b", "c", "d"} {
		if _, err := s.IndexDocument(ctx, "kb", kbDoc(id, "doc "+id, []float32{1, 0}, nil)); err != nil {
			t.Fatalf("IndexDocument(%q) error = %v", id, err)
		}
	}

	hits, err := s.VectorSearch(ctx, "kb", DefaultVectorField, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("VectorSearch() hits = %d, want topK = 2", len(hits))
	}
}

func TestVectorSearch_UnknownIndex(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()

	_, err := s.VectorSearch(context.Background(), "missing", DefaultVectorField, []float32{1}, 5, 0)
	var se *SearchError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v (%T), want *SearchError", err, err)
	}
}

func TestBulkIndex_BestEffort(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	var docs []Document
	for i := range 8 {
		docs = append(docs, kbDoc(fmt.Sprintf("ok-%d", i), fmt.Sprintf("good doc %d", i), []float32{1, 0}, nil))
	}
	docs = append(docs,
		Document{ID: "no-text", Payload: map[string]any{}, Vectors: map[string][]float32{DefaultVectorField: {1, 0}}},
		kbDoc("bad-dim", "wrong dims", []float32{1, 0, 0}, nil),
	)

	res, err := s.BulkIndex(ctx, "kb", docs)
	if err != nil {
		t.Fatalf("BulkIndex() error = %v", err)
	}
	if res.Indexed != 8 || res.Failed != 2 {
		t.Errorf("BulkIndex() = %+v, want Indexed=8 Failed=2", res)
	}
	for i := range 8 {
		id := fmt.Sprintf("ok-%d", i)
		if _, err := s.GetDocument(ctx, "kb", id); err != nil {
			t.Errorf("GetDocument(%q) error = %v", id, err)
		}
	}
	count, err := s.Count(ctx, "kb")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 8 {
		t.Errorf("Count() = %d, want 8", count)
	}
}

func TestIndexDocument_GeneratesID(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	id, err := s.IndexDocument(ctx, "kb", kbDoc("", "anonymous doc", []float32{1, 0}, nil))
	if err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if id == "" {
		t.Fatal("IndexDocument() returned empty id")
	}
	if _, err := s.GetDocument(ctx, "kb", id); err != nil {
		t.Errorf("GetDocument(%q) error = %v", id, err)
	}
}

func TestIndexDocument_OverwritesSameID(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	if _, err := s.IndexDocument(ctx, "kb", kbDoc("x", "first", []float32{1, 0}, nil)); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if _, err := s.IndexDocument(ctx, "kb", kbDoc("x", "second", []float32{0, 1}, nil)); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	count, _ := s.Count(ctx, "kb")
	if count != 1 {
		t.Fatalf("Count() = %d, want 1 after overwrite", count)
	}
	doc, err := s.GetDocument(ctx, "kb", "x")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Payload["text"] != "second" {
		t.Errorf("text = %q, want %q", doc.Payload["text"], "second")
	}
}

func TestSetFields_UnknownID(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	err := s.SetFields(ctx, "kb", "ghost", map[string]any{"feedback": "positive"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetFields() error = %v, want ErrNotFound", err)
	}
}

func TestSetFields_MergesPayload(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	if _, err := s.IndexDocument(ctx, "kb", kbDoc("x", "keep me", []float32{1, 0}, nil)); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	if err := s.SetFields(ctx, "kb", "x", map[string]any{"feedback": "positive"}); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}

	doc, err := s.GetDocument(ctx, "kb", "x")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Payload["text"] != "keep me" {
		t.Errorf("text = %q, want original preserved", doc.Payload["text"])
	}
	if doc.Payload["feedback"] != "positive" {
		t.Errorf("feedback = %q, want %q", doc.Payload["feedback"], "positive")
	}
}

func TestVectorSearch_HitsDetachedFromStore(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	if _, err := s.IndexDocument(ctx, "kb", kbDoc("x", "stable text", []float32{1, 0}, nil)); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}
	hits, err := s.VectorSearch(ctx, "kb", DefaultVectorField, []float32{1, 0}, 1, 0)
	if err != nil || len(hits) != 1 {
		t.Fatalf("VectorSearch() = (%v, %v), want one hit", hits, err)
	}

	if err := s.SetFields(ctx, "kb", "x", map[string]any{"feedback": "positive"}); err != nil {
		t.Fatalf("SetFields() error = %v", err)
	}
	if _, ok := hits[0].Payload["feedback"]; ok {
		t.Error("hit payload picked up a SetFields update, want a detached copy")
	}

	doc, err := s.GetDocument(ctx, "kb", "x")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if doc.Payload["feedback"] != "positive" {
		t.Errorf("stored feedback = %q, want %q", doc.Payload["feedback"], "positive")
	}
}

func TestDeleteIndex_AbsentIsNoError(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	if err := s.DeleteIndex(context.Background(), "never-existed"); err != nil {
		t.Fatalf("DeleteIndex() error = %v, want nil", err)
	}
}

func TestFacet_NestedField(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()
	newTestIndex(t, s, "kb", 2)

	for i, ch := range []string{"voice", "voice", "chat"} {
		doc := kbDoc("", "doc", []float32{1, 0}, map[string]any{"channel": ch})
		doc.ID = string(rune('a' + i))
		if _, err := s.IndexDocument(ctx, "kb", doc); err != nil {
			t.Fatalf("IndexDocument() error = %v", err)
		}
	}

	counts, err := s.Facet(ctx, "kb", "metadata.channel")
	if err != nil {
		t.Fatalf("Facet() error = %v", err)
	}
	if counts["voice"] != 2 || counts["chat"] != 1 {
		t.Errorf("Facet() = %v, want voice=2 chat=1", counts)
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	if _, err := Open("redis", nil); err == nil {
		t.Fatal("Open(redis) error = nil, want error")
	}
}

func TestOpen_Memory(t *testing.T) {
	t.Parallel()
	s, err := Open(BackendMemory, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("Open(memory) type = %T, want *MemoryStore", s)
	}
}
