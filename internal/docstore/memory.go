package docstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for development and tests. It mirrors
// the Qdrant backend's observable behaviour (idempotent index creation,
// dimension validation, score ordering, best-effort bulk writes) without any
// external process.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[string]*memIndex
}

type memIndex struct {
	spec IndexSpec
	docs map[string]Document
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indexes: make(map[string]*memIndex)}
}

func (s *MemoryStore) index(name string) (*memIndex, error) {
	idx, ok := s.indexes[name]
	if !ok {
		return nil, &SearchError{Index: name, Err: fmt.Errorf("index does not exist")}
	}
	return idx, nil
}

func (s *MemoryStore) EnsureIndex(_ context.Context, spec IndexSpec) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.indexes[spec.Name]; ok {
		if existing.spec.Dimension != spec.Dimension {
			return false, &IndexError{
				Index: spec.Name,
				Err:   fmt.Errorf("existing index has dimension %d, embedding provider produces %d", existing.spec.Dimension, spec.Dimension),
			}
		}
		return true, nil
	}
	s.indexes[spec.Name] = &memIndex{spec: spec, docs: make(map[string]Document)}
	return true, nil
}

func (s *MemoryStore) IndexDocument(_ context.Context, index string, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.index(index)
	if err != nil {
		return "", &WriteError{Index: index, Err: err}
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	idx.docs[doc.ID] = cloneDocument(doc)
	return doc.ID, nil
}

func (s *MemoryStore) BulkIndex(_ context.Context, index string, docs []Document) (BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.index(index)
	if err != nil {
		return BulkResult{Failed: len(docs)}, nil
	}

	var res BulkResult
	for _, doc := range docs {
		if err := validateForBulk(doc, idx.spec.Dimension); err != nil {
			res.Failed++
			continue
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		idx.docs[doc.ID] = cloneDocument(doc)
		res.Indexed++
	}
	return res, nil
}

func (s *MemoryStore) VectorSearch(_ context.Context, index, field string, vector []float32, topK int, minScore float32) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(idx.docs))
	for id, doc := range idx.docs {
		stored, ok := doc.Vectors[field]
		if !ok {
			continue
		}
		score := CosineSimilarity(vector, stored)
		if minScore > 0 && score < minScore {
			continue
		}
		// Hits carry a payload copy so a later SetFields on the stored
		// document cannot race with a caller still holding the hit.
		payload := clonePayload(doc.Payload)
		hits = append(hits, Hit{
			ID:       id,
			Score:    score,
			Text:     hitText(payload),
			Metadata: hitMetadata(payload),
			Payload:  payload,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryStore) KeywordSearch(_ context.Context, index, query string, topK int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(idx.docs))
	payloads := make([]map[string]any, 0, len(idx.docs))
	for id, doc := range idx.docs {
		ids = append(ids, id)
		payloads = append(payloads, clonePayload(doc.Payload))
	}
	return rankByKeyword(ids, payloads, query, topK), nil
}

func (s *MemoryStore) GetDocument(_ context.Context, index, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}
	doc, ok := idx.docs[id]
	if !ok {
		return nil, fmt.Errorf("docstore: index %q id %q: %w", index, id, ErrNotFound)
	}
	out := cloneDocument(doc)
	return &out, nil
}

func (s *MemoryStore) SetFields(_ context.Context, index, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.index(index)
	if err != nil {
		return &WriteError{Index: index, Err: err}
	}
	doc, ok := idx.docs[id]
	if !ok {
		return fmt.Errorf("docstore: index %q id %q: %w", index, id, ErrNotFound)
	}
	for k, v := range fields {
		doc.Payload[k] = v
	}
	idx.docs[id] = doc
	return nil
}

func (s *MemoryStore) Count(_ context.Context, index string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.index(index)
	if err != nil {
		return 0, err
	}
	return len(idx.docs), nil
}

func (s *MemoryStore) DeleteIndex(_ context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.indexes, index)
	return nil
}

func (s *MemoryStore) Facet(_ context.Context, index, field string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, err := s.index(index)
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, doc := range idx.docs {
		v, ok := lookupField(doc.Payload, field)
		if !ok {
			continue
		}
		if str, ok := v.(string); ok {
			out[str]++
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// cloneDocument copies a document deeply enough that callers mutating their
// copy cannot corrupt the stored one.
func cloneDocument(doc Document) Document {
	out := Document{ID: doc.ID, Payload: clonePayload(doc.Payload), Vectors: make(map[string][]float32, len(doc.Vectors))}
	for k, v := range doc.Vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		out.Vectors[k] = vec
	}
	return out
}

// clonePayload copies a payload map one nested level deep, which covers the
// metadata sub-map. Reads hand out clones so in-place SetFields updates
// never alias data a caller still holds.
func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for mk, mv := range m {
				inner[mk] = mv
			}
			out[k] = inner
			continue
		}
		out[k] = v
	}
	return out
}

// CosineSimilarity computes the cosine similarity of two vectors. Mismatched
// lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
