package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kaziNymul/carevoice-go/internal/logging"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance. Indexes map to
// collections; the external string document id is written into the payload
// under docIDField because Qdrant point ids must be UUIDs.
type QdrantStore struct {
	client *qdrant.Client

	// mu guards dims, the per-collection vector dimension learned from
	// EnsureIndex and used to validate bulk writes.
	mu   sync.RWMutex
	dims map[string]int
}

// docIDField is the payload field carrying the external document id.
const docIDField = "doc_id"

// facetLimit caps distinct values returned by a facet aggregation.
const facetLimit = 1000

// NewQdrantStore connects to Qdrant and returns a ready Store. No collection
// is touched here; callers create what they need through EnsureIndex.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client, dims: make(map[string]int)}, nil
}

// EnsureIndex creates the collection with one named cosine vector per vector
// field and a full-text payload index on each searchable text field. An
// existing collection is validated against the spec's dimension and left
// untouched. A lost create race against a concurrent caller counts as success.
func (s *QdrantStore) EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, spec.Name)
	if err != nil {
		return false, &IndexError{Index: spec.Name, Err: fmt.Errorf("existence check failed: %w", err)}
	}
	if exists {
		if err := s.validateDimensions(ctx, spec); err != nil {
			return false, err
		}
		s.rememberDim(spec)
		return true, nil
	}

	params := make(map[string]*qdrant.VectorParams, len(spec.vectorFields()))
	for _, field := range spec.vectorFields() {
		params[field] = &qdrant.VectorParams{
			Size:     uint64(spec.Dimension),
			Distance: qdrant.Distance_Cosine,
		}
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: spec.Name,
		VectorsConfig:  qdrant.NewVectorsConfigMap(params),
	})
	if err != nil {
		// Another instance may have created it between the existence
		// check and now.
		if again, checkErr := s.client.CollectionExists(ctx, spec.Name); checkErr == nil && again {
			s.rememberDim(spec)
			return true, nil
		}
		return false, &IndexError{Index: spec.Name, Err: fmt.Errorf("create failed: %w", err)}
	}

	for _, kf := range keywordFields {
		if err := s.createTextIndex(ctx, spec.Name, kf.name); err != nil {
			return false, &IndexError{Index: spec.Name, Err: err}
		}
	}
	// Facet requires a keyword payload index on the aggregated field.
	for _, field := range spec.FacetFields {
		if err := s.createKeywordIndex(ctx, spec.Name, field); err != nil {
			return false, &IndexError{Index: spec.Name, Err: err}
		}
	}

	s.rememberDim(spec)
	return true, nil
}

func (s *QdrantStore) rememberDim(spec IndexSpec) {
	s.mu.Lock()
	s.dims[spec.Name] = spec.Dimension
	s.mu.Unlock()
}

func (s *QdrantStore) knownDim(index string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims[index]
}

// validateDimensions compares a live collection's vector sizes against the
// spec so a model/index mismatch fails at startup instead of on first write.
func (s *QdrantStore) validateDimensions(ctx context.Context, spec IndexSpec) error {
	info, err := s.client.GetCollectionInfo(ctx, spec.Name)
	if err != nil {
		return &IndexError{Index: spec.Name, Err: fmt.Errorf("info lookup failed: %w", err)}
	}
	cfg := info.GetConfig().GetParams().GetVectorsConfig()
	if cfg == nil {
		return nil
	}
	sizes := map[string]uint64{}
	if m := cfg.GetParamsMap(); m != nil {
		for name, p := range m.GetMap() {
			sizes[name] = p.GetSize()
		}
	} else if p := cfg.GetParams(); p != nil {
		sizes[DefaultVectorField] = p.GetSize()
	}
	for _, field := range spec.vectorFields() {
		size, ok := sizes[field]
		if !ok {
			return &IndexError{Index: spec.Name, Err: fmt.Errorf("existing collection lacks vector field %q", field)}
		}
		if size != uint64(spec.Dimension) {
			return &IndexError{
				Index: spec.Name,
				Err:   fmt.Errorf("existing collection has dimension %d for %q, embedding provider produces %d", size, field, spec.Dimension),
			}
		}
	}
	return nil
}

func (s *QdrantStore) createTextIndex(ctx context.Context, collection, field string) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
		FieldIndexParams: &qdrant.PayloadIndexParams{
			IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
				TextIndexParams: &qdrant.TextIndexParams{
					Tokenizer: qdrant.TokenizerType_Word,
					Lowercase: qdrant.PtrOf(true),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("text index on %q failed: %w", field, err)
	}
	return nil
}

func (s *QdrantStore) createKeywordIndex(ctx context.Context, collection, field string) error {
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      field,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("keyword index on %q failed: %w", field, err)
	}
	return nil
}

// IndexDocument upserts one document and returns its id. Writes wait for the
// operation to be applied so a read issued right after sees the document.
func (s *QdrantStore) IndexDocument(ctx context.Context, index string, doc Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	point, err := toPoint(doc)
	if err != nil {
		return "", &WriteError{Index: index, Err: err}
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: index,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return "", &WriteError{Index: index, Err: fmt.Errorf("upsert failed: %w", err)}
	}
	return doc.ID, nil
}

// BulkIndex writes documents best-effort. Malformed documents are skipped and
// counted as failed; a rejected batch fails its remaining documents without
// returning an error, so one bad batch never aborts an ingestion run.
func (s *QdrantStore) BulkIndex(ctx context.Context, index string, docs []Document) (BulkResult, error) {
	log := logging.FromContext(ctx)
	dim := s.knownDim(index)

	var res BulkResult
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		if err := validateForBulk(doc, dim); err != nil {
			log.Warn("skipping malformed document", "index", index, "id", doc.ID, "error", err)
			res.Failed++
			continue
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		point, err := toPoint(doc)
		if err != nil {
			log.Warn("skipping malformed document", "index", index, "id", doc.ID, "error", err)
			res.Failed++
			continue
		}
		points = append(points, point)
	}

	if len(points) > 0 {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: index,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			log.Error("bulk upsert failed", "index", index, "documents", len(points), "error", err)
			res.Failed += len(points)
			return res, nil
		}
	}
	res.Indexed = len(points)
	return res, nil
}

// VectorSearch runs approximate nearest-neighbour search over the named
// vector field, widening the candidate pool to candidateMultiplier*topK.
func (s *QdrantStore) VectorSearch(ctx context.Context, index, field string, vector []float32, topK int, minScore float32) ([]Hit, error) {
	query := &qdrant.QueryPoints{
		CollectionName: index,
		Query:          qdrant.NewQueryDense(vector),
		Using:          qdrant.PtrOf(field),
		Limit:          qdrant.PtrOf(uint64(topK)),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(uint64(topK * candidateMultiplier)),
		},
		WithPayload: qdrant.NewWithPayload(true),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(minScore)
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, &SearchError{Index: index, Err: fmt.Errorf("vector query failed: %w", err)}
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := payloadToMap(r.GetPayload())
		hits = append(hits, Hit{
			ID:       externalID(payload, r.GetId()),
			Score:    r.GetScore(),
			Text:     hitText(payload),
			Metadata: hitMetadata(payload),
			Payload:  payload,
		})
	}
	return hits, nil
}

// KeywordSearch filters candidates through the server-side full-text match
// and ranks them client-side, since scroll results carry no relevance score.
func (s *QdrantStore) KeywordSearch(ctx context.Context, index, query string, topK int) ([]Hit, error) {
	should := make([]*qdrant.Condition, 0, len(keywordFields))
	for _, kf := range keywordFields {
		should = append(should, qdrant.NewMatchText(kf.name, query))
	}
	fetch := topK * candidateMultiplier
	if fetch < 100 {
		fetch = 100
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: index,
		Filter:         &qdrant.Filter{Should: should},
		Limit:          qdrant.PtrOf(uint32(fetch)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &SearchError{Index: index, Err: fmt.Errorf("keyword scroll failed: %w", err)}
	}

	ids := make([]string, len(points))
	payloads := make([]map[string]any, len(points))
	for i, p := range points {
		payloads[i] = payloadToMap(p.GetPayload())
		ids[i] = externalID(payloads[i], p.GetId())
	}
	return rankByKeyword(ids, payloads, query, topK), nil
}

// GetDocument fetches a document with payload and vectors by external id.
func (s *QdrantStore) GetDocument(ctx context.Context, index, id string) (*Document, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: index,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, &SearchError{Index: index, Err: fmt.Errorf("get failed: %w", err)}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("docstore: index %q id %q: %w", index, id, ErrNotFound)
	}
	p := points[0]
	payload := payloadToMap(p.GetPayload())
	delete(payload, docIDField)
	return &Document{
		ID:      id,
		Payload: payload,
		Vectors: vectorsToMap(p.GetVectors()),
	}, nil
}

// SetFields merges fields into an existing document's payload. The existence
// check matters: Qdrant's SetPayload on an unknown point succeeds silently,
// which would turn a bad id into a lost update.
func (s *QdrantStore) SetFields(ctx context.Context, index, id string, fields map[string]any) error {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: index,
		Ids:            []*qdrant.PointId{pointID(id)},
	})
	if err != nil {
		return &WriteError{Index: index, Err: fmt.Errorf("lookup failed: %w", err)}
	}
	if len(points) == 0 {
		return fmt.Errorf("docstore: index %q id %q: %w", index, id, ErrNotFound)
	}

	_, err = s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: index,
		Payload:        qdrant.NewValueMap(fields),
		PointsSelector: qdrant.NewPointsSelector(pointID(id)),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return &WriteError{Index: index, Err: fmt.Errorf("set payload failed: %w", err)}
	}
	return nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context, index string) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: index,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, &SearchError{Index: index, Err: fmt.Errorf("count failed: %w", err)}
	}
	return int(n), nil
}

// DeleteIndex drops the collection. Absent collections are not an error.
func (s *QdrantStore) DeleteIndex(ctx context.Context, index string) error {
	exists, err := s.client.CollectionExists(ctx, index)
	if err != nil {
		return &IndexError{Index: index, Err: fmt.Errorf("existence check failed: %w", err)}
	}
	if !exists {
		return nil
	}
	if err := s.client.DeleteCollection(ctx, index); err != nil {
		return &IndexError{Index: index, Err: fmt.Errorf("delete failed: %w", err)}
	}
	s.mu.Lock()
	delete(s.dims, index)
	s.mu.Unlock()
	return nil
}

// Facet counts documents per distinct value of a payload field. Dotted paths
// address nested fields.
func (s *QdrantStore) Facet(ctx context.Context, index, field string) (map[string]int, error) {
	hits, err := s.client.Facet(ctx, &qdrant.FacetCounts{
		CollectionName: index,
		Key:            field,
		Limit:          qdrant.PtrOf(uint64(facetLimit)),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, &SearchError{Index: index, Err: fmt.Errorf("facet on %q failed: %w", field, err)}
	}
	out := make(map[string]int, len(hits))
	for _, h := range hits {
		out[h.GetValue().GetStringValue()] = int(h.GetCount())
	}
	return out, nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("docstore: qdrant unreachable: %w", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID derives the deterministic Qdrant point id for an external document
// id. Qdrant only accepts UUIDs or unsigned integers as point ids, so the
// external id is hashed into a name-based UUID and kept in the payload.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// externalID recovers the external document id from a point, falling back to
// the raw point UUID for points written outside this store.
func externalID(payload map[string]any, pid *qdrant.PointId) string {
	if id, ok := payload[docIDField].(string); ok && id != "" {
		return id
	}
	return pid.GetUuid()
}

// toPoint converts a Document into a Qdrant point with named vectors.
func toPoint(doc Document) (*qdrant.PointStruct, error) {
	if len(doc.Vectors) == 0 {
		return nil, fmt.Errorf("document %q has no vectors", doc.ID)
	}
	payload := make(map[string]any, len(doc.Payload)+1)
	for k, v := range doc.Payload {
		payload[k] = v
	}
	payload[docIDField] = doc.ID

	vectors := make(map[string]*qdrant.Vector, len(doc.Vectors))
	for name, vec := range doc.Vectors {
		vectors[name] = qdrant.NewVectorDense(vec)
	}

	return &qdrant.PointStruct{
		Id:      pointID(doc.ID),
		Vectors: qdrant.NewVectorsMap(vectors),
		Payload: qdrant.NewValueMap(payload),
	}, nil
}

// payloadToMap converts a Qdrant payload back into plain Go values.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return payloadToMap(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	default:
		return nil
	}
}

// vectorsToMap flattens a point's vector output into field-to-embedding form.
func vectorsToMap(vo *qdrant.VectorsOutput) map[string][]float32 {
	out := map[string][]float32{}
	if vo == nil {
		return out
	}
	if named := vo.GetVectors(); named != nil {
		for name, vec := range named.GetVectors() {
			out[name] = vec.GetData()
		}
		return out
	}
	if single := vo.GetVector(); single != nil {
		out[DefaultVectorField] = single.GetData()
	}
	return out
}
