// Package learning records question/answer exchanges in a conversation index
// and feeds the good ones back into the knowledge base. Conversations carry
// two embeddings (question and answer) so similarity search can match on how
// a question was asked while promotion reuses the question vector directly.
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// Vector field names in the conversation index.
const (
	QuestionVectorField = "question_embedding"
	AnswerVectorField   = "answer_embedding"
)

// Feedback values accepted by UpdateFeedback. New conversations start neutral.
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
	FeedbackNeutral  = "neutral"
)

// Defaults applied by PromoteToKnowledgeBase for empty classification fields.
const (
	DefaultPromotedDocType = "learned_faq"
	DefaultPromotedProduct = "general"
)

// promotedSource marks knowledge-base entries that came from conversations.
const promotedSource = "learned_from_conversations"

// ValidFeedback reports whether v is an accepted feedback value.
func ValidFeedback(v string) bool {
	return v == FeedbackPositive || v == FeedbackNegative || v == FeedbackNeutral
}

// Conversation is one recorded question/answer exchange.
type Conversation struct {
	// Question is the customer's question as asked.
	Question string
	// Answer is the assistant's reply.
	Answer string
	// UserID identifies the customer, when known.
	UserID string
	// ChatID identifies the chat or call this exchange belongs to.
	ChatID string
	// ContextUsed is the formatted context block the answer was generated
	// from, kept for later review of promotion candidates.
	ContextUsed string
	// Channel is the origin channel (telegram, phone, web). Empty defaults
	// to telegram.
	Channel string
	// SessionID groups exchanges within one session.
	SessionID string
	// ProcessingTimeMS is the end-to-end answer latency, when measured.
	ProcessingTimeMS float64
}

// SimilarConversation is a past exchange matched by question similarity.
type SimilarConversation struct {
	ID        string  `json:"id"`
	Score     float32 `json:"score"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Timestamp string  `json:"timestamp"`
	Feedback  string  `json:"feedback"`
}

// Stats summarises the conversation index.
type Stats struct {
	TotalConversations int            `json:"total_conversations"`
	FeedbackBreakdown  map[string]int `json:"feedback_breakdown"`
	ChannelBreakdown   map[string]int `json:"channel_breakdown"`
	// ReuseThreshold is the configured similarity above which callers may
	// reuse a past answer instead of generating a fresh one. Informational:
	// the engine reports it but does not apply it.
	ReuseThreshold float32 `json:"reuse_threshold"`
}

// Store records, searches, and promotes conversations. Safe for concurrent use.
type Store struct {
	store    docstore.Store
	embedder rag.Embedder

	// index is the conversation index name.
	index string
	// kbIndex is the knowledge-base index promotions write into.
	kbIndex string

	// enabled gates recording. Search, feedback, promotion, and stats keep
	// working on already-recorded conversations when recording is off.
	enabled bool

	// similarMinScore is the similarity floor used by
	// SearchSimilarConversations when the caller passes a negative value.
	similarMinScore float32

	// reuseThreshold is reported in Stats for answer-reuse decisions made
	// by callers.
	reuseThreshold float32
}

// Config holds the construction parameters for a Store.
type Config struct {
	// Index is the conversation index name.
	Index string
	// KnowledgeIndex is the knowledge-base index promotions write into.
	KnowledgeIndex string
	// Enabled gates conversation recording.
	Enabled bool
	// SimilarMinScore is the default floor for similar-conversation search.
	SimilarMinScore float32
	// ReuseThreshold is the similarity above which callers may reuse a
	// past answer. Reported in Stats, never applied by the engine.
	ReuseThreshold float32
}

// New constructs a conversation Store. The embedder is required: conversation
// learning has no keyword fallback, callers without an embedding provider
// should not construct a Store at all.
func New(store docstore.Store, embedder rag.Embedder, cfg *Config) (*Store, error) {
	if store == nil {
		return nil, fmt.Errorf("learning: store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("learning: embedder must not be nil")
	}
	if cfg.Index == "" || cfg.KnowledgeIndex == "" {
		return nil, fmt.Errorf("learning: index names must not be empty")
	}
	minScore := cfg.SimilarMinScore
	if minScore <= 0 {
		minScore = 0.8
	}
	reuse := cfg.ReuseThreshold
	if reuse <= 0 {
		reuse = 0.85
	}
	return &Store{
		store:           store,
		embedder:        embedder,
		index:           cfg.Index,
		kbIndex:         cfg.KnowledgeIndex,
		enabled:         cfg.Enabled,
		similarMinScore: minScore,
		reuseThreshold:  reuse,
	}, nil
}

// EnsureIndex creates the conversation index with its two named vector
// fields, sized from the embedding provider. The feedback and channel
// fields get facet indexes so Stats can aggregate them.
func (s *Store) EnsureIndex(ctx context.Context) (bool, error) {
	return s.store.EnsureIndex(ctx, docstore.IndexSpec{
		Name:         s.index,
		Dimension:    s.embedder.Dimensions(),
		VectorFields: []string{QuestionVectorField, AnswerVectorField},
		FacetFields:  []string{"feedback", "metadata.channel"},
	})
}

// StoreConversation records one exchange and returns its id. Recording is
// best-effort: a failed embed or write is logged and reported as not stored,
// never as an error, because losing a learning sample must not fail the
// customer-facing request that produced it.
func (s *Store) StoreConversation(ctx context.Context, conv Conversation) (string, bool) {
	log := logging.FromContext(ctx)
	if !s.enabled {
		log.Debug("conversation recording disabled, skipping")
		return "", false
	}

	// Question and answer are embedded in separate calls so a provider
	// that truncates batches cannot silently cross-wire the two vectors.
	questionVecs, err := s.embedder.Embed(ctx, []string{conv.Question})
	if err != nil {
		log.Warn("conversation not stored: question embedding failed", "error", err)
		return "", false
	}
	answerVecs, err := s.embedder.Embed(ctx, []string{conv.Answer})
	if err != nil {
		log.Warn("conversation not stored: answer embedding failed", "error", err)
		return "", false
	}
	if len(questionVecs) == 0 || len(answerVecs) == 0 {
		log.Warn("conversation not stored: embedder returned no vectors")
		return "", false
	}

	id := "conv_" + uuid.NewString()
	channel := conv.Channel
	if channel == "" {
		channel = "telegram"
	}

	doc := docstore.Document{
		ID: id,
		Payload: map[string]any{
			"question":     conv.Question,
			"answer":       conv.Answer,
			"user_id":      conv.UserID,
			"chat_id":      conv.ChatID,
			"timestamp":    time.Now().UTC().Format(time.RFC3339),
			"feedback":     FeedbackNeutral,
			"context_used": conv.ContextUsed,
			"metadata": map[string]any{
				"channel":            channel,
				"session_id":         conv.SessionID,
				"language":           "auto",
				"processing_time_ms": conv.ProcessingTimeMS,
			},
		},
		Vectors: map[string][]float32{
			QuestionVectorField: questionVecs[0],
			AnswerVectorField:   answerVecs[0],
		},
	}

	if _, err := s.store.IndexDocument(ctx, s.index, doc); err != nil {
		log.Warn("conversation not stored: index write failed", "error", err)
		return "", false
	}

	log.Info("conversation stored",
		"id", id,
		"question_length", len(conv.Question),
		"answer_length", len(conv.Answer),
	)
	return id, true
}

// SearchSimilarConversations finds past exchanges whose question resembles
// the given one, matching on the question embedding only. topK <= 0 defaults
// to 5; minScore <= 0 uses the configured floor, so an unset JSON field or
// flag gets the default rather than an unfiltered search.
func (s *Store) SearchSimilarConversations(ctx context.Context, question string, topK int, minScore float32) ([]SimilarConversation, error) {
	if topK <= 0 {
		topK = 5
	}
	if minScore <= 0 {
		minScore = s.similarMinScore
	}

	vecs, err := s.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("learning: embedding question failed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("learning: embedder returned empty result")
	}

	hits, err := s.store.VectorSearch(ctx, s.index, QuestionVectorField, vecs[0], topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("learning: similar search failed: %w", err)
	}

	results := make([]SimilarConversation, 0, len(hits))
	for _, h := range hits {
		sc := SimilarConversation{
			ID:       h.ID,
			Score:    h.Score,
			Feedback: FeedbackNeutral,
		}
		if q, ok := h.Payload["question"].(string); ok {
			sc.Question = q
		}
		if a, ok := h.Payload["answer"].(string); ok {
			sc.Answer = a
		}
		if ts, ok := h.Payload["timestamp"].(string); ok {
			sc.Timestamp = ts
		}
		if f, ok := h.Payload["feedback"].(string); ok && f != "" {
			sc.Feedback = f
		}
		results = append(results, sc)
	}

	logging.FromContext(ctx).Debug("similar conversations found",
		"results", len(results))
	return results, nil
}

// UpdateFeedback sets the feedback value on a recorded conversation. Unknown
// ids return an error wrapping docstore.ErrNotFound; invalid feedback values
// are rejected before any store call.
func (s *Store) UpdateFeedback(ctx context.Context, conversationID, feedback string) error {
	if !ValidFeedback(feedback) {
		return fmt.Errorf("learning: invalid feedback %q (expected %s, %s, or %s)",
			feedback, FeedbackPositive, FeedbackNegative, FeedbackNeutral)
	}

	err := s.store.SetFields(ctx, s.index, conversationID, map[string]any{
		"feedback":            feedback,
		"feedback_updated_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	logging.FromContext(ctx).Info("feedback updated",
		"conversation_id", conversationID, "feedback", feedback)
	return nil
}

// PromoteToKnowledgeBase copies a conversation into the knowledge base as a
// learned entry. The entry reuses the stored question embedding, so promotion
// makes no embedding call. Re-promoting the same conversation overwrites the
// same knowledge-base entry. Empty docType and product take the defaults.
func (s *Store) PromoteToKnowledgeBase(ctx context.Context, conversationID, docType, product string) (string, error) {
	if docType == "" {
		docType = DefaultPromotedDocType
	}
	if product == "" {
		product = DefaultPromotedProduct
	}

	conv, err := s.store.GetDocument(ctx, s.index, conversationID)
	if err != nil {
		return "", err
	}
	questionVec, ok := conv.Vectors[QuestionVectorField]
	if !ok {
		return "", fmt.Errorf("learning: conversation %q has no question embedding", conversationID)
	}
	question, _ := conv.Payload["question"].(string)
	answer, _ := conv.Payload["answer"].(string)

	now := time.Now().UTC().Format(time.RFC3339)
	kbID := "learned_" + conversationID
	doc := docstore.Document{
		ID: kbID,
		Payload: map[string]any{
			"text": fmt.Sprintf("Q: %s\n\nA: %s", question, answer),
			"metadata": map[string]any{
				"source":                   promotedSource,
				"doc_type":                 docType,
				"product":                  product,
				"language":                 "en",
				"created_at":               now,
				"original_conversation_id": conversationID,
				"promoted_at":              now,
			},
		},
		Vectors: map[string][]float32{
			docstore.DefaultVectorField: questionVec,
		},
	}

	if _, err := s.store.IndexDocument(ctx, s.kbIndex, doc); err != nil {
		return "", fmt.Errorf("learning: promote write failed: %w", err)
	}

	logging.FromContext(ctx).Info("conversation promoted to knowledge base",
		"conversation_id", conversationID, "kb_doc_id", kbID)
	return kbID, nil
}

// Stats aggregates the conversation index: total count plus breakdowns by
// feedback value and origin channel.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.store.Count(ctx, s.index)
	if err != nil {
		return nil, fmt.Errorf("learning: count failed: %w", err)
	}
	feedback, err := s.store.Facet(ctx, s.index, "feedback")
	if err != nil {
		return nil, fmt.Errorf("learning: feedback facet failed: %w", err)
	}
	channels, err := s.store.Facet(ctx, s.index, "metadata.channel")
	if err != nil {
		return nil, fmt.Errorf("learning: channel facet failed: %w", err)
	}
	return &Stats{
		TotalConversations: total,
		FeedbackBreakdown:  feedback,
		ChannelBreakdown:   channels,
		ReuseThreshold:     s.reuseThreshold,
	}, nil
}
