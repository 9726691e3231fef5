package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/learning"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics is the Prometheus registerer for server metrics.
	// If nil, prometheus.DefaultRegisterer is used.
	Metrics prometheus.Registerer
}

// Deps are the engine components the server exposes over HTTP.
type Deps struct {
	// Retriever answers knowledge-base queries.
	Retriever *rag.Retriever
	// Learner records and promotes conversations. Nil when no embedding
	// provider is configured; conversation endpoints then return 503.
	Learner *learning.Store
	// Store is the underlying document store, used for index counts.
	Store docstore.Store
	// KnowledgeIndex is the knowledge-base index name reported by /api/status.
	KnowledgeIndex string
	// LearningIndex is the conversation index name reported by /api/status.
	LearningIndex string
	// OpLog records administrative operations (feedback, promotions).
	OpLog oplog.Log
}

// Server is the HTTP server that exposes the retrieval and learning engine.
type Server struct {
	// deps holds the wired engine components.
	deps *Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// retrieveRequest is the JSON body for POST /api/retrieve.
type retrieveRequest struct {
	// Query is the customer's question.
	Query string `json:"query"`
	// MaxChunks caps the number of passages returned (0 = configured default).
	MaxChunks int `json:"max_chunks,omitempty"`
	// MinScore overrides the similarity floor (0 = configured default).
	MinScore float32 `json:"min_score,omitempty"`
}

// retrieveResponse is the JSON response for POST /api/retrieve.
type retrieveResponse struct {
	// Context is the formatted context block for answer generation.
	Context string `json:"context"`
	// Documents are the retrieved passages, best first.
	Documents []rag.Document `json:"documents"`
	// SearchMode is the active strategy: "vector" or "keyword".
	SearchMode string `json:"search_mode"`
}

// storeConversationRequest is the JSON body for POST /api/conversations.
type storeConversationRequest struct {
	Question         string  `json:"question"`
	Answer           string  `json:"answer"`
	UserID           string  `json:"user_id,omitempty"`
	ChatID           string  `json:"chat_id,omitempty"`
	ContextUsed      string  `json:"context_used,omitempty"`
	Channel          string  `json:"channel,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	ProcessingTimeMS float64 `json:"processing_time_ms,omitempty"`
}

// storeConversationResponse is the JSON response for POST /api/conversations.
type storeConversationResponse struct {
	// ConversationID is the recorded conversation id. Empty when not stored.
	ConversationID string `json:"conversation_id,omitempty"`
	// Stored reports whether the exchange was recorded.
	Stored bool `json:"stored"`
}

// similarSearchRequest is the JSON body for POST /api/conversations/search.
type similarSearchRequest struct {
	Question string  `json:"question"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float32 `json:"min_score,omitempty"`
}

// similarSearchResponse is the JSON response for POST /api/conversations/search.
type similarSearchResponse struct {
	Results []learning.SimilarConversation `json:"results"`
}

// feedbackRequest is the JSON body for POST /api/conversations/{id}/feedback.
type feedbackRequest struct {
	// Feedback is one of: positive, negative, neutral.
	Feedback string `json:"feedback"`
}

// promoteRequest is the JSON body for POST /api/conversations/{id}/promote.
type promoteRequest struct {
	DocType string `json:"doc_type,omitempty"`
	Product string `json:"product,omitempty"`
}

// promoteResponse is the JSON response for POST /api/conversations/{id}/promote.
type promoteResponse struct {
	// KBDocID is the id of the new knowledge-base entry.
	KBDocID string `json:"kb_doc_id"`
}

// statusResponse is the JSON response for GET /api/status.
type statusResponse struct {
	Status             string `json:"status"`
	SearchMode         string `json:"search_mode"`
	KnowledgeIndex     string `json:"knowledge_index"`
	LearningIndex      string `json:"learning_index"`
	KnowledgeDocuments int    `json:"knowledge_documents"`
	Conversations      int    `json:"conversations"`
	LearningAvailable  bool   `json:"learning_available"`
}

// errorResponse is the JSON error body for all API failures.
type errorResponse struct {
	Error string `json:"error"`
}
