package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/learning"
	"github.com/kaziNymul/carevoice-go/internal/logging"
	"github.com/kaziNymul/carevoice-go/internal/oplog"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// maxBodySize caps request bodies at 1 MiB.
const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// decodeJSON reads the request body into v, rejecting unknown fields and
// oversized bodies. It writes the error response itself and reports success.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleRetrieve answers POST /api/retrieve.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	mode := s.deps.Retriever.Mode()
	start := time.Now()
	rctx, err := s.deps.Retriever.RetrieveContext(r.Context(), req.Query, req.MaxChunks, req.MinScore)
	s.metrics.retrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.retrievalsTotal.WithLabelValues(mode, "error").Inc()
		logging.FromContext(r.Context()).Error("retrieval failed", "error", err)
		writeError(w, http.StatusBadGateway, "retrieval failed")
		return
	}
	s.metrics.retrievalsTotal.WithLabelValues(mode, "ok").Inc()

	docs := rctx.Documents
	if docs == nil {
		docs = []rag.Document{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		Context:    rctx.FormattedContext,
		Documents:  docs,
		SearchMode: mode,
	})
}

// requireLearner replies 503 when conversation learning is not available.
func (s *Server) requireLearner(w http.ResponseWriter) bool {
	if s.deps.Learner == nil {
		writeError(w, http.StatusServiceUnavailable, "learning requires an embedding provider")
		return false
	}
	return true
}

// handleStoreConversation answers POST /api/conversations.
func (s *Server) handleStoreConversation(w http.ResponseWriter, r *http.Request) {
	if !s.requireLearner(w) {
		return
	}
	var req storeConversationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}

	id, stored := s.deps.Learner.StoreConversation(r.Context(), learning.Conversation{
		Question:         req.Question,
		Answer:           req.Answer,
		UserID:           req.UserID,
		ChatID:           req.ChatID,
		ContextUsed:      req.ContextUsed,
		Channel:          req.Channel,
		SessionID:        req.SessionID,
		ProcessingTimeMS: req.ProcessingTimeMS,
	})
	if stored {
		s.metrics.conversationsStored.Inc()
	}
	// Recording is best-effort: 202 either way, Stored says what happened.
	writeJSON(w, http.StatusAccepted, storeConversationResponse{ConversationID: id, Stored: stored})
}

// handleSearchConversations answers POST /api/conversations/search.
func (s *Server) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	if !s.requireLearner(w) {
		return
	}
	var req similarSearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	results, err := s.deps.Learner.SearchSimilarConversations(r.Context(), req.Question, req.TopK, req.MinScore)
	if err != nil {
		logging.FromContext(r.Context()).Error("similar conversation search failed", "error", err)
		writeError(w, http.StatusBadGateway, "conversation search failed")
		return
	}
	if results == nil {
		results = []learning.SimilarConversation{}
	}
	writeJSON(w, http.StatusOK, similarSearchResponse{Results: results})
}

// handleFeedback answers POST /api/conversations/{id}/feedback.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if !s.requireLearner(w) {
		return
	}
	id := r.PathValue("id")
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !learning.ValidFeedback(req.Feedback) {
		writeError(w, http.StatusBadRequest, "feedback must be positive, negative or neutral")
		return
	}

	if err := s.deps.Learner.UpdateFeedback(r.Context(), id, req.Feedback); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		logging.FromContext(r.Context()).Error("feedback update failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "feedback update failed")
		return
	}
	s.metrics.feedbackTotal.WithLabelValues(req.Feedback).Inc()
	if err := s.deps.OpLog.Append(r.Context(), oplog.OpFeedback, id, req.Feedback); err != nil {
		logging.FromContext(r.Context()).Warn("oplog append failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// handlePromote answers POST /api/conversations/{id}/promote.
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	if !s.requireLearner(w) {
		return
	}
	id := r.PathValue("id")
	var req promoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	kbID, err := s.deps.Learner.PromoteToKnowledgeBase(r.Context(), id, req.DocType, req.Product)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		logging.FromContext(r.Context()).Error("promotion failed", "conversation_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "promotion failed")
		return
	}
	s.metrics.promotionsTotal.Inc()
	if err := s.deps.OpLog.Append(r.Context(), oplog.OpPromote, id, kbID); err != nil {
		logging.FromContext(r.Context()).Warn("oplog append failed", "error", err)
	}
	writeJSON(w, http.StatusOK, promoteResponse{KBDocID: kbID})
}

// handleLearningStats answers GET /api/learning/stats.
func (s *Server) handleLearningStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireLearner(w) {
		return
	}
	stats, err := s.deps.Learner.Stats(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("learning stats failed", "error", err)
		writeError(w, http.StatusBadGateway, "learning stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleOps answers GET /api/ops with recent administrative operations,
// newest first. The optional limit query parameter caps the listing.
func (s *Server) handleOps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.OpLog.Recent(r.Context(), limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("oplog listing failed", "error", err)
		writeError(w, http.StatusBadGateway, "operations log unavailable")
		return
	}
	if entries == nil {
		entries = []oplog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string][]oplog.Entry{"operations": entries})
}

// handleStatus answers GET /api/status with engine configuration and counts.
// Counts are best effort: a store error degrades status to "degraded"
// rather than failing the endpoint.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:            "ok",
		SearchMode:        s.deps.Retriever.Mode(),
		KnowledgeIndex:    s.deps.KnowledgeIndex,
		LearningIndex:     s.deps.LearningIndex,
		LearningAvailable: s.deps.Learner != nil,
	}
	log := logging.FromContext(r.Context())
	if n, err := s.deps.Store.Count(r.Context(), s.deps.KnowledgeIndex); err != nil {
		resp.Status = "degraded"
		log.Warn("knowledge index count failed", "error", err)
	} else {
		resp.KnowledgeDocuments = n
	}
	if s.deps.Learner != nil {
		if n, err := s.deps.Store.Count(r.Context(), s.deps.LearningIndex); err != nil {
			resp.Status = "degraded"
			log.Warn("learning index count failed", "error", err)
		} else {
			resp.Conversations = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
