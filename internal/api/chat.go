package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"docchat/internal/store"
)

// NoDocumentsMessage is returned by POST /chat when the knowledge base is
// empty. The pipeline is skipped entirely; nothing is persisted.
const NoDocumentsMessage = "I don't have any documents in my knowledge base yet. Please ingest some documents first using the ingestion pipeline."

// internalErrorDetail is the client-facing detail for 500 responses. The
// underlying error is logged, never echoed; driver errors can carry
// connection strings.
const internalErrorDetail = "An internal error occurred while processing the request."

type chatRequest struct {
	Message   string `json:"message"`
	SessionID *int64 `json:"sessionId"`
}

type chatResponse struct {
	Answer         string         `json:"answer"`
	Sources        []store.Source `json:"sources"`
	ConversationID *int64         `json:"conversationId"`
}

type chatHandler struct {
	chat   ChatService
	store  StatsStore
	logger *slog.Logger
}

func (h *chatHandler) handle(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, h.logger, http.StatusBadRequest, "Message is required", "")
		return
	}

	ctx := r.Context()

	count, err := h.store.DocumentCount(ctx)
	if err != nil {
		h.logger.Error("counting documents", "error", err, "request_id", RequestIDFromContext(ctx))
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process chat message", internalErrorDetail)
		return
	}
	if count == 0 {
		// Echo the caller's session id unchanged; an explicit id 0 stays 0.
		writeJSON(w, h.logger, http.StatusOK, chatResponse{
			Answer:         NoDocumentsMessage,
			Sources:        []store.Source{},
			ConversationID: req.SessionID,
		})
		return
	}

	resp, err := h.chat.Chat(ctx, req.Message, req.SessionID)
	if err != nil {
		h.logger.Error("chat exchange failed", "error", err, "request_id", RequestIDFromContext(ctx))
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to process chat message", internalErrorDetail)
		return
	}

	sources := resp.Sources
	if sources == nil {
		sources = []store.Source{}
	}
	writeJSON(w, h.logger, http.StatusOK, chatResponse{
		Answer:         resp.Answer,
		Sources:        sources,
		ConversationID: &resp.ConversationID,
	})
}
