package api

import (
	"log/slog"
	"net/http"
)

// Knowledge-base readiness states reported by GET /stats.
const (
	StatusReady       = "ready"
	StatusNoDocuments = "no_documents"
)

type statsResponse struct {
	DocumentCount int64  `json:"documentCount"`
	Status        string `json:"status"`
}

type statsHandler struct {
	store  StatsStore
	logger *slog.Logger
}

func (h *statsHandler) handle(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.DocumentCount(r.Context())
	if err != nil {
		h.logger.Error("counting documents", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to fetch stats", "")
		return
	}

	status := StatusNoDocuments
	if count > 0 {
		status = StatusReady
	}
	writeJSON(w, h.logger, http.StatusOK, statsResponse{DocumentCount: count, Status: status})
}
