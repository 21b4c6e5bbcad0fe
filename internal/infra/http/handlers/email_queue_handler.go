package handlers

import (
	"context"
	"net/http"

	"github.com/xavierca1/leadflow/internal/usecase"
)

type QueueProcessor interface {
	Execute(ctx context.Context, batchSize int) (*usecase.BatchResult, error)
}

type EmailQueueHandler struct {
	processor QueueProcessor
}

func NewEmailQueueHandler(processor QueueProcessor) *EmailQueueHandler {
	return &EmailQueueHandler{processor: processor}
}

type processQueueRequest struct {
	BatchSize int `json:"batchSize"`
}

type processQueueResponse struct {
	Message string `json:"message"`
	usecase.BatchResult
}

// Process runs one dispatcher batch. The body is optional.
func (h *EmailQueueHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processQueueRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	res, err := h.processor.Execute(r.Context(), req.BatchSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, processQueueResponse{Message: "Email queue processed", BatchResult: *res})
}
