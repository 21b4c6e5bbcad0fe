package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/xavierca1/leadflow/internal/usecase"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the body into v. An empty body is accepted when
// allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON"})
	return false
}

// writeError maps use case errors to HTTP statuses. Anything unexpected is
// logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *usecase.ValidationError
		rl   *usecase.RateLimitError
		de   *usecase.DomainError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.As(err, &rl):
		msg := fmt.Sprintf("You can submit at most %d forms per %s. Please try again later.",
			rl.Threshold, usecase.FormatWindow(rl.Window))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded", Message: msg})
	case errors.Is(err, usecase.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded"})
	case errors.As(err, &de):
		writeJSON(w, domainStatus(de.Code), errorResponse{Error: de.Message})
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func domainStatus(code string) int {
	switch code {
	case usecase.CodeNotFound:
		return http.StatusNotFound
	case usecase.CodeForbidden:
		return http.StatusForbidden
	case usecase.CodeInvalidState:
		return http.StatusConflict
	}
	return http.StatusBadRequest
}
