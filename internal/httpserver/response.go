package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"creatorscout/internal/search"
	"creatorscout/internal/store"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{Code: code, Message: message}})
}

func mapError(err error) (int, string) {
	var verr *search.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
