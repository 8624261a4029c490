package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// response is the standard envelope for every API reply.
type response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
	Error      *apiError   `json:"error,omitempty"`
}

type pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

func respondList(w http.ResponseWriter, reqID string, data any, pg *pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

func respondError(w http.ResponseWriter, reqID string, status int, code, message string) {
	respondJSON(w, status, reqID, nil, nil, &apiError{Code: code, Message: message})
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *pagination, apiErr *apiError) {
	resp := response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
