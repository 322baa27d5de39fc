package payments_http

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	typeValidation = "about:blank/validation-error"
	typeNotFound   = "about:blank/not-found"
	typeInternal   = "about:blank/internal-error"
	typeBadRequest = "about:blank/bad-request"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Status    int            `json:"status"`
	Detail    string         `json:"detail"`
	Instance  string         `json:"instance"`
	TraceID   string         `json:"trace_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (h *PaymentHandler) problem(w http.ResponseWriter, r *http.Request, status int, typ, title, detail string, extra map[string]any) {
	body := Problem{
		Type:      typ,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  r.URL.Path,
		TraceID:   requestID(r),
		Timestamp: time.Now().UTC(),
		Extra:     extra,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write problem response", zap.Error(err))
	}
}

func (h *PaymentHandler) internalError(w http.ResponseWriter, r *http.Request) {
	h.problem(w, r, http.StatusInternalServerError, typeInternal, "Internal Server Error",
		"An unexpected error occurred. Please try again later.", nil)
}
