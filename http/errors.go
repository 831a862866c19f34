package http

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/axsanchezgomez/BandersnatchStarter/logging"
	"github.com/axsanchezgomez/BandersnatchStarter/ml"
	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warn("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: GetRequestID(r.Context())})
}

// writeFailure maps err onto a status code.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.L().Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, r, status, err.Error())
}

func statusFor(err error) int {
	var schemaErr *ml.SchemaError
	var corrupt *ml.CorruptModelError
	switch {
	case errors.Is(err, errNoModel):
		return http.StatusServiceUnavailable
	case errors.As(err, &corrupt):
		return http.StatusInternalServerError
	case errors.As(err, &schemaErr), errors.Is(err, table.ErrSchema), errors.Is(err, ml.ErrEmptyDataset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
