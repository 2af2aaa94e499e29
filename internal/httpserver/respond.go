package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"nearhand/internal/market"
)

// callerHeader carries the authenticated caller id; tokenHeader carries the
// client-supplied idempotency token for state-changing calls.
const (
	callerHeader = "X-User-Id"
	tokenHeader  = "Idempotency-Key"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request, callerID string)

// auth rejects requests without a caller identity and threads it through.
func (s *Server) auth(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID := r.Header.Get(callerHeader)
		if callerID == "" {
			writeErrorCode(w, market.CodeUnauthorized, "Missing "+callerHeader+" header")
			return
		}
		next(w, r, callerID)
	}
}

func token(r *http.Request) string {
	return r.Header.Get(tokenHeader)
}

func decode(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return market.E(market.CodeValidation, "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

type errorBody struct {
	Code    market.Code `json:"code"`
	Message string      `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError maps the failure taxonomy onto HTTP statuses. Uncoded errors
// never leak details to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := market.CodeOf(err)
	if code == market.CodeInternal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.metrics.Errors.WithLabelValues("http").Inc()
		writeErrorCode(w, code, "internal error")
		return
	}
	writeErrorCode(w, code, errorMessage(err, code))
}

func errorMessage(err error, code market.Code) string {
	var coded *market.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return string(code)
}

func writeErrorCode(w http.ResponseWriter, code market.Code, message string) {
	writeJSONStatus(w, statusOf(code), errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func statusOf(code market.Code) int {
	switch code {
	case market.CodeValidation:
		return http.StatusBadRequest
	case market.CodeUnauthorized:
		return http.StatusUnauthorized
	case market.CodeForbidden:
		return http.StatusForbidden
	case market.CodeNotFound:
		return http.StatusNotFound
	case market.CodeConflict:
		return http.StatusConflict
	case market.CodeExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
