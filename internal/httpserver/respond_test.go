package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"nearhand/internal/market"
	"nearhand/internal/metrics"
)

func testServer() *Server {
	return &Server{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.Registry("test"),
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[market.Code]int{
		market.CodeValidation:   http.StatusBadRequest,
		market.CodeUnauthorized: http.StatusUnauthorized,
		market.CodeForbidden:    http.StatusForbidden,
		market.CodeNotFound:     http.StatusNotFound,
		market.CodeConflict:     http.StatusConflict,
		market.CodeExpired:      http.StatusGone,
		market.CodeInternal:     http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := statusOf(code); got != want {
			t.Fatalf("statusOf(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestAuthRejectsMissingCaller(t *testing.T) {
	s := testServer()
	handler := s.auth(func(w http.ResponseWriter, r *http.Request, callerID string) {
		t.Fatal("handler must not run without a caller")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != market.CodeUnauthorized {
		t.Fatalf("code = %s, want UNAUTHORIZED", body.Error.Code)
	}
}

func TestAuthThreadsCaller(t *testing.T) {
	s := testServer()
	var got string
	handler := s.auth(func(w http.ResponseWriter, r *http.Request, callerID string) {
		got = callerID
		writeJSON(w, map[string]bool{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(callerHeader, "user-123")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if got != "user-123" {
		t.Fatalf("caller = %q, want user-123", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.writeError(rec, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil), io.ErrUnexpectedEOF)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Message != "internal error" {
		t.Fatalf("internal detail leaked: %q", body.Error.Message)
	}
}
