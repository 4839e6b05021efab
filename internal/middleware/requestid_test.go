package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Draymont/StockCouncil/internal/logger"
)

func TestRequestIDPassthrough(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if ctxID != "client-supplied" {
		t.Errorf("context id = %q, want client-supplied", ctxID)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "client-supplied" {
		t.Errorf("response header = %q, want client-supplied", got)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(ctxID) != 32 {
		t.Errorf("expected 32-char generated id, got %q", ctxID)
	}
	if rec.Header().Get("X-Request-ID") != ctxID {
		t.Error("response header does not match context id")
	}
}
