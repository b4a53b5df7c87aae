package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"queuegate/internal/authz"
	"queuegate/internal/domain"
	"queuegate/internal/httpapi"
	"queuegate/internal/httpapi/middleware"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	// Parse the log output
	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("parsing log output: %v\nraw: %s", err, buf.String())
	}

	if logEntry["method"] != "GET" {
		t.Errorf("expected method GET, got %v", logEntry["method"])
	}
	if logEntry["path"] != "/status" {
		t.Errorf("expected path /status, got %v", logEntry["path"])
	}
	status, ok := logEntry["status"].(float64)
	if !ok || int(status) != 200 {
		t.Errorf("expected status 200, got %v", logEntry["status"])
	}
	if _, ok := logEntry["duration_ms"]; !ok {
		t.Error("expected duration_ms in log output")
	}
}

func TestLoggingIncludesPrincipal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/queue", nil)
	session := authz.Session{
		Principal: domain.Principal{Name: "alice", Type: domain.PrincipalAuthenticated},
		Scopes:    domain.NewScopeSet(authz.ScopeReadQueue),
	}
	req = req.WithContext(httpapi.ContextWithSession(req.Context(), session))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var logEntry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("parsing log output: %v", err)
	}
	if logEntry["principal"] != "alice" {
		t.Errorf("expected principal alice, got %v", logEntry["principal"])
	}
	if logEntry["principal_type"] != "authenticated" {
		t.Errorf("expected type authenticated, got %v", logEntry["principal_type"])
	}
}
