// Command mockidentity is a stand-in identity service for the remote
// authenticator: it verifies username/password pairs against a seeded
// table and answers the verify contract the gateway expects.
package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"queuegate/internal/domain"
	"queuegate/internal/platform/server"
)

func main() {
	addr := envOr("IDENTITY_ADDR", ":8081")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Seed users
	users := map[string]string{
		"alice": "alice-password",
		"bob":   "bob-password",
	}

	slog.Info("mock identity service starting", "addr", addr,
		"users", "alice:alice-password, bob:bob-password")

	mux := http.NewServeMux()

	mux.HandleFunc("POST /verify", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}

		want, ok := users[req.Username]
		if subtle.ConstantTimeCompare([]byte(want), []byte(req.Password)) != 1 || !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"username": req.Username})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": "mock-identity"})
	})

	srv := server.New(addr, mux)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(domain.ErrorResponse{Error: code, Message: msg})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
