// Command mockmanager is a stand-in run-queue manager used for local
// development and load testing. It echoes the principal headers the
// gateway injects and keeps a tiny in-memory queue so the proxied
// endpoints behave plausibly.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"queuegate/internal/platform/server"
)

type queueItem struct {
	UUID string         `json:"item_uid"`
	Name string         `json:"name"`
	User string         `json:"user"`
	Args map[string]any `json:"kwargs,omitempty"`
}

type manager struct {
	mu      sync.Mutex
	running bool
	queue   []queueItem
	history []queueItem
	nextUID int
}

func main() {
	addr := envOr("ADDR", ":8082")
	baseDelay := envDuration("LATENCY_BASE", 0)
	jitter := envDuration("LATENCY_JITTER", 0)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("mock manager starting", "addr", addr,
		"latency_base", baseDelay, "latency_jitter", jitter)

	m := &manager{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		resp := map[string]any{
			"manager_state":  state(m.running),
			"items_in_queue": len(m.queue),
			"principal":      principalEcho(r),
		}
		m.mu.Unlock()
		writeJSON(w, resp)
	})

	mux.HandleFunc("GET /queue", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		items := append([]queueItem(nil), m.queue...)
		m.mu.Unlock()
		writeJSON(w, map[string]any{"items": items, "principal": principalEcho(r)})
	})

	mux.HandleFunc("POST /queue/item", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		var req struct {
			Name string         `json:"name"`
			Args map[string]any `json:"kwargs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]string{"error": "bad_request", "message": "plan name is required"})
			return
		}
		m.mu.Lock()
		m.nextUID++
		item := queueItem{
			UUID: strconv.Itoa(m.nextUID),
			Name: req.Name,
			User: r.Header.Get("X-Principal-Name"),
			Args: req.Args,
		}
		m.queue = append(m.queue, item)
		m.mu.Unlock()
		writeJSON(w, map[string]any{"success": true, "item": item})
	})

	mux.HandleFunc("DELETE /queue/item", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		removed := len(m.queue) > 0
		if removed {
			m.queue = m.queue[:len(m.queue)-1]
		}
		m.mu.Unlock()
		writeJSON(w, map[string]any{"success": removed})
	})

	mux.HandleFunc("POST /queue/start", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		m.running = true
		m.history = append(m.history, m.queue...)
		m.queue = nil
		m.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})

	mux.HandleFunc("POST /queue/stop", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})

	mux.HandleFunc("GET /history", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		items := append([]queueItem(nil), m.history...)
		m.mu.Unlock()
		writeJSON(w, map[string]any{"items": items})
	})

	mux.HandleFunc("DELETE /history", func(w http.ResponseWriter, r *http.Request) {
		simulateWork(baseDelay, jitter)
		m.mu.Lock()
		m.history = nil
		m.mu.Unlock()
		writeJSON(w, map[string]any{"success": true})
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok", "service": "mock-manager"})
	})

	srv := server.New(addr, mux)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func state(running bool) string {
	if running {
		return "executing_queue"
	}
	return "idle"
}

// principalEcho surfaces the identity headers injected by the gateway so
// integration tests can assert on them.
func principalEcho(r *http.Request) map[string]string {
	return map[string]string{
		"name":       r.Header.Get("X-Principal-Name"),
		"type":       r.Header.Get("X-Principal-Type"),
		"roles":      r.Header.Get("X-Principal-Roles"),
		"scopes":     r.Header.Get("X-Principal-Scopes"),
		"request_id": r.Header.Get("X-Request-ID"),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envDuration reads a duration in milliseconds from an env var (e.g. "50" -> 50ms).
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

// simulateWork sleeps for base + random(0, jitter) to mimic real manager processing.
func simulateWork(base, jitter time.Duration) {
	if base == 0 && jitter == 0 {
		return
	}
	delay := base
	if jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(jitter)))
	}
	time.Sleep(delay)
}
