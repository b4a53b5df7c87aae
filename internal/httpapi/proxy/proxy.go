// Package proxy forwards authorized run-queue endpoints to the manager
// backend, enforcing per-route scope requirements and injecting
// principal headers.
package proxy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"queuegate/internal/authz"
	"queuegate/internal/domain"
	"queuegate/internal/httpapi"
	"queuegate/internal/platform/telemetry"
)

// route defines a manager endpoint with per-method scope requirements.
type route struct {
	pattern string // ServeMux pattern with method, e.g. "GET /status"
	scope   domain.Scope
}

// Manager routes the run-queue endpoints to the manager backend. Every
// route names the scope it requires; the scope check runs here because
// the requirement depends on both path and method.
type Manager struct {
	mux     *http.ServeMux
	rp      *httputil.ReverseProxy
	metrics *telemetry.Metrics
}

// NewManager creates the proxy for the given manager base URL.
// The metrics parameter is optional; pass nil to skip metric recording.
func NewManager(managerURL string, m *telemetry.Metrics) (*Manager, error) {
	target, err := url.Parse(managerURL)
	if err != nil {
		return nil, fmt.Errorf("parse manager URL: %w", err)
	}

	p := &Manager{
		mux:     http.NewServeMux(),
		metrics: m,
	}
	p.rp = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host

			// Strip Authorization; the manager trusts principal headers
			req.Header.Del("Authorization")

			if session, ok := httpapi.SessionFromContext(req.Context()); ok {
				req.Header.Set("X-Principal-Name", session.Principal.Name)
				req.Header.Set("X-Principal-Type", session.Principal.Type.String())
				req.Header.Set("X-Principal-Roles", strings.Join(session.Principal.Roles, " "))
				req.Header.Set("X-Principal-Scopes", strings.Join(session.Scopes.Strings(), " "))
			}
			if reqID := httpapi.RequestIDFromContext(req.Context()); reqID != "" {
				req.Header.Set("X-Request-ID", reqID)
			}
		},
	}

	routes := []route{
		{pattern: "GET /status", scope: authz.ScopeReadStatus},
		{pattern: "GET /queue", scope: authz.ScopeReadQueue},
		{pattern: "POST /queue/item", scope: authz.ScopeWriteQueueEdit},
		{pattern: "DELETE /queue/item", scope: authz.ScopeWriteQueueEdit},
		{pattern: "POST /queue/start", scope: authz.ScopeWriteQueueControl},
		{pattern: "POST /queue/stop", scope: authz.ScopeWriteQueueControl},
		{pattern: "GET /history", scope: authz.ScopeReadHistory},
		{pattern: "DELETE /history", scope: authz.ScopeWriteHistoryEdit},
	}
	for _, rt := range routes {
		p.mux.HandleFunc(rt.pattern, p.makeHandler(rt))
	}

	p.mux.HandleFunc("GET /healthz", p.healthz)
	p.mux.HandleFunc("GET /readyz", p.readyz)

	// Unknown manager paths get the shared 404 shape, not the stdlib
	// plain-text one.
	p.mux.Handle("/", httpapi.NotFoundHandler())

	return p, nil
}

func (p *Manager) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mux.ServeHTTP(w, req)
}

func (p *Manager) makeHandler(rt route) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		session, ok := httpapi.SessionFromContext(req.Context())
		if !ok {
			httpapi.WriteDomainError(w, domain.ErrNotEnoughPermissions)
			return
		}
		if err := authz.Authorize(session.Scopes, rt.scope); err != nil {
			httpapi.WriteDomainError(w, err)
			return
		}

		start := time.Now()
		sw := &httpapi.StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		p.rp.ServeHTTP(sw, req)

		if p.metrics != nil {
			duration := time.Since(start).Seconds()
			p.metrics.RecordProxyRequest(req.Context(), "manager", sw.Code, duration)
		}
	}
}

func (p *Manager) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		slog.Error("encoding healthz response", "error", err)
	}
}

func (p *Manager) readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ready"}); err != nil {
		slog.Error("encoding readyz response", "error", err)
	}
}
