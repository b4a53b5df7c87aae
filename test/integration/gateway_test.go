package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"queuegate/internal/app"
	"queuegate/internal/domain"
	"queuegate/internal/platform/config"
	"queuegate/internal/platform/server"
	"queuegate/internal/platform/telemetry"
	"queuegate/internal/testutil"
)

// testPolicy is the policy most tests run with: a dictionary provider
// with two users, alice as admin and bob as expert.
func testPolicy() config.Policy {
	return config.Policy{
		Authentication: config.Authentication{
			Providers: []config.Provider{{
				Provider:      "toy",
				Authenticator: "dictionary",
				UsersToPasswords: map[string]string{
					"alice": "alice-password",
					"bob":   "bob-password",
				},
			}},
		},
		APIAccess: config.APIAccess{
			Users: map[string]config.UserAccess{
				"alice": {Roles: []string{"admin"}},
				"bob":   {Roles: []string{"expert"}},
			},
		},
	}
}

type gatewayOpts struct {
	policy config.Policy
	rate   float64
	burst  int
	ttl    time.Duration
}

// startGateway assembles the full gateway in front of a mock manager and
// starts it on a free port. Returns the base URL and the assembled app
// for tests that drive the engine directly.
func startGateway(t *testing.T, opts gatewayOpts) (string, *app.App) {
	t.Helper()

	backend := httptest.NewServer(testutil.MockManagerHandler())
	t.Cleanup(backend.Close)

	shutdown, err := telemetry.Setup(context.Background(), "queuegate-test")
	if err != nil {
		t.Fatalf("telemetry setup: %v", err)
	}
	t.Cleanup(func() { shutdown(context.Background()) })

	m, err := telemetry.NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if opts.rate == 0 {
		opts.rate = 1000
	}
	if opts.burst == 0 {
		opts.burst = 1000
	}
	if opts.ttl == 0 {
		opts.ttl = 15 * time.Minute
	}
	cfg := config.Config{
		Addr:        freeAddr(t),
		ManagerURL:  backend.URL,
		TokenSecret: "integration-test-secret",
		TokenTTL:    opts.ttl,
		RateLimit:   config.RateLimitConfig{Rate: opts.rate, Burst: opts.burst},
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	gw, err := app.New(cfg, opts.policy, m, logger)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	srv := server.New(cfg.Addr, gw.Handler)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := srv.Run(ctx); err != nil {
			t.Logf("server error: %v", err)
		}
	}()

	baseURL := "http://" + cfg.Addr
	waitForReady(t, baseURL+"/healthz")
	return baseURL, gw
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func waitForReady(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server did not become ready")
}

func login(t *testing.T, baseURL, provider, username, password string) string {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	resp, err := http.Post(baseURL+"/auth/provider/"+provider+"/token",
		"application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("login failed: %d: %s", resp.StatusCode, raw)
	}
	var pair domain.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		t.Fatalf("decoding token pair: %v", err)
	}
	return pair.AccessToken
}

func doRequest(t *testing.T, method, url, authorization string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func TestFullAuthFlow(t *testing.T) {
	baseURL, _ := startGateway(t, gatewayOpts{policy: testPolicy()})

	token := login(t, baseURL, "toy", "alice", "alice-password")
	bearer := "Bearer " + token

	t.Run("scopes endpoint reflects roles", func(t *testing.T) {
		resp, raw := doRequest(t, http.MethodGet, baseURL+"/auth/scopes", bearer, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
		}
		var body struct {
			Roles  []string `json:"roles"`
			Scopes []string `json:"scopes"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if len(body.Roles) != 1 || body.Roles[0] != "admin" {
			t.Errorf("expected roles [admin], got %v", body.Roles)
		}
		if len(body.Scopes) == 0 {
			t.Error("expected non-empty admin scopes")
		}
	})

	t.Run("proxied request carries principal headers", func(t *testing.T) {
		resp, raw := doRequest(t, http.MethodGet, baseURL+"/status", bearer, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
		}
		var echo map[string]any
		if err := json.Unmarshal(raw, &echo); err != nil {
			t.Fatalf("decoding echo: %v", err)
		}
		if echo["principal_name"] != "alice" {
			t.Errorf("expected principal alice at the manager, got %v", echo["principal_name"])
		}
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		resp, raw := doRequest(t, http.MethodGet, baseURL+"/status", "Bearer garbage", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		var er domain.ErrorResponse
		if err := json.Unmarshal(raw, &er); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if er.Error != "could_not_validate_credentials" {
			t.Errorf("expected could_not_validate_credentials, got %q", er.Error)
		}
	})

	t.Run("insufficient scope denied", func(t *testing.T) {
		bobToken := login(t, baseURL, "toy", "bob", "bob-password")
		// Experts cannot read principal records.
		resp, raw := doRequest(t, http.MethodGet, baseURL+"/auth/principals", "Bearer "+bobToken, nil)
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", resp.StatusCode, raw)
		}
		var er domain.ErrorResponse
		json.Unmarshal(raw, &er)
		if er.Error != "not_enough_permissions" {
			t.Errorf("expected not_enough_permissions, got %q", er.Error)
		}
	})

	t.Run("unknown provider indistinguishable from unknown route", func(t *testing.T) {
		resp1, raw1 := doRequest(t, http.MethodPost, baseURL+"/auth/provider/nope/token",
			bearer, strings.NewReader(`{"username":"alice","password":"alice-password"}`))
		resp2, raw2 := doRequest(t, http.MethodGet, baseURL+"/auth/no-such-route", bearer, nil)
		if resp1.StatusCode != http.StatusNotFound || resp2.StatusCode != http.StatusNotFound {
			t.Fatalf("expected two 404s, got %d and %d", resp1.StatusCode, resp2.StatusCode)
		}
		if !bytes.Equal(raw1, raw2) {
			t.Errorf("404 bodies differ: %s vs %s", raw1, raw2)
		}
	})

	t.Run("health endpoints are public", func(t *testing.T) {
		for _, path := range []string{"/healthz", "/readyz"} {
			resp, _ := doRequest(t, http.MethodGet, baseURL+path, "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
			}
		}
	})
}

func TestRoleChangeAffectsOutstandingToken(t *testing.T) {
	baseURL, gw := startGateway(t, gatewayOpts{policy: testPolicy()})

	token := login(t, baseURL, "toy", "bob", "bob-password")
	bearer := "Bearer " + token

	body := strings.NewReader(`{"name":"count","kwargs":{"num":5}}`)
	resp, raw := doRequest(t, http.MethodPost, baseURL+"/queue/item", bearer, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expert must be able to add items: %d: %s", resp.StatusCode, raw)
	}

	if !gw.Principals.SetRoles("bob", []string{"observer"}) {
		t.Fatal("expected bob to have a principal record after login")
	}

	// Same token, demoted roles: writes now fail, reads still work.
	body = strings.NewReader(`{"name":"count","kwargs":{"num":5}}`)
	resp, _ = doRequest(t, http.MethodPost, baseURL+"/queue/item", bearer, body)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("demoted token must lose write access, got %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/queue", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("demoted token must keep read access, got %d", resp.StatusCode)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	baseURL, _ := startGateway(t, gatewayOpts{policy: testPolicy()})

	token := login(t, baseURL, "toy", "alice", "alice-password")
	bearer := "Bearer " + token

	resp, raw := doRequest(t, http.MethodPost, baseURL+"/auth/apikey", bearer,
		strings.NewReader(`{"expires_in":3600,"note":"ci"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("minting key: %d: %s", resp.StatusCode, raw)
	}
	var minted struct {
		Secret string   `json:"secret"`
		Scopes []string `json:"scopes"`
	}
	if err := json.Unmarshal(raw, &minted); err != nil {
		t.Fatalf("decoding minted key: %v", err)
	}
	if len(minted.Scopes) != 1 || minted.Scopes[0] != "inherit" {
		t.Errorf("key minted without scopes must inherit, got %v", minted.Scopes)
	}

	apiKeyAuth := "ApiKey " + minted.Secret
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/queue", apiKeyAuth, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("minted key must authenticate, got %d", resp.StatusCode)
	}

	resp, raw = doRequest(t, http.MethodGet, baseURL+"/auth/apikeys", bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("listing keys: %d: %s", resp.StatusCode, raw)
	}
	var listed struct {
		APIKeys []struct {
			Secret string `json:"secret"`
		} `json:"api_keys"`
	}
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.Fatalf("decoding key list: %v", err)
	}
	if len(listed.APIKeys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(listed.APIKeys))
	}
	if listed.APIKeys[0].Secret == minted.Secret {
		t.Error("listed secret must be masked")
	}

	resp, raw = doRequest(t, http.MethodDelete,
		baseURL+"/auth/apikey?secret="+minted.Secret, bearer, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoking key: %d: %s", resp.StatusCode, raw)
	}

	resp, raw = doRequest(t, http.MethodGet, baseURL+"/queue", apiKeyAuth, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key must stop working, got %d: %s", resp.StatusCode, raw)
	}
	var er domain.ErrorResponse
	json.Unmarshal(raw, &er)
	if er.Error != "invalid_credential" {
		t.Errorf("expected invalid_credential, got %q", er.Error)
	}
}

func TestSingleUserKeyMode(t *testing.T) {
	pol := config.Policy{
		Authentication: config.Authentication{SingleUserAPIKey: "hunter2-single-user"},
	}
	baseURL, _ := startGateway(t, gatewayOpts{policy: pol})

	resp, raw := doRequest(t, http.MethodGet, baseURL+"/queue", "ApiKey hunter2-single-user", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("single-user key must work: %d: %s", resp.StatusCode, raw)
	}

	resp, _ = doRequest(t, http.MethodGet, baseURL+"/queue", "ApiKey wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", resp.StatusCode)
	}

	// No providers are configured, so the login route does not exist.
	resp, _ = doRequest(t, http.MethodPost, baseURL+"/auth/provider/toy/token",
		"", strings.NewReader(`{"username":"alice","password":"pw"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("login without providers: expected 404, got %d", resp.StatusCode)
	}
}

func TestSingleUserKeyDisabledWithProviders(t *testing.T) {
	pol := testPolicy()
	pol.Authentication.SingleUserAPIKey = "hunter2-single-user"
	baseURL, _ := startGateway(t, gatewayOpts{policy: pol})

	resp, _ := doRequest(t, http.MethodGet, baseURL+"/queue", "ApiKey hunter2-single-user", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("single-user key must be inert alongside providers, got %d", resp.StatusCode)
	}
}

func TestAnonymousAccess(t *testing.T) {
	pol := testPolicy()
	pol.Authentication.AllowAnonymousAccess = true
	baseURL, _ := startGateway(t, gatewayOpts{policy: pol})

	resp, raw := doRequest(t, http.MethodGet, baseURL+"/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("anonymous read must pass: %d: %s", resp.StatusCode, raw)
	}
	var echo map[string]any
	if err := json.Unmarshal(raw, &echo); err != nil {
		t.Fatalf("decoding echo: %v", err)
	}
	if echo["principal_name"] != "" {
		t.Errorf("anonymous principal must have no name, got %v", echo["principal_name"])
	}

	resp, _ = doRequest(t, http.MethodPost, baseURL+"/queue/item", "",
		strings.NewReader(`{"name":"count"}`))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("anonymous write: expected 403, got %d", resp.StatusCode)
	}
}

func TestMetricsRequireAdminScope(t *testing.T) {
	baseURL, _ := startGateway(t, gatewayOpts{policy: testPolicy()})

	resp, _ := doRequest(t, http.MethodGet, baseURL+"/metrics", "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unauthenticated scrape: expected 403, got %d", resp.StatusCode)
	}

	bobToken := login(t, baseURL, "toy", "bob", "bob-password")
	resp, _ = doRequest(t, http.MethodGet, baseURL+"/metrics", "Bearer "+bobToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expert scrape: expected 403, got %d", resp.StatusCode)
	}

	token := login(t, baseURL, "toy", "alice", "alice-password")
	resp, raw := doRequest(t, http.MethodGet, baseURL+"/metrics", "Bearer "+token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin scrape: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "queuegate_http_requests_total") {
		t.Error("expected gateway metrics in scrape output")
	}
}

func TestRateLimiting(t *testing.T) {
	baseURL, _ := startGateway(t, gatewayOpts{policy: testPolicy(), rate: 1, burst: 3})

	token := login(t, baseURL, "toy", "alice", "alice-password")
	bearer := "Bearer " + token

	// Login consumed one slot; exhaust the rest of the burst.
	limited := false
	for i := 0; i < 10; i++ {
		resp, raw := doRequest(t, http.MethodGet, baseURL+"/queue", bearer, nil)
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			if resp.Header.Get("Retry-After") == "" {
				t.Error("429 must carry a Retry-After header")
			}
			var er domain.ErrorResponse
			json.Unmarshal(raw, &er)
			if er.Error != "rate_limited" {
				t.Errorf("expected rate_limited, got %q", er.Error)
			}
			break
		}
	}
	if !limited {
		t.Error("expected to hit the rate limit within 10 requests")
	}
}
