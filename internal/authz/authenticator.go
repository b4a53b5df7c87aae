package authz

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"queuegate/internal/domain"
)

// Authenticator verifies raw login credentials for one identity provider.
// Implementations must be safe for concurrent use. Verify returns the
// canonical username on success and ErrIncorrectCredentials when the
// username or password is wrong; the two causes are never distinguished.
type Authenticator interface {
	Verify(ctx context.Context, username, password string) (string, error)
}

// DictionaryAuthenticator verifies credentials against an in-config
// username→password table. Intended for small deployments and tests.
type DictionaryAuthenticator struct {
	passwords map[string]string
}

// NewDictionaryAuthenticator copies the given table.
func NewDictionaryAuthenticator(usersToPasswords map[string]string) *DictionaryAuthenticator {
	m := make(map[string]string, len(usersToPasswords))
	for u, p := range usersToPasswords {
		m[u] = p
	}
	return &DictionaryAuthenticator{passwords: m}
}

// Verify checks the password with a constant-time comparison.
func (a *DictionaryAuthenticator) Verify(_ context.Context, username, password string) (string, error) {
	want, ok := a.passwords[username]
	// Compare even for unknown users so the two failure causes are not
	// distinguishable by timing.
	if subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 || !ok {
		return "", domain.ErrIncorrectCredentials
	}
	return username, nil
}

// RemoteAuthenticator delegates verification to an external identity
// service over HTTP: POST {username, password} to the verify endpoint,
// expecting 200 with {"username": ...} on success and 401 on rejection.
type RemoteAuthenticator struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteAuthenticator creates a remote authenticator with a bounded
// request timeout; the engine treats the call as a black box that may
// block or fail independently.
func NewRemoteAuthenticator(endpoint string, timeout time.Duration) *RemoteAuthenticator {
	return &RemoteAuthenticator{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (a *RemoteAuthenticator) Verify(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", fmt.Errorf("encoding verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling identity service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Username string `json:"username"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decoding verify response: %w", err)
		}
		if out.Username == "" {
			return "", fmt.Errorf("identity service returned empty username")
		}
		return out.Username, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", domain.ErrIncorrectCredentials
	default:
		return "", fmt.Errorf("identity service returned %d", resp.StatusCode)
	}
}
