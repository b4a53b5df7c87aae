package authz

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"queuegate/internal/domain"
)

const apiKeySecretBytes = 24

// KeyStore mints, looks up and revokes derived API keys. Keys live in
// memory for the process lifetime; expiry is checked lazily on lookup
// and expired entries are purged opportunistically.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*domain.APIKey
	now  func() time.Time
}

// NewKeyStore returns an empty store using the given clock (injectable
// for deterministic expiry tests).
func NewKeyStore(clock func() time.Time) *KeyStore {
	if clock == nil {
		clock = time.Now
	}
	return &KeyStore{
		keys: make(map[string]*domain.APIKey),
		now:  clock,
	}
}

// Mint creates a key owned by owner. A nil scopes slice means the key
// inherits the owner's scopes dynamically; an explicit list must be a
// subset of ownerScopes, the owner's live effective scope set rather than
// the possibly narrower scopes of whatever credential presented the request,
// or the mint fails with ErrScopeExceedsAllowed and no key is created.
func (ks *KeyStore) Mint(owner domain.Principal, ownerScopes domain.ScopeSet, scopes []domain.Scope, expiresIn time.Duration, note string) (*domain.APIKey, error) {
	if scopes != nil && !domain.NewScopeSet(scopes...).IsSubsetOf(ownerScopes) {
		return nil, domain.ErrScopeExceedsAllowed
	}

	now := ks.now()
	key := &domain.APIKey{
		Owner:     owner,
		Inherit:   scopes == nil,
		Scopes:    append([]domain.Scope(nil), scopes...),
		Note:      note,
		CreatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()
	for {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		if _, taken := ks.keys[secret]; !taken {
			key.Secret = secret
			break
		}
	}
	ks.keys[key.Secret] = key
	return key, nil
}

// Lookup returns the live key for secret. Expired keys are rejected and
// removed from storage.
func (ks *KeyStore) Lookup(secret string) (*domain.APIKey, bool) {
	ks.mu.RLock()
	key, ok := ks.keys[secret]
	ks.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if key.Expired(ks.now()) {
		ks.mu.Lock()
		delete(ks.keys, secret)
		ks.mu.Unlock()
		return nil, false
	}
	return key, true
}

// Revoke destroys the key with the given secret.
func (ks *KeyStore) Revoke(secret string) bool {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if _, ok := ks.keys[secret]; !ok {
		return false
	}
	delete(ks.keys, secret)
	return true
}

// ListByOwner returns the live keys owned by the named principal,
// ordered by creation time.
func (ks *KeyStore) ListByOwner(owner domain.Principal) []*domain.APIKey {
	now := ks.now()
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	var out []*domain.APIKey
	for _, key := range ks.keys {
		if key.Owner.Name == owner.Name && key.Owner.Type == owner.Type && !key.Expired(now) {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PurgeExpired removes expired keys and reports how many were removed.
// Lazy expiry on Lookup makes this optional; it only reclaims storage.
func (ks *KeyStore) PurgeExpired() int {
	now := ks.now()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	n := 0
	for secret, key := range ks.keys {
		if key.Expired(now) {
			delete(ks.keys, secret)
			n++
		}
	}
	return n
}

// Count returns the number of stored keys, expired or not (for tests).
func (ks *KeyStore) Count() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

func randomSecret() (string, error) {
	b := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating API key secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
