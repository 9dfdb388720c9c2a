package keys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
)

// kvGetter is the slice of the Vault API the provider needs.
type kvGetter interface {
	Get(ctx context.Context, secretPath string) (*api.KVSecret, error)
}

var _ kvGetter = (*api.KVv1)(nil)

// VaultKeyProvider fetches private keys from a Vault KV v1 mount, keyed by
// account address, and caches them with a TTL so the signer does not hit
// Vault on every transaction.
type VaultKeyProvider struct {
	mu        sync.RWMutex
	cache     map[string]cachedKey
	ttl       time.Duration
	cleanupCh chan struct{}
	kv        kvGetter
}

type cachedKey struct {
	privateKey string
	expiresAt  time.Time
}

var _ ProviderInterface = (*VaultKeyProvider)(nil)

func NewVaultKeyProvider(client *api.Client, mount string, ttl time.Duration) *VaultKeyProvider {
	return newVaultKeyProvider(client.KVv1(mount), ttl)
}

func newVaultKeyProvider(kv kvGetter, ttl time.Duration) *VaultKeyProvider {
	p := &VaultKeyProvider{
		cache:     make(map[string]cachedKey),
		ttl:       ttl,
		cleanupCh: make(chan struct{}),
		kv:        kv,
	}
	go p.cleanupRoutine()
	return p
}

func (p *VaultKeyProvider) PrivateKey(ctx context.Context, account string) (string, error) {
	p.mu.RLock()
	key, exists := p.cache[account]
	p.mu.RUnlock()
	if exists && time.Now().Before(key.expiresAt) {
		return key.privateKey, nil
	}

	slog.Debug("Key cache miss", "account", account)

	// Fetch from Vault
	secret, err := p.kv.Get(ctx, account)
	if err != nil {
		return "", fmt.Errorf("failed to get private key from Vault: %v", err)
	}

	privateKey, ok := secret.Data["private_key"].(string)
	if !ok {
		return "", fmt.Errorf("invalid private_key format for account: %s", account)
	}

	// Cache the key
	p.mu.Lock()
	p.cache[account] = cachedKey{
		privateKey: privateKey,
		expiresAt:  time.Now().Add(p.ttl),
	}
	p.mu.Unlock()

	return privateKey, nil
}

func (p *VaultKeyProvider) cleanupRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.cleanup()
		case <-p.cleanupCh:
			return
		}
	}
}

func (p *VaultKeyProvider) cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for k, v := range p.cache {
		if now.After(v.expiresAt) {
			delete(p.cache, k)
		}
	}
}

func (p *VaultKeyProvider) Close() {
	close(p.cleanupCh)
}
