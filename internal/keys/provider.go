// Package keys resolves signing keys for caller accounts. Secrets reach the
// signer only through ProviderInterface, nothing else in the service sees
// where a key came from.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNoKey = errors.New("keys: no private key for account")

// ProviderInterface hands out hex encoded private keys by account address.
type ProviderInterface interface {
	PrivateKey(ctx context.Context, account string) (string, error)
}

// StaticKeyProvider serves a single key from configuration. Used for local
// development and one-shot CLI runs.
type StaticKeyProvider struct {
	account    common.Address
	privateKey string
}

var _ ProviderInterface = (*StaticKeyProvider)(nil)

func NewStaticKeyProvider(account string, privateKey string) *StaticKeyProvider {
	return &StaticKeyProvider{
		account:    common.HexToAddress(account),
		privateKey: privateKey,
	}
}

func (p *StaticKeyProvider) PrivateKey(ctx context.Context, account string) (string, error) {
	if common.HexToAddress(account) != p.account {
		return "", fmt.Errorf("%w: %s", ErrNoKey, account)
	}
	return p.privateKey, nil
}
