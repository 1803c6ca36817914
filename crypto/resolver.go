package crypto

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// DerivedResolver maps principals to payout addresses by deriving one
// secp256k1 key per principal from a master key. The same principal always
// resolves to the same address.
type DerivedResolver struct {
	master  []byte
	latency time.Duration
}

// NewDerivedResolver returns a resolver rooted at master. A positive latency
// delays every resolution, which simulates a remote key service.
func NewDerivedResolver(master *PrivateKey, latency time.Duration) (*DerivedResolver, error) {
	if master == nil || master.PrivateKey == nil {
		return nil, errors.New("crypto: nil master key")
	}
	return &DerivedResolver{master: master.Bytes(), latency: latency}, nil
}

// Derive returns the private key assigned to principal.
func (r *DerivedResolver) Derive(principal string) (*PrivateKey, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, errors.New("crypto: empty principal")
	}
	seed := crypto.Keccak256(r.master, []byte(principal))
	// A digest outside the curve order is astronomically rare; rehash until valid.
	for {
		key, err := crypto.ToECDSA(seed)
		if err == nil {
			return &PrivateKey{key}, nil
		}
		seed = crypto.Keccak256(seed)
	}
}

// Resolve returns the checksummed address for principal, honouring ctx while
// the configured latency elapses.
func (r *DerivedResolver) Resolve(ctx context.Context, principal string) (string, error) {
	if r.latency > 0 {
		timer := time.NewTimer(r.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	key, err := r.Derive(principal)
	if err != nil {
		return "", err
	}
	return key.PubKey().Address(), nil
}
