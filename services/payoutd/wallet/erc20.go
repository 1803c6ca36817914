package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ERC20Wallet captures the functionality payoutd requires from the treasury hot wallet.
type ERC20Wallet interface {
	Transfer(ctx context.Context, asset, destination string, amount uint64) (string, error)
	WaitForConfirmations(ctx context.Context, txHash string, confirmations int, pollInterval time.Duration) error
}

// FuncWallet adapts callback functions to the ERC20Wallet interface.
type FuncWallet struct {
	TransferFunc func(ctx context.Context, asset, destination string, amount uint64) (string, error)
	ConfirmFunc  func(ctx context.Context, txHash string, confirmations int, pollInterval time.Duration) error
}

// Transfer delegates to the configured callback.
func (w FuncWallet) Transfer(ctx context.Context, asset, destination string, amount uint64) (string, error) {
	if w.TransferFunc == nil {
		return "", nil
	}
	return w.TransferFunc(ctx, asset, destination, amount)
}

// WaitForConfirmations delegates to the configured callback.
func (w FuncWallet) WaitForConfirmations(ctx context.Context, txHash string, confirmations int, pollInterval time.Duration) error {
	if w.ConfirmFunc == nil {
		return nil
	}
	return w.ConfirmFunc(ctx, txHash, confirmations, pollInterval)
}

// DryRun accepts every transfer without moving funds and returns a synthetic
// transaction hash. It lets the drainer run end to end in development.
type DryRun struct{}

// Transfer returns a fresh synthetic hash.
func (DryRun) Transfer(ctx context.Context, asset, destination string, amount uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "dryrun-" + uuid.NewString(), nil
}

// WaitForConfirmations returns immediately.
func (DryRun) WaitForConfirmations(ctx context.Context, txHash string, confirmations int, pollInterval time.Duration) error {
	return ctx.Err()
}
