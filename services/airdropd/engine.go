package airdropd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"refdrop/config"
	"refdrop/core/events"
	"refdrop/crypto"
	"refdrop/native/airdrop"
	"refdrop/observability"
	"refdrop/storage"
)

// derivedAddresses adapts the key-derivation resolver to the engine.
type derivedAddresses struct {
	resolver *crypto.DerivedResolver
}

func (d derivedAddresses) ResolveAddress(ctx context.Context, principal airdrop.Principal) (airdrop.Address, error) {
	address, err := d.resolver.Resolve(ctx, string(principal))
	if err != nil {
		return "", err
	}
	return airdrop.Address(address), nil
}

// loadMasterKey opens the signer keystore. Without a keystore an ephemeral
// key is generated, which only suits local development since every restart
// yields new addresses.
func loadMasterKey(cfg SignerConfig, passphrase func() (string, error), logger *slog.Logger) (*crypto.PrivateKey, error) {
	path := strings.TrimSpace(cfg.Keystore)
	if path == "" {
		logger.Warn("signer keystore not configured, using an ephemeral master key")
		return crypto.GeneratePrivateKey()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("signer keystore: %w", err)
	}
	secret, err := passphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, secret)
}

// buildEngine restores the engine from db, or starts a fresh one from params,
// and seeds the configured roles. Every committed mutation is written back to db.
func buildEngine(params *config.File, cfg Config, resolver airdrop.AddressResolver, db storage.Database, logger *slog.Logger) (*airdrop.Engine, error) {
	opts := []airdrop.Option{
		airdrop.WithEmitter(events.LogEmitter{Logger: logger}),
		airdrop.WithMetrics(observability.Airdrop()),
		airdrop.WithLogger(logger),
		airdrop.WithCommitHook(func(snap airdrop.Snapshot) error {
			return airdrop.SaveSnapshot(db, snap)
		}),
	}

	snap, found, err := airdrop.LoadSnapshot(db)
	if err != nil {
		return nil, err
	}
	var engine *airdrop.Engine
	if found {
		engine, err = airdrop.Restore(params.Airdrop.Params(), resolver, snap, opts...)
		if err != nil {
			return nil, fmt.Errorf("restore engine: %w", err)
		}
		logger.Info("engine restored from snapshot", slog.Int("ledgerEntries", len(snap.Ledger)), slog.Bool("killed", snap.Killed))
	} else {
		state := airdrop.NewState()
		state.Killed = params.Pauses.Airdrop
		engine, err = airdrop.NewEngine(params.Airdrop.Params(), resolver, append(opts, airdrop.WithState(state))...)
		if err != nil {
			return nil, fmt.Errorf("create engine: %w", err)
		}
	}

	admins := make([]airdrop.Principal, 0, len(cfg.BootstrapAdmins))
	for _, admin := range cfg.BootstrapAdmins {
		admins = append(admins, airdrop.Principal(strings.TrimSpace(admin)))
	}
	managers := make(map[airdrop.Principal]string, len(cfg.Managers))
	for principal, name := range cfg.Managers {
		managers[airdrop.Principal(strings.TrimSpace(principal))] = name
	}
	engine.Seed(admins, managers)
	if len(admins) > 0 && !engine.IsAdmin(admins[0]) {
		return nil, errors.New("bootstrap admin could not be seeded")
	}
	return engine, nil
}

func saveFinal(engine *airdrop.Engine, db storage.Database) error {
	if err := airdrop.SaveSnapshot(db, engine.Snapshot()); err != nil {
		return fmt.Errorf("final snapshot: %w", err)
	}
	return nil
}
