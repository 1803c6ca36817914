package airdrop

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"refdrop/core/events"
	"refdrop/storage"
)

const (
	testAdmin   Principal = "admin"
	testManager Principal = "manager"
)

func addressOf(_ context.Context, p Principal) (Address, error) {
	return Address("addr-" + string(p)), nil
}

type fixture struct {
	engine   *Engine
	recorder *events.Recorder
}

func newFixture(t *testing.T, params Params, codes int, opts ...Option) *fixture {
	t.Helper()
	recorder := &events.Recorder{}
	opts = append([]Option{WithState(NewState(testAdmin)), WithEmitter(recorder)}, opts...)
	engine, err := NewEngine(params, ResolverFunc(addressOf), opts...)
	require.NoError(t, err)
	require.NoError(t, engine.AddManager(testAdmin, testManager, "ops"))
	pool := make([]Code, codes)
	for i := range pool {
		pool[i] = Code(string(rune('a'+i/26)) + string(rune('a'+i%26)))
	}
	if codes > 0 {
		require.NoError(t, engine.AddCodes(testAdmin, pool))
	}
	return &fixture{engine: engine, recorder: recorder}
}

func (f *fixture) rootCode(t *testing.T) Code {
	t.Helper()
	info, err := f.engine.GenerateCode(testManager)
	require.NoError(t, err)
	return info.Code
}

func (f *fixture) redeem(t *testing.T, p Principal, code Code) Info {
	t.Helper()
	info, err := f.engine.RedeemCode(context.Background(), p, code)
	require.NoError(t, err)
	return info
}

func (f *fixture) ledger(t *testing.T) []PayoutEntry {
	t.Helper()
	_, entries, err := f.engine.GetAirdrop(testAdmin, 0)
	require.NoError(t, err)
	return entries
}

func TestRedeemAcrossDepths(t *testing.T) {
	f := newFixture(t, DefaultParams(), 7)

	root := f.rootCode(t)
	alice := f.redeem(t, "alice", root)
	require.Equal(t, Address("addr-alice"), alice.Address)
	require.Len(t, alice.Children, 3)

	bob := f.redeem(t, "bob", alice.Children[0].Code)
	require.Len(t, bob.Children, 3)

	carol := f.redeem(t, "carol", bob.Children[0].Code)
	require.Empty(t, carol.Children)

	require.Equal(t, []PayoutEntry{
		{Address: "addr-alice", Amount: 100},
		{Address: "addr-alice", Amount: 100},
		{Address: "addr-bob", Amount: 100},
		{Address: "addr-bob", Amount: 100},
		{Address: "addr-carol", Amount: 100},
	}, f.ledger(t))

	stats := f.engine.Stats()
	require.Equal(t, uint64(DefaultInitialTokens-400-400-100), stats.SupplyRemaining)
	require.Equal(t, 3, stats.Registrations)
	require.Equal(t, 7, stats.CodesMinted)
	require.Equal(t, 3, stats.CodesRedeemed)
	require.Zero(t, stats.PoolRemaining)

	again, err := f.engine.GenerateCode(testManager)
	require.ErrorIs(t, err, ErrNoMoreCodes)
	require.Zero(t, again.CodesGenerated)

	info, err := f.engine.GetCode("alice")
	require.NoError(t, err)
	require.Equal(t, root, info.Code)
	require.Len(t, info.Children, 3)
	redeemedChildren := 0
	for _, child := range info.Children {
		if child.Redeemed {
			redeemedChildren++
		}
	}
	require.Equal(t, 1, redeemedChildren)
}

func TestRedeemUpdatesManagerCounters(t *testing.T) {
	f := newFixture(t, DefaultParams(), 8)
	first := f.rootCode(t)
	generated, err := f.engine.GenerateCode(testManager)
	require.NoError(t, err)
	require.Equal(t, uint64(2), generated.CodesGenerated)
	require.Zero(t, generated.CodesRedeemed)

	f.redeem(t, "alice", first)
	record, ok := f.engine.state.Registry.Manager(testManager)
	require.True(t, ok)
	require.Equal(t, ManagerRecord{Name: "ops", CodesGenerated: 2, CodesRedeemed: 1}, record)
	require.Len(t, f.ledger(t), 1)
}

func TestRedeemRejections(t *testing.T) {
	f := newFixture(t, DefaultParams(), 8)
	root := f.rootCode(t)
	alice := f.redeem(t, "alice", root)

	_, err := f.engine.RedeemCode(context.Background(), "alice", alice.Children[0].Code)
	require.ErrorIs(t, err, ErrCannotRegisterMultipleTimes)

	_, err = f.engine.RedeemCode(context.Background(), "bob", root)
	require.ErrorIs(t, err, ErrCodeAlreadyRedeemed)

	_, err = f.engine.RedeemCode(context.Background(), "bob", "nope")
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = f.engine.RedeemCode(context.Background(), AnonymousPrincipal, alice.Children[0].Code)
	require.ErrorIs(t, err, ErrAnonymousCaller)

	_, err = f.engine.GetCode("bob")
	require.ErrorIs(t, err, ErrCodeNotFound)
	_, err = f.engine.HasRedeemed("bob")
	require.ErrorIs(t, err, ErrCodeNotFound)
	redeemed, err := f.engine.HasRedeemed("alice")
	require.NoError(t, err)
	require.True(t, redeemed)
}

func TestRedeemFailsWithoutChildrenCodes(t *testing.T) {
	f := newFixture(t, DefaultParams(), 3)
	root := f.rootCode(t)
	before := f.engine.Stats()

	_, err := f.engine.RedeemCode(context.Background(), "alice", root)
	require.ErrorIs(t, err, ErrNoMoreCodes)

	after := f.engine.Stats()
	require.Equal(t, before.SupplyRemaining, after.SupplyRemaining)
	require.Zero(t, after.Registrations)
	require.Zero(t, after.LedgerEntries)
	require.Equal(t, 2, after.PoolRemaining)
}

func TestRedeemFailsWhenSupplyRunsOut(t *testing.T) {
	params := DefaultParams()
	params.InitialTokens = params.TokenPerPerson
	f := newFixture(t, params, 10)

	f.redeem(t, "alice", f.rootCode(t))
	second := f.rootCode(t)
	_, err := f.engine.RedeemCode(context.Background(), "bob", second)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	state, ok := f.engine.state.Tree.Get(second)
	require.True(t, ok)
	require.False(t, state.Redeemed)
	require.False(t, f.engine.state.Registry.IsRegistered("bob"))
	require.Len(t, f.ledger(t), 1)
}

func TestUnresolvableAddress(t *testing.T) {
	resolver := ResolverFunc(func(context.Context, Principal) (Address, error) {
		return "", errors.New("key service down")
	})
	engine, err := NewEngine(DefaultParams(), resolver, WithState(NewState(testAdmin)))
	require.NoError(t, err)
	require.NoError(t, engine.AddManager(testAdmin, testManager, ""))
	require.NoError(t, engine.AddCodes(testAdmin, []Code{"r"}))
	root, err := engine.GenerateCode(testManager)
	require.NoError(t, err)

	_, err = engine.RedeemCode(context.Background(), "alice", root.Code)
	require.ErrorIs(t, err, ErrUnknownAddress)
	require.Equal(t, "UnknownAddress", Kind(err))
}

func TestForfeitedReferralReward(t *testing.T) {
	remaining := uint64(DefaultInitialTokens)
	snap := Snapshot{
		Version:         snapshotVersion,
		Pool:            []Code{"c1", "c2", "c3"},
		Codes:           map[Code]CodeState{"orphan": {ParentPrincipal: "ghost", Depth: 1}},
		Admins:          []Principal{testAdmin},
		SupplyRemaining: &remaining,
	}
	recorder := &events.Recorder{}
	engine, err := Restore(DefaultParams(), ResolverFunc(addressOf), snap, WithEmitter(recorder))
	require.NoError(t, err)

	_, err = engine.RedeemCode(context.Background(), "alice", "orphan")
	require.NoError(t, err)

	forfeited := recorder.OfType(events.TypeAirdropRewardForfeited)
	require.Len(t, forfeited, 1)
	require.Equal(t, events.AirdropRewardForfeited{Parent: "ghost", Code: "orphan", Amount: 100}, forfeited[0])

	_, entries, err := engine.GetAirdrop(testAdmin, 0)
	require.NoError(t, err)
	require.Equal(t, []PayoutEntry{{Address: "addr-alice", Amount: 100}}, entries)
}

func TestEmergencyStop(t *testing.T) {
	f := newFixture(t, DefaultParams(), 8)
	root := f.rootCode(t)

	require.ErrorIs(t, f.engine.Kill("alice"), ErrUnauthorized)
	require.NoError(t, f.engine.Kill(testAdmin))
	require.True(t, f.engine.Killed())

	_, err := f.engine.RedeemCode(context.Background(), "alice", root)
	require.ErrorIs(t, err, ErrCanisterKilled)
	_, _, err = f.engine.GetAirdrop(testAdmin, 0)
	require.ErrorIs(t, err, ErrCanisterKilled)
	require.ErrorIs(t, f.engine.PutAirdrop(testAdmin, 0, PayoutEntry{Address: "x"}), ErrCanisterKilled)
	_, err = f.engine.GetCode("alice")
	require.ErrorIs(t, err, ErrCanisterKilled)
	_, err = f.engine.HasRedeemed("alice")
	require.ErrorIs(t, err, ErrCanisterKilled)

	// Code generation and role management stay available while stopped.
	spare, err := f.engine.GenerateCode(testManager)
	require.NoError(t, err)
	require.NotEmpty(t, spare.Code)
	require.Equal(t, uint64(2), spare.CodesGenerated)
	require.NoError(t, f.engine.AddAdmin(testAdmin, "second"))
	require.NoError(t, f.engine.Revive("second"))
	f.redeem(t, "alice", root)

	info, err := f.engine.GetCode("alice")
	require.NoError(t, err)
	require.Equal(t, root, info.Code)
	redeemed, err := f.engine.HasRedeemed("alice")
	require.NoError(t, err)
	require.True(t, redeemed)

	stops := f.recorder.OfType(events.TypeAirdropEmergencyStop)
	require.Len(t, stops, 2)
}

func TestGeneratedCodesStayOutOfLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	f := newFixture(t, DefaultParams(), 4, WithEmitter(events.LogEmitter{Logger: logger}))

	root := f.rootCode(t)
	require.Contains(t, buf.String(), events.TypeAirdropCodeGenerated)
	require.NotContains(t, buf.String(), `"`+string(root)+`"`)

	f.redeem(t, "alice", root)
	require.Contains(t, buf.String(), events.TypeAirdropCodeRedeemed)
	require.NotContains(t, buf.String(), `"`+string(root)+`"`)
	for _, child := range f.ledgerChildren(t, "alice") {
		require.NotContains(t, buf.String(), `"`+string(child)+`"`)
	}
}

func (f *fixture) ledgerChildren(t *testing.T, p Principal) []Code {
	t.Helper()
	info, err := f.engine.GetCode(p)
	require.NoError(t, err)
	out := make([]Code, 0, len(info.Children))
	for _, child := range info.Children {
		out = append(out, child.Code)
	}
	return out
}

func TestAdminOperationsRequireRole(t *testing.T) {
	f := newFixture(t, DefaultParams(), 0)

	require.ErrorIs(t, f.engine.AddCodes("mallory", []Code{"x"}), ErrUnauthorized)
	require.ErrorIs(t, f.engine.AddAdmin("mallory", "mallory"), ErrUnauthorized)
	require.ErrorIs(t, f.engine.AddManager("mallory", "mallory", ""), ErrUnauthorized)
	_, _, err := f.engine.GetAirdrop("mallory", 0)
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, f.engine.PutAirdrop("mallory", 0, PayoutEntry{}), ErrUnauthorized)
	_, err = f.engine.GenerateCode("mallory")
	require.ErrorIs(t, err, ErrUnauthorized)

	require.ErrorIs(t, f.engine.AddManager(testAdmin, AnonymousPrincipal, ""), ErrAnonymousCaller)
	require.ErrorIs(t, f.engine.AddCodes(testAdmin, []Code{"dup", "dup"}), ErrGeneral)
	require.ErrorIs(t, f.engine.AddCodes(testAdmin, []Code{" "}), ErrGeneral)
	require.Zero(t, f.engine.Stats().PoolRemaining)
}

func TestPutAirdropFlipsAddressEntries(t *testing.T) {
	f := newFixture(t, DefaultParams(), 10)
	alice := f.redeem(t, "alice", f.rootCode(t))
	f.redeem(t, "bob", alice.Children[0].Code)

	require.NoError(t, f.engine.PutAirdrop(testAdmin, 0, PayoutEntry{Address: "addr-alice", Amount: 200}))
	cursor, entries, err := f.engine.GetAirdrop(testAdmin, 0)
	require.NoError(t, err)
	require.Equal(t, Index(2), cursor)
	require.Equal(t, []PayoutEntry{{Address: "addr-bob", Amount: 100}}, entries)

	redeemed, err := f.engine.HasRedeemed("alice")
	require.NoError(t, err)
	require.True(t, redeemed)
}

func TestConcurrentRedeemSamePrincipal(t *testing.T) {
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	resolver := ResolverFunc(func(ctx context.Context, p Principal) (Address, error) {
		entered.Done()
		<-release
		return addressOf(ctx, p)
	})
	engine, err := NewEngine(DefaultParams(), resolver, WithState(NewState(testAdmin)))
	require.NoError(t, err)
	require.NoError(t, engine.AddManager(testAdmin, testManager, ""))
	require.NoError(t, engine.AddCodes(testAdmin, []Code{"r1", "r2", "c1", "c2", "c3", "c4", "c5", "c6"}))
	first, err := engine.GenerateCode(testManager)
	require.NoError(t, err)
	second, err := engine.GenerateCode(testManager)
	require.NoError(t, err)

	errs := make(chan error, 2)
	for _, code := range []Code{first.Code, second.Code} {
		go func(code Code) {
			_, err := engine.RedeemCode(context.Background(), "alice", code)
			errs <- err
		}(code)
	}
	entered.Wait()
	close(release)

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], ErrCannotRegisterMultipleTimes)

	stats := engine.Stats()
	require.Equal(t, 1, stats.Registrations)
	require.Equal(t, 1, stats.CodesRedeemed)
	require.Equal(t, uint64(DefaultInitialTokens-DefaultTokenPerPerson), stats.SupplyRemaining)
}

func TestConcurrentRedeemSameCode(t *testing.T) {
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(2)
	resolver := ResolverFunc(func(ctx context.Context, p Principal) (Address, error) {
		entered.Done()
		<-release
		return addressOf(ctx, p)
	})
	engine, err := NewEngine(DefaultParams(), resolver, WithState(NewState(testAdmin)))
	require.NoError(t, err)
	require.NoError(t, engine.AddManager(testAdmin, testManager, ""))
	require.NoError(t, engine.AddCodes(testAdmin, []Code{"r1", "c1", "c2", "c3", "c4", "c5", "c6"}))
	root, err := engine.GenerateCode(testManager)
	require.NoError(t, err)

	errs := make(chan error, 2)
	for _, p := range []Principal{"alice", "bob"} {
		go func(p Principal) {
			_, err := engine.RedeemCode(context.Background(), p, root.Code)
			errs <- err
		}(p)
	}
	entered.Wait()
	close(release)

	var failures []error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	require.ErrorIs(t, failures[0], ErrCodeAlreadyRedeemed)
	require.Equal(t, 3, engine.Stats().PoolRemaining)
}

func TestFailedPersistKeepsMutation(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	hook := WithCommitHook(func(Snapshot) error {
		calls++
		return errors.New("disk full")
	})
	f := newFixture(t, DefaultParams(), 4, hook, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
	require.Positive(t, calls)

	f.redeem(t, "alice", f.rootCode(t))
	require.Equal(t, 1, f.engine.Stats().PendingEntries)
	require.Contains(t, buf.String(), "persist snapshot failed")
	require.Contains(t, buf.String(), "disk full")
}

func TestSnapshotPersistAndRestore(t *testing.T) {
	db := storage.NewMemDB()
	hook := WithCommitHook(func(snap Snapshot) error { return SaveSnapshot(db, snap) })
	f := newFixture(t, DefaultParams(), 10, hook)
	alice := f.redeem(t, "alice", f.rootCode(t))
	require.NoError(t, f.engine.Kill(testAdmin))

	snap, found, err := LoadSnapshot(db)
	require.NoError(t, err)
	require.True(t, found)

	restored, err := Restore(DefaultParams(), ResolverFunc(addressOf), snap)
	require.NoError(t, err)
	require.True(t, restored.Killed())
	require.Equal(t, f.engine.Stats(), restored.Stats())
	require.NoError(t, restored.Revive(testAdmin))

	info, err := restored.GetCode("alice")
	require.NoError(t, err)
	require.Equal(t, alice.Children, info.Children)
	require.True(t, restored.IsManager(testManager))

	_, err = restored.RedeemCode(context.Background(), "alice", alice.Children[0].Code)
	require.ErrorIs(t, err, ErrCannotRegisterMultipleTimes)
	_, err = restored.RedeemCode(context.Background(), "bob", alice.Children[1].Code)
	require.NoError(t, err)
}

func TestLoadSnapshotEmpty(t *testing.T) {
	_, found, err := LoadSnapshot(storage.NewMemDB())
	require.NoError(t, err)
	require.False(t, found)

	_, err = StateFromSnapshot(Snapshot{Version: 99})
	require.ErrorIs(t, err, ErrGeneral)
}
