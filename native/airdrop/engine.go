package airdrop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"refdrop/core/events"
	nativecommon "refdrop/native/common"
	"refdrop/observability"
	"refdrop/observability/logging"
)

// AddressResolver derives the payout address of a principal. It is the only
// call the engine makes without holding its lock.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, principal Principal) (Address, error)
}

// ResolverFunc adapts a function to AddressResolver.
type ResolverFunc func(ctx context.Context, principal Principal) (Address, error)

// ResolveAddress implements AddressResolver.
func (f ResolverFunc) ResolveAddress(ctx context.Context, principal Principal) (Address, error) {
	return f(ctx, principal)
}

// Engine owns the airdrop state and runs every operation against it.
// Synchronous segments run under mu; RedeemCode releases it while the
// address is resolved.
type Engine struct {
	params   Params
	tokens   TokenLedger
	resolver AddressResolver
	emitter  events.Emitter
	metrics  *observability.AirdropMetrics
	logger   *slog.Logger
	tracer   trace.Tracer
	onCommit func(Snapshot) error
	now      func() time.Time

	mu    sync.Mutex
	state *State
}

// Option customises an Engine.
type Option func(*Engine)

// WithTokenLedger replaces the default in-process supply.
func WithTokenLedger(l TokenLedger) Option {
	return func(e *Engine) { e.tokens = l }
}

// WithEmitter sets the event emitter.
func WithEmitter(em events.Emitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *observability.AirdropMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithState starts the engine from a restored state.
func WithState(st *State) Option {
	return func(e *Engine) { e.state = st }
}

// WithCommitHook registers a function called with a fresh snapshot after
// every committed mutation. It runs under the engine lock so snapshots reach
// the hook in commit order.
func WithCommitHook(fn func(Snapshot) error) Option {
	return func(e *Engine) { e.onCommit = fn }
}

// WithClock sets the time source used for latency measurements.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine. The resolver is required.
func NewEngine(params Params, resolver AddressResolver, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: address resolver required", ErrGeneral)
	}
	e := &Engine{
		params:   params,
		resolver: resolver,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("refdrop/native/airdrop"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.state == nil {
		e.state = NewState()
	}
	if e.tokens == nil {
		e.tokens = NewSupply(params.InitialTokens)
	}
	if e.emitter == nil {
		e.emitter = events.NoopEmitter{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slog.String("component", moduleName))
	e.metrics.SetEmergencyStop(e.state.Killed)
	e.metrics.SetPoolRemaining(e.state.Pool.Len())
	return e, nil
}

// Params returns the engine parameters.
func (e *Engine) Params() Params {
	return e.params
}

func (e *Engine) guard() error {
	return nativecommon.GuardAs(e.state, moduleName, ErrCanisterKilled)
}

func (e *Engine) requireAdmin(caller Principal) error {
	if !e.state.Registry.IsAdmin(caller) {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller)
	}
	return nil
}

func (e *Engine) commit() {
	e.metrics.SetPoolRemaining(e.state.Pool.Len())
	if e.onCommit == nil {
		return
	}
	if err := e.onCommit(e.snapshotLocked()); err != nil {
		e.metrics.RecordPersistFailure()
		e.logger.Error("persist snapshot failed", slog.Any("error", err))
	}
}

// AddCodes appends pre-generated codes to the pool. Blank codes and codes
// already known to the pool or the tree are rejected before any is added.
func (e *Engine) AddCodes(caller Principal, codes []Code) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	seen := make(map[Code]struct{}, len(codes))
	cleaned := make([]Code, 0, len(codes))
	for _, raw := range codes {
		code := Code(strings.TrimSpace(string(raw)))
		if code == "" {
			return fmt.Errorf("%w: blank code", ErrGeneral)
		}
		if _, dup := seen[code]; dup || e.state.Tree.Has(code) || e.state.Pool.Contains(code) {
			return fmt.Errorf("%w: duplicate code %q", ErrGeneral, code)
		}
		seen[code] = struct{}{}
		cleaned = append(cleaned, code)
	}
	e.state.Pool.Add(cleaned...)
	e.emitter.Emit(events.AirdropCodesAdded{Added: len(cleaned), Remaining: e.state.Pool.Len()})
	e.commit()
	return nil
}

// AddAdmin grants the admin role to principal.
func (e *Engine) AddAdmin(caller, principal Principal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if principal.IsAnonymous() {
		return ErrAnonymousCaller
	}
	e.state.Registry.AddAdmin(principal)
	e.emitter.Emit(events.AirdropRoleGranted{Admin: string(caller), Principal: string(principal), Role: "admin"})
	e.commit()
	return nil
}

// AddManager authorises principal to generate root codes.
func (e *Engine) AddManager(caller, principal Principal, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if principal.IsAnonymous() {
		return ErrAnonymousCaller
	}
	record := e.state.Registry.AddManager(principal, name)
	e.emitter.Emit(events.AirdropRoleGranted{Admin: string(caller), Principal: string(principal), Role: "manager", Name: record.Name})
	e.commit()
	return nil
}

// Seed grants roles listed in operator configuration. It bypasses the admin
// check and is meant to run once at startup. Anonymous principals are skipped.
func (e *Engine) Seed(admins []Principal, managers map[Principal]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, admin := range admins {
		if !admin.IsAnonymous() {
			e.state.Registry.AddAdmin(admin)
		}
	}
	for principal, name := range managers {
		if !principal.IsAnonymous() {
			e.state.Registry.AddManager(principal, name)
		}
	}
	e.commit()
}

// IsManager reports whether principal may generate codes.
func (e *Engine) IsManager(principal Principal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.IsManager(principal)
}

// IsAdmin reports whether principal holds the admin role.
func (e *Engine) IsAdmin(principal Principal) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Registry.IsAdmin(principal)
}

// GenerateCode draws a code from the pool and mints it as a root code owned
// by the calling manager. The emergency stop does not block it.
func (e *Engine) GenerateCode(caller Principal) (CodeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.Registry.IsManager(caller) {
		return CodeInfo{}, fmt.Errorf("%w: %s is not a manager", ErrUnauthorized, caller)
	}
	code, err := e.state.Pool.Draw()
	if err != nil {
		return CodeInfo{}, err
	}
	e.state.Tree.Mint(code, caller, 0)
	record := e.state.Registry.recordGenerated(caller)
	e.emitter.Emit(events.AirdropCodeGenerated{Manager: string(caller), Code: string(code)})
	e.metrics.RecordCodesMinted(1)
	e.commit()
	return CodeInfo{Code: code, CodesGenerated: record.CodesGenerated, CodesRedeemed: record.CodesRedeemed}, nil
}

// RedeemCode consumes code on behalf of caller, queues the rewards and mints
// the children the caller can share. The caller's address is resolved before
// the state is locked; every check that guards a mutation runs again after
// the resolver returns, so interleaved calls cannot register a principal
// twice or redeem a code twice.
func (e *Engine) RedeemCode(ctx context.Context, caller Principal, code Code) (info Info, err error) {
	ctx, span := e.tracer.Start(ctx, "airdrop.redeem", trace.WithAttributes(
		attribute.String("airdrop.principal", string(caller)),
	))
	defer func() {
		e.metrics.RecordRedemption(Kind(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, Kind(err))
		}
		span.End()
	}()

	if caller.IsAnonymous() {
		return Info{}, ErrAnonymousCaller
	}
	e.mu.Lock()
	guardErr := e.guard()
	e.mu.Unlock()
	if guardErr != nil {
		return Info{}, guardErr
	}

	start := e.now()
	address, err := e.resolver.ResolveAddress(ctx, caller)
	e.metrics.ObserveResolve(e.now().Sub(start))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrUnknownAddress, err)
	}
	if strings.TrimSpace(string(address)) == "" {
		return Info{}, fmt.Errorf("%w: empty address for %s", ErrUnknownAddress, caller)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.redeemLocked(caller, code, address)
}

func (e *Engine) redeemLocked(caller Principal, code Code, address Address) (Info, error) {
	st := e.state
	if st.Registry.IsRegistered(caller) {
		return Info{}, ErrCannotRegisterMultipleTimes
	}
	codeState, ok := st.Tree.Get(code)
	if !ok {
		return Info{}, ErrCodeNotFound
	}
	if codeState.Redeemed {
		return Info{}, ErrCodeAlreadyRedeemed
	}
	spawn := e.params.SpawnsChildren(codeState.Depth)
	if spawn && uint64(st.Pool.Len()) < e.params.NumberOfChildren {
		return Info{}, fmt.Errorf("%w: %d codes needed for children, %d left", ErrNoMoreCodes, e.params.NumberOfChildren, st.Pool.Len())
	}

	// Nothing below may fail once the supply has been charged.
	deduction := e.params.Deduction(codeState.Depth)
	if err := e.tokens.Deduct(deduction); err != nil {
		return Info{}, err
	}

	quarter := e.params.QuarterReward()
	parent := codeState.ParentPrincipal
	switch {
	case st.Registry.IsManager(parent):
		st.Registry.recordRedeemed(parent)
	default:
		if parentReg, registered := st.Registry.Registration(parent); registered {
			e.queueReward(parentReg.Address, quarter, events.RewardReasonReferral)
		} else {
			e.emitter.Emit(events.AirdropRewardForfeited{Parent: string(parent), Code: string(code), Amount: quarter})
			e.metrics.RecordForfeited(quarter)
			e.logger.Warn("referral reward forfeited, parent has no address",
				slog.String("parent", string(parent)),
				logging.MaskField("code", string(code)))
		}
	}

	if err := st.Registry.Register(caller, code, address); err != nil {
		panic(fmt.Sprintf("airdrop: registration of %s failed after validation: %v", caller, err))
	}
	if err := st.Tree.MarkRedeemed(code); err != nil {
		panic(fmt.Sprintf("airdrop: marking %q redeemed failed after validation: %v", code, err))
	}
	e.queueReward(address, quarter, events.RewardReasonRedeemer)

	var children []ChildCode
	if spawn {
		drawn, err := st.Pool.DrawN(int(e.params.NumberOfChildren))
		if err != nil {
			panic(fmt.Sprintf("airdrop: drawing children failed after validation: %v", err))
		}
		children = make([]ChildCode, 0, len(drawn))
		for _, child := range drawn {
			st.Tree.Mint(child, caller, codeState.Depth+1)
			children = append(children, ChildCode{Code: child})
		}
		e.metrics.RecordCodesMinted(len(children))
	}

	e.emitter.Emit(events.AirdropCodeRedeemed{
		Principal: string(caller),
		Code:      string(code),
		Address:   string(address),
		Depth:     codeState.Depth,
		Deducted:  deduction,
		Children:  len(children),
	})
	e.metrics.SetSupplyRemaining(e.tokens.Remaining())
	e.commit()
	return Info{Code: code, Principal: caller, Address: address, Children: children}, nil
}

func (e *Engine) queueReward(address Address, amount uint64, reason string) {
	idx := e.state.Ledger.Append(address, amount)
	e.emitter.Emit(events.AirdropRewardQueued{Index: uint64(idx), Address: string(address), Amount: amount, Reason: reason})
	e.metrics.RecordQueued(reason, amount)
}

// GetCode returns the caller's registration and the children it minted.
func (e *Engine) GetCode(caller Principal) (Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return Info{}, err
	}
	reg, ok := e.state.Registry.Registration(caller)
	if !ok {
		return Info{}, ErrCodeNotFound
	}
	children := e.state.Tree.ChildrenOf(caller)
	if len(children) == 0 {
		children = nil
	}
	return Info{Code: reg.Code, Principal: caller, Address: reg.Address, Children: children}, nil
}

// GetAirdrop exports the untransferred payout entries from index onwards.
func (e *Engine) GetAirdrop(caller Principal, index Index) (Index, []PayoutEntry, error) {
	cursor, entries, _, err := e.ExportAirdrop(caller, index)
	return cursor, entries, err
}

// ExportAirdrop is GetAirdrop plus the ledger index of every exported entry,
// read under the same lock.
func (e *Engine) ExportAirdrop(caller Principal, index Index) (Index, []PayoutEntry, []Index, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return index, nil, nil, err
	}
	if err := e.guard(); err != nil {
		return index, nil, nil, err
	}
	cursor, entries, indices := e.state.Ledger.ExportIndexed(index)
	return cursor, entries, indices, nil
}

// PutAirdrop acknowledges that entry's address has been paid, marking every
// entry for that address from index onwards as transferred.
func (e *Engine) PutAirdrop(caller Principal, index Index, entry PayoutEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.guard(); err != nil {
		return err
	}
	flipped := e.state.Ledger.Acknowledge(index, entry)
	e.emitter.Emit(events.AirdropPayoutAcknowledged{From: uint64(index), Address: string(entry.Address), Flipped: flipped})
	e.metrics.RecordAcknowledged(flipped)
	if flipped > 0 {
		e.commit()
	}
	return nil
}

// HasRedeemed reports whether the caller's address was ever queued for a
// reward. It does not tell whether the reward has been paid.
func (e *Engine) HasRedeemed(caller Principal) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.guard(); err != nil {
		return false, err
	}
	reg, ok := e.state.Registry.Registration(caller)
	if !ok {
		return false, ErrCodeNotFound
	}
	return e.state.Ledger.Contains(reg.Address), nil
}

// Kill engages the emergency stop.
func (e *Engine) Kill(caller Principal) error {
	return e.setKilled(caller, true)
}

// Revive releases the emergency stop.
func (e *Engine) Revive(caller Principal) error {
	return e.setKilled(caller, false)
}

func (e *Engine) setKilled(caller Principal, killed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	e.state.Killed = killed
	e.metrics.SetEmergencyStop(killed)
	e.emitter.Emit(events.AirdropEmergencyStop{Admin: string(caller), Engaged: killed})
	e.logger.Warn("emergency stop toggled", slog.String("admin", string(caller)), slog.Bool("engaged", killed))
	e.commit()
	return nil
}

// Killed reports whether the emergency stop is engaged.
func (e *Engine) Killed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Killed
}

// Stats returns an operator summary of the engine state.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	pending, amount := e.state.Ledger.Pending()
	return Stats{
		Killed:          e.state.Killed,
		PoolRemaining:   e.state.Pool.Len(),
		CodesMinted:     e.state.Tree.Len(),
		CodesRedeemed:   e.state.Tree.Redeemed(),
		Registrations:   len(e.state.Registry.registrations),
		Managers:        len(e.state.Registry.managers),
		LedgerEntries:   e.state.Ledger.Len(),
		PendingEntries:  pending,
		PendingAmount:   amount,
		SupplyRemaining: e.tokens.Remaining(),
	}
}

// Snapshot returns the persisted form of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := e.state.snapshot()
	remaining := e.tokens.Remaining()
	snap.SupplyRemaining = &remaining
	return snap
}

// Restore rebuilds an engine from a snapshot, restoring the supply balance
// when the engine uses the in-process Supply.
func Restore(params Params, resolver AddressResolver, snap Snapshot, opts ...Option) (*Engine, error) {
	st, err := StateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithState(st)}, opts...)
	engine, err := NewEngine(params, resolver, opts...)
	if err != nil {
		return nil, err
	}
	if supply, ok := engine.tokens.(*Supply); ok && snap.SupplyRemaining != nil {
		supply.restore(*snap.SupplyRemaining)
	}
	engine.metrics.SetSupplyRemaining(engine.tokens.Remaining())
	return engine, nil
}
