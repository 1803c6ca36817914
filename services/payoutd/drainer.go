package payoutd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"refdrop/native/airdrop"
	"refdrop/observability"
	api "refdrop/sdk/airdrop"
	"refdrop/services/payoutd/wallet"
)

// ErrDrainerPaused is returned when a cycle is attempted while the drainer is paused.
var ErrDrainerPaused = errors.New("payoutd: drainer paused")

// Metrics exposes Prometheus collectors for payoutd instrumentation.
type Metrics = observability.PayoutdMetrics

// NewMetrics returns the lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Payoutd() }

// Ledger is the slice of the airdropd API the drainer needs.
type Ledger interface {
	GetAirdrop(ctx context.Context, index airdrop.Index) (*api.ExportResponse, error)
	PutAirdrop(ctx context.Context, index airdrop.Index, entry airdrop.PayoutEntry) error
}

// CycleResult summarises one drain pass.
type CycleResult struct {
	Floor     airdrop.Index `json:"floor"`
	Entries   int           `json:"entries"`
	Addresses int           `json:"addresses"`
	Disbursed uint64        `json:"disbursed"`
	Advanced  bool          `json:"advanced"`
}

// Drainer moves queued rewards out of the payout ledger: it exports pending
// entries, transfers one sum per address and acknowledges each address once
// the transfer is journaled.
type Drainer struct {
	ledger       Ledger
	journal      *Journal
	wallet       wallet.ERC20Wallet
	policies     *PolicyEnforcer
	metrics      *Metrics
	logger       *slog.Logger
	waitInterval time.Duration
	now          func() time.Time

	cycleMu sync.Mutex

	mu        sync.Mutex
	paused    bool
	floor     airdrop.Index
	cycles    int
	lastError string
	lastCycle time.Time
}

// DrainerOption customises the drainer instance.
type DrainerOption func(*Drainer)

// WithWallet supplies the hot wallet implementation.
func WithWallet(w wallet.ERC20Wallet) DrainerOption {
	return func(d *Drainer) { d.wallet = w }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) DrainerOption {
	return func(d *Drainer) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) DrainerOption {
	return func(d *Drainer) { d.logger = l }
}

// WithPollInterval configures the confirmation polling cadence.
func WithPollInterval(interval time.Duration) DrainerOption {
	return func(d *Drainer) { d.waitInterval = interval }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) DrainerOption {
	return func(d *Drainer) { d.now = clock }
}

// NewDrainer constructs a drainer and loads its floor from the journal.
func NewDrainer(ctx context.Context, ledger Ledger, journal *Journal, policies *PolicyEnforcer, opts ...DrainerOption) (*Drainer, error) {
	if ledger == nil || journal == nil || policies == nil {
		return nil, fmt.Errorf("payoutd: ledger, journal and policies are required")
	}
	d := &Drainer{
		ledger:       ledger,
		journal:      journal,
		policies:     policies,
		metrics:      NewMetrics(),
		logger:       slog.Default(),
		waitInterval: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	floor, err := journal.Floor(ctx)
	if err != nil {
		return nil, fmt.Errorf("payoutd: load floor: %w", err)
	}
	d.floor = airdrop.Index(floor)
	return d, nil
}

type addressBatch struct {
	address airdrop.Address
	total   uint64
	last    airdrop.Index
	pending map[airdrop.Index]struct{}
}

// groupByAddress sums entries per address, keeping first-seen order.
// indices carries the ledger index of each entry.
func groupByAddress(entries []airdrop.PayoutEntry, indices []airdrop.Index) []addressBatch {
	index := make(map[airdrop.Address]int, len(entries))
	batches := make([]addressBatch, 0, len(entries))
	for i, entry := range entries {
		if entry.Transferred {
			continue
		}
		pos, ok := index[entry.Address]
		if !ok {
			pos = len(batches)
			index[entry.Address] = pos
			batches = append(batches, addressBatch{address: entry.Address, pending: make(map[airdrop.Index]struct{})})
		}
		batches[pos].total += entry.Amount
		batches[pos].last = indices[i]
		batches[pos].pending[indices[i]] = struct{}{}
	}
	return batches
}

// Cycle runs one drain pass. The floor only advances once every address in
// the export has been acknowledged.
func (d *Drainer) Cycle(ctx context.Context) (CycleResult, error) {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	d.mu.Lock()
	if d.paused {
		d.mu.Unlock()
		d.metrics.RecordError(d.policies.Asset(), "paused")
		return CycleResult{}, ErrDrainerPaused
	}
	floor := d.floor
	d.mu.Unlock()

	start := d.now()
	result, err := d.drain(ctx, floor)
	d.metrics.ObserveCycle(d.policies.Asset(), d.now().Sub(start))

	d.mu.Lock()
	d.cycles++
	d.lastCycle = d.now()
	d.lastError = ""
	if err != nil {
		d.lastError = err.Error()
	}
	if result.Advanced {
		d.floor = result.Floor
	}
	d.mu.Unlock()
	return result, err
}

func (d *Drainer) drain(ctx context.Context, floor airdrop.Index) (CycleResult, error) {
	asset := d.policies.Asset()
	result := CycleResult{Floor: floor}

	export, err := d.ledger.GetAirdrop(ctx, floor)
	if err != nil {
		d.metrics.RecordError(asset, "export")
		return result, fmt.Errorf("payoutd: export: %w", err)
	}
	if len(export.Indices) != len(export.Entries) {
		d.metrics.RecordError(asset, "export")
		return result, fmt.Errorf("payoutd: export returned %d entries but %d indices", len(export.Entries), len(export.Indices))
	}
	batches := groupByAddress(export.Entries, export.Indices)
	result.Entries = len(export.Entries)
	result.Addresses = len(batches)
	d.metrics.SetPending(len(export.Entries))

	if err := d.reconcile(ctx, batches); err != nil {
		d.metrics.RecordError(asset, "journal")
		return result, err
	}
	if len(batches) == 0 {
		return result, nil
	}

	for _, batch := range batches {
		sent, err := d.settle(ctx, floor, batch)
		result.Disbursed += sent
		if err != nil {
			return result, err
		}
	}

	if err := d.journal.SetFloor(ctx, uint64(export.Cursor)); err != nil {
		d.metrics.RecordError(asset, "journal")
		return result, fmt.Errorf("payoutd: persist floor: %w", err)
	}
	result.Floor = export.Cursor
	result.Advanced = true
	d.logger.Info("drain cycle complete",
		slog.Uint64("floor", uint64(export.Cursor)),
		slog.Int("addresses", len(batches)),
		slog.Uint64("disbursed", result.Disbursed))
	return result, nil
}

// reconcile closes out journaled transfers whose address no longer has
// pending entries; the acknowledgement reached airdropd but the journal
// update did not.
func (d *Drainer) reconcile(ctx context.Context, batches []addressBatch) error {
	pending, err := d.journal.PendingAddresses(ctx)
	if err != nil {
		return fmt.Errorf("payoutd: list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	exported := make(map[airdrop.Address]struct{}, len(batches))
	for _, batch := range batches {
		exported[batch.address] = struct{}{}
	}
	for _, address := range pending {
		if _, ok := exported[airdrop.Address(address)]; ok {
			continue
		}
		if err := d.journal.MarkAcknowledged(ctx, address); err != nil {
			return fmt.Errorf("payoutd: reconcile %s: %w", address, err)
		}
		d.logger.Warn("reconciled acknowledged transfer", slog.String("address", address))
	}
	return nil
}

// settle pays whatever part of batch the journal has not already sent, then
// acknowledges the address upstream.
func (d *Drainer) settle(ctx context.Context, floor airdrop.Index, batch addressBatch) (uint64, error) {
	asset := d.policies.Asset()
	address := string(batch.address)
	if strings.TrimSpace(address) == "" {
		d.metrics.RecordError(asset, "address")
		return 0, fmt.Errorf("payoutd: empty payout address")
	}

	already, err := d.outstanding(ctx, batch)
	if err != nil {
		d.metrics.RecordError(asset, "journal")
		return 0, err
	}

	var sent uint64
	if batch.total > already {
		amount := batch.total - already
		if err := d.transfer(ctx, floor, batch.last, address, amount); err != nil {
			return 0, err
		}
		sent = amount
	}

	entry := airdrop.PayoutEntry{Address: batch.address, Amount: batch.total}
	if err := d.ledger.PutAirdrop(ctx, floor, entry); err != nil {
		d.metrics.RecordError(asset, "acknowledge")
		return sent, fmt.Errorf("payoutd: acknowledge %s: %w", address, err)
	}
	if err := d.journal.MarkAcknowledged(ctx, address); err != nil {
		d.metrics.RecordError(asset, "journal")
		return sent, fmt.Errorf("payoutd: journal ack %s: %w", address, err)
	}
	return sent, nil
}

// outstanding sums the journaled transfers that paid for entries still
// pending in batch. A sent row whose last entry is no longer pending was
// acknowledged upstream before the journal caught up, so it is closed
// instead of offsetting newer entries for the same address.
func (d *Drainer) outstanding(ctx context.Context, batch addressBatch) (uint64, error) {
	address := string(batch.address)
	rows, err := d.journal.Outstanding(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("payoutd: journal lookup: %w", err)
	}
	var already uint64
	var stale []uuid.UUID
	for _, row := range rows {
		if _, ok := batch.pending[airdrop.Index(row.LastIndex)]; ok {
			already += row.Amount
			continue
		}
		stale = append(stale, row.ID)
	}
	if len(stale) > 0 {
		if err := d.journal.AcknowledgeRows(ctx, stale); err != nil {
			return 0, fmt.Errorf("payoutd: reconcile %s: %w", address, err)
		}
		d.logger.Warn("reconciled acknowledged transfer",
			slog.String("address", address),
			slog.Int("rows", len(stale)))
	}
	return already, nil
}

func (d *Drainer) transfer(ctx context.Context, floor, last airdrop.Index, address string, amount uint64) error {
	asset := d.policies.Asset()
	if d.wallet == nil {
		return fmt.Errorf("payoutd: wallet not configured")
	}
	if err := d.policies.Validate(amount, d.now()); err != nil {
		switch {
		case errors.Is(err, ErrDailyCapExceeded):
			d.metrics.RecordError(asset, "daily_cap")
		case errors.Is(err, ErrSoftBalanceExceeded):
			d.metrics.RecordError(asset, "inventory")
		default:
			d.metrics.RecordError(asset, "policy")
		}
		return err
	}
	txHash, err := d.wallet.Transfer(ctx, asset, address, amount)
	if err != nil {
		d.metrics.RecordError(asset, "transfer")
		return fmt.Errorf("payoutd: transfer to %s: %w", address, err)
	}
	interval := d.waitInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if err := d.wallet.WaitForConfirmations(ctx, txHash, d.policies.Confirmations(), interval); err != nil {
		d.metrics.RecordError(asset, "confirmations")
		return fmt.Errorf("payoutd: confirm %s: %w", txHash, err)
	}
	if _, err := d.journal.RecordSent(ctx, address, amount, uint64(floor), uint64(last), txHash); err != nil {
		d.metrics.RecordError(asset, "journal")
		d.logger.Error("transfer sent but not journaled",
			slog.String("address", address),
			slog.Uint64("amount", amount),
			slog.String("txHash", txHash))
		return fmt.Errorf("payoutd: journal transfer: %w", err)
	}
	d.policies.Record(amount, d.now())
	d.metrics.RecordDisbursed(asset, amount)
	return nil
}

// Run drives Cycle every interval until ctx is cancelled.
func (d *Drainer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.Cycle(ctx); err != nil && !errors.Is(err, ErrDrainerPaused) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("drain cycle failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pause halts new drain cycles.
func (d *Drainer) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = true
	d.metrics.SetPause(true)
}

// Resume re-enables drain cycles.
func (d *Drainer) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paused = false
	d.metrics.SetPause(false)
}

// Status summarises drainer state for administrative endpoints.
type Status struct {
	Paused       bool      `json:"paused"`
	Floor        uint64    `json:"floor"`
	Cycles       int       `json:"cycles"`
	Transfers    int64     `json:"transfers"`
	Disbursed    uint64    `json:"disbursed"`
	CapRemaining *uint64   `json:"cap_remaining,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	LastCycle    time.Time `json:"last_cycle,omitempty"`
}

// Status reports the current drainer status snapshot.
func (d *Drainer) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	status := Status{
		Paused:    d.paused,
		Floor:     uint64(d.floor),
		Cycles:    d.cycles,
		LastError: d.lastError,
		LastCycle: d.lastCycle,
	}
	d.mu.Unlock()
	if remaining, ok := d.policies.RemainingCap(d.now()); ok {
		status.CapRemaining = &remaining
	}
	count, sum, err := d.journal.Totals(ctx)
	if err != nil {
		return status, err
	}
	status.Transfers = count
	status.Disbursed = sum
	return status, nil
}
