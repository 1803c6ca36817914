package payoutd

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrDailyCapExceeded indicates that applying a payout would exceed the configured window cap.
var ErrDailyCapExceeded = errors.New("payoutd: daily cap exceeded")

// ErrSoftBalanceExceeded reports that the treasury soft inventory would be exhausted by a payout.
var ErrSoftBalanceExceeded = errors.New("payoutd: insufficient soft inventory")

// Policy captures throttling rules for the disbursed asset. Zero caps are
// unlimited.
type Policy struct {
	Asset         string `yaml:"asset"`
	DailyCap      uint64 `yaml:"daily_cap"`
	SoftInventory uint64 `yaml:"soft_inventory"`
	Confirmations int    `yaml:"confirmations"`
}

// PolicyEnforcer tracks daily spend and remaining inventory.
type PolicyEnforcer struct {
	mu        sync.Mutex
	policy    Policy
	spent     map[string]uint64
	inventory uint64
}

// NewPolicyEnforcer constructs an enforcer for policy.
func NewPolicyEnforcer(policy Policy) (*PolicyEnforcer, error) {
	policy.Asset = strings.ToUpper(strings.TrimSpace(policy.Asset))
	if policy.Asset == "" {
		return nil, fmt.Errorf("policy asset required")
	}
	if policy.Confirmations <= 0 {
		policy.Confirmations = 3
	}
	return &PolicyEnforcer{
		policy:    policy,
		spent:     make(map[string]uint64),
		inventory: policy.SoftInventory,
	}, nil
}

// Asset returns the normalised asset symbol.
func (p *PolicyEnforcer) Asset() string {
	return p.policy.Asset
}

// Confirmations returns the configured confirmation count.
func (p *PolicyEnforcer) Confirmations() int {
	return p.policy.Confirmations
}

// Validate ensures a payout complies with the configured caps.
func (p *PolicyEnforcer) Validate(amount uint64, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if amount == 0 {
		return fmt.Errorf("payout amount must be positive")
	}
	if p.policy.SoftInventory > 0 && p.inventory < amount {
		return ErrSoftBalanceExceeded
	}
	if p.policy.DailyCap > 0 && p.remainingLocked(now) < amount {
		return ErrDailyCapExceeded
	}
	return nil
}

// Record notes a successful payout against the configured caps.
func (p *PolicyEnforcer) Record(amount uint64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	today := dayBucket(now)
	for day := range p.spent {
		if day != today {
			delete(p.spent, day)
		}
	}
	p.spent[today] += amount
	if p.inventory >= amount {
		p.inventory -= amount
	} else {
		p.inventory = 0
	}
}

// SetInventory overrides the tracked soft inventory.
func (p *PolicyEnforcer) SetInventory(balance uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inventory = balance
}

// RemainingCap reports the remaining allowance in the current window. An
// unlimited cap reports zero with ok false.
func (p *PolicyEnforcer) RemainingCap(now time.Time) (remaining uint64, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.policy.DailyCap == 0 {
		return 0, false
	}
	return p.remainingLocked(now), true
}

func (p *PolicyEnforcer) remainingLocked(now time.Time) uint64 {
	spent := p.spent[dayBucket(now)]
	if spent >= p.policy.DailyCap {
		return 0
	}
	return p.policy.DailyCap - spent
}

func dayBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
