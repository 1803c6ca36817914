package airdrop

import "fmt"

const (
	// DefaultTokenPerPerson is the reward unit granted per redemption below the
	// maximum depth.
	DefaultTokenPerPerson = 400
	// DefaultMaximumDepth is the deepest level of the referral tree.
	DefaultMaximumDepth = 2
	// DefaultNumberOfChildren is the fan-out of every code redeemed below the
	// maximum depth.
	DefaultNumberOfChildren = 3
	// DefaultInitialTokens seeds the token supply ledger.
	DefaultInitialTokens = 100_000

	moduleName = "airdrop"
)

// Params configures the reward arithmetic and the shape of the referral tree.
type Params struct {
	TokenPerPerson   uint64 `json:"tokenPerPerson"`
	MaximumDepth     uint64 `json:"maximumDepth"`
	NumberOfChildren uint64 `json:"numberOfChildren"`
	InitialTokens    uint64 `json:"initialTokens"`
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		TokenPerPerson:   DefaultTokenPerPerson,
		MaximumDepth:     DefaultMaximumDepth,
		NumberOfChildren: DefaultNumberOfChildren,
		InitialTokens:    DefaultInitialTokens,
	}
}

// Validate rejects parameter sets that would make the quarter reward zero or
// leave codes without children.
func (p Params) Validate() error {
	if p.TokenPerPerson < 4 {
		return fmt.Errorf("%w: token per person must be at least 4, got %d", ErrGeneral, p.TokenPerPerson)
	}
	if p.NumberOfChildren == 0 {
		return fmt.Errorf("%w: number of children must be positive", ErrGeneral)
	}
	return nil
}

// QuarterReward is the amount credited to a redeemer and to its referrer.
func (p Params) QuarterReward() uint64 {
	return p.TokenPerPerson / 4
}

// Deduction is the amount taken from the supply when a code at depth is redeemed.
func (p Params) Deduction(depth uint64) uint64 {
	if depth < p.MaximumDepth {
		return p.TokenPerPerson
	}
	return p.QuarterReward()
}

// SpawnsChildren reports whether redeeming a code at depth mints children.
func (p Params) SpawnsChildren(depth uint64) bool {
	return depth < p.MaximumDepth
}
