package airdrop

import "strings"

// AnonymousPrincipal is the principal presented by unauthenticated callers.
const AnonymousPrincipal Principal = "2vxsx-fae"

// Principal identifies a caller of the airdrop engine.
type Principal string

// IsAnonymous reports whether the principal is empty or the anonymous identity.
func (p Principal) IsAnonymous() bool {
	trimmed := Principal(strings.TrimSpace(string(p)))
	return trimmed == "" || trimmed == AnonymousPrincipal
}

// Code is an opaque single-use referral code.
type Code string

// Address is the external payout destination bound to a principal.
type Address string

// Index is a stable position in the payout ledger.
type Index uint64

// CodeState is the per-code node of the referral tree. The tree is never
// linked; relationships are recovered from ParentPrincipal and Depth.
type CodeState struct {
	ParentPrincipal Principal `json:"parentPrincipal"`
	Depth           uint64    `json:"depth"`
	Redeemed        bool      `json:"redeemed"`
}

// ChildCode pairs a code with its redemption status for display.
type ChildCode struct {
	Code     Code `json:"code"`
	Redeemed bool `json:"redeemed"`
}

// Registration binds a principal to the code it redeemed and its resolved address.
type Registration struct {
	Code    Code    `json:"code"`
	Address Address `json:"address"`
}

// ManagerRecord tracks the codes a manager generated and how many were redeemed.
type ManagerRecord struct {
	Name           string `json:"name"`
	CodesGenerated uint64 `json:"codesGenerated"`
	CodesRedeemed  uint64 `json:"codesRedeemed"`
}

// PayoutEntry is one amount owed to an address.
type PayoutEntry struct {
	Address     Address `json:"address"`
	Amount      uint64  `json:"amount"`
	Transferred bool    `json:"transferred"`
}

// Info describes a principal's redemption and the children it can share.
type Info struct {
	Code      Code        `json:"code"`
	Principal Principal   `json:"principal"`
	Address   Address     `json:"address"`
	Children  []ChildCode `json:"children,omitempty"`
}

// CodeInfo is returned to managers generating root codes.
type CodeInfo struct {
	Code           Code   `json:"code"`
	CodesGenerated uint64 `json:"codesGenerated"`
	CodesRedeemed  uint64 `json:"codesRedeemed"`
}

// Stats summarises engine state for operators.
type Stats struct {
	Killed          bool   `json:"killed"`
	PoolRemaining   int    `json:"poolRemaining"`
	CodesMinted     int    `json:"codesMinted"`
	CodesRedeemed   int    `json:"codesRedeemed"`
	Registrations   int    `json:"registrations"`
	Managers        int    `json:"managers"`
	LedgerEntries   int    `json:"ledgerEntries"`
	PendingEntries  int    `json:"pendingEntries"`
	PendingAmount   uint64 `json:"pendingAmount"`
	SupplyRemaining uint64 `json:"supplyRemaining"`
}
