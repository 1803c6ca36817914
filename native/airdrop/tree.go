package airdrop

import (
	"fmt"
	"sort"
)

// Tree is the flat code -> state mapping that stands in for the referral tree.
type Tree struct {
	codes map[Code]*CodeState
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{codes: make(map[Code]*CodeState)}
}

// Mint records a fresh unredeemed code. Minting an existing code means the
// pool handed out a duplicate, which is a programming defect.
func (t *Tree) Mint(code Code, parent Principal, depth uint64) {
	if _, exists := t.codes[code]; exists {
		panic(fmt.Sprintf("airdrop: invariant violated: code %q minted twice", code))
	}
	t.codes[code] = &CodeState{ParentPrincipal: parent, Depth: depth}
}

// Get returns a copy of the code state.
func (t *Tree) Get(code Code) (CodeState, bool) {
	state, ok := t.codes[code]
	if !ok {
		return CodeState{}, false
	}
	return *state, true
}

// Has reports whether the code was ever minted.
func (t *Tree) Has(code Code) bool {
	_, ok := t.codes[code]
	return ok
}

// MarkRedeemed flips the redeemed flag of code.
func (t *Tree) MarkRedeemed(code Code) error {
	state, ok := t.codes[code]
	if !ok {
		return ErrCodeNotFound
	}
	if state.Redeemed {
		return ErrCodeAlreadyRedeemed
	}
	state.Redeemed = true
	return nil
}

// ChildrenOf lists every code minted under principal. Results are sorted by
// code so repeated calls render identically.
func (t *Tree) ChildrenOf(principal Principal) []ChildCode {
	var children []ChildCode
	for code, state := range t.codes {
		if state.ParentPrincipal == principal {
			children = append(children, ChildCode{Code: code, Redeemed: state.Redeemed})
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Code < children[j].Code })
	return children
}

// Len returns the number of minted codes.
func (t *Tree) Len() int {
	return len(t.codes)
}

// Redeemed returns the number of redeemed codes.
func (t *Tree) Redeemed() int {
	count := 0
	for _, state := range t.codes {
		if state.Redeemed {
			count++
		}
	}
	return count
}

func (t *Tree) snapshot() map[Code]CodeState {
	out := make(map[Code]CodeState, len(t.codes))
	for code, state := range t.codes {
		out[code] = *state
	}
	return out
}
