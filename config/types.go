package config

import "refdrop/native/airdrop"

// AirdropParams is the on-disk form of the engine parameters.
type AirdropParams struct {
	TokenPerPerson   uint64 `toml:"TokenPerPerson"`
	MaximumDepth     uint64 `toml:"MaximumDepth"`
	NumberOfChildren uint64 `toml:"NumberOfChildren"`
	InitialTokens    uint64 `toml:"InitialTokens"`
}

// Pauses lists modules that start with their emergency stop engaged.
type Pauses struct {
	Airdrop bool `toml:"Airdrop"`
}

// File is the TOML document holding the engine parameters.
type File struct {
	Airdrop AirdropParams `toml:"airdrop"`
	Pauses  Pauses        `toml:"pauses"`
}

// DefaultAirdropParams returns the reference parameters.
func DefaultAirdropParams() AirdropParams {
	d := airdrop.DefaultParams()
	return AirdropParams{
		TokenPerPerson:   d.TokenPerPerson,
		MaximumDepth:     d.MaximumDepth,
		NumberOfChildren: d.NumberOfChildren,
		InitialTokens:    d.InitialTokens,
	}
}

// Params converts the file form into engine parameters.
func (p AirdropParams) Params() airdrop.Params {
	return airdrop.Params{
		TokenPerPerson:   p.TokenPerPerson,
		MaximumDepth:     p.MaximumDepth,
		NumberOfChildren: p.NumberOfChildren,
		InitialTokens:    p.InitialTokens,
	}
}
