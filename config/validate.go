package config

import "fmt"

// MinTokenPerPerson keeps the quarter reward above zero.
const MinTokenPerPerson = uint64(4)

func ValidateConfig(f File) error {
	p := f.Airdrop
	if p.TokenPerPerson < MinTokenPerPerson {
		return fmt.Errorf("airdrop: TokenPerPerson must be >= %d", MinTokenPerPerson)
	}
	if p.NumberOfChildren == 0 {
		return fmt.Errorf("airdrop: NumberOfChildren must be > 0")
	}
	if p.InitialTokens < p.TokenPerPerson {
		return fmt.Errorf("airdrop: InitialTokens cannot fund a single redemption")
	}
	return nil
}
