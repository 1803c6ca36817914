package airdrop

// State is the single aggregate owned by an Engine. Nothing outside the
// engine mutates it, and the engine only touches it under its mutex.
type State struct {
	Pool     *CodePool
	Tree     *Tree
	Registry *Registry
	Ledger   *PayoutLedger
	Killed   bool
}

// NewState returns an empty state with admins pre-seeded.
func NewState(admins ...Principal) *State {
	st := &State{
		Pool:     &CodePool{},
		Tree:     NewTree(),
		Registry: NewRegistry(),
		Ledger:   &PayoutLedger{},
	}
	for _, admin := range admins {
		if admin.IsAnonymous() {
			continue
		}
		st.Registry.AddAdmin(admin)
	}
	return st
}

// IsPaused implements common.PauseView; the airdrop module is paused while
// the emergency stop is engaged.
func (s *State) IsPaused(module string) bool {
	return module == moduleName && s.Killed
}
