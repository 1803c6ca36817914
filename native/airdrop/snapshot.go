package airdrop

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"refdrop/storage"
)

const snapshotVersion = 1

var snapshotKey = []byte("airdrop/state")

// Snapshot is the persisted form of the engine state.
type Snapshot struct {
	Version         int                         `json:"version"`
	Pool            []Code                      `json:"pool"`
	Codes           map[Code]CodeState          `json:"codes"`
	Registrations   map[Principal]Registration  `json:"registrations"`
	Managers        map[Principal]ManagerRecord `json:"managers"`
	Admins          []Principal                 `json:"admins"`
	Ledger          []PayoutEntry               `json:"ledger"`
	Killed          bool                        `json:"killed"`
	SupplyRemaining *uint64                     `json:"supplyRemaining,omitempty"`
}

func (s *State) snapshot() Snapshot {
	snap := Snapshot{
		Version:       snapshotVersion,
		Pool:          s.Pool.snapshot(),
		Codes:         s.Tree.snapshot(),
		Registrations: make(map[Principal]Registration, len(s.Registry.registrations)),
		Managers:      make(map[Principal]ManagerRecord, len(s.Registry.managers)),
		Admins:        make([]Principal, 0, len(s.Registry.admins)),
		Ledger:        s.Ledger.snapshot(),
		Killed:        s.Killed,
	}
	for principal, reg := range s.Registry.registrations {
		snap.Registrations[principal] = reg
	}
	for principal, record := range s.Registry.managers {
		snap.Managers[principal] = *record
	}
	for principal := range s.Registry.admins {
		snap.Admins = append(snap.Admins, principal)
	}
	sort.Slice(snap.Admins, func(i, j int) bool { return snap.Admins[i] < snap.Admins[j] })
	return snap
}

// StateFromSnapshot rebuilds a State from its persisted form.
func StateFromSnapshot(snap Snapshot) (*State, error) {
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrGeneral, snap.Version)
	}
	st := NewState(snap.Admins...)
	st.Pool.Add(snap.Pool...)
	for code, state := range snap.Codes {
		if state.Redeemed {
			cs := state
			st.Tree.codes[code] = &cs
			continue
		}
		st.Tree.Mint(code, state.ParentPrincipal, state.Depth)
	}
	for principal, reg := range snap.Registrations {
		if err := st.Registry.Register(principal, reg.Code, reg.Address); err != nil {
			return nil, err
		}
	}
	for principal, record := range snap.Managers {
		rec := record
		st.Registry.managers[principal] = &rec
	}
	st.Ledger.entries = append(st.Ledger.entries, snap.Ledger...)
	st.Killed = snap.Killed
	return st, nil
}

// SaveSnapshot writes snap to db.
func SaveSnapshot(db storage.Database, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := db.Put(snapshotKey, payload); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot stored in db. The boolean is false when db
// holds no snapshot yet.
func LoadSnapshot(db storage.Database) (Snapshot, bool, error) {
	payload, err := db.Get(snapshotKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}
