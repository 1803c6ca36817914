package airdrop

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Registry holds the one-shot principal registrations together with the
// admin and manager role sets.
type Registry struct {
	registrations map[Principal]Registration
	managers      map[Principal]*ManagerRecord
	admins        map[Principal]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		registrations: make(map[Principal]Registration),
		managers:      make(map[Principal]*ManagerRecord),
		admins:        make(map[Principal]struct{}),
	}
}

// Register binds principal to code and address. A principal registers once
// for the lifetime of the system.
func (r *Registry) Register(principal Principal, code Code, address Address) error {
	if _, exists := r.registrations[principal]; exists {
		return ErrCannotRegisterMultipleTimes
	}
	r.registrations[principal] = Registration{Code: code, Address: address}
	return nil
}

// Registration returns the registration of principal.
func (r *Registry) Registration(principal Principal) (Registration, bool) {
	reg, ok := r.registrations[principal]
	return reg, ok
}

// IsRegistered reports whether principal has redeemed a code.
func (r *Registry) IsRegistered(principal Principal) bool {
	_, ok := r.registrations[principal]
	return ok
}

// AddManager creates a manager record or renames an existing one without
// touching its counters. Names are stored in NFKC form.
func (r *Registry) AddManager(principal Principal, name string) ManagerRecord {
	name = norm.NFKC.String(strings.TrimSpace(name))
	if existing, ok := r.managers[principal]; ok {
		existing.Name = name
		return *existing
	}
	record := &ManagerRecord{Name: name}
	r.managers[principal] = record
	return *record
}

// Manager returns the manager record of principal.
func (r *Registry) Manager(principal Principal) (ManagerRecord, bool) {
	record, ok := r.managers[principal]
	if !ok {
		return ManagerRecord{}, false
	}
	return *record, true
}

// IsManager reports whether principal may generate root codes.
func (r *Registry) IsManager(principal Principal) bool {
	_, ok := r.managers[principal]
	return ok
}

func (r *Registry) recordGenerated(principal Principal) ManagerRecord {
	record := r.managers[principal]
	record.CodesGenerated++
	return *record
}

func (r *Registry) recordRedeemed(principal Principal) {
	if record, ok := r.managers[principal]; ok {
		record.CodesRedeemed++
	}
}

// AddAdmin grants the admin role.
func (r *Registry) AddAdmin(principal Principal) {
	r.admins[principal] = struct{}{}
}

// IsAdmin reports whether principal holds the admin role.
func (r *Registry) IsAdmin(principal Principal) bool {
	_, ok := r.admins[principal]
	return ok
}
