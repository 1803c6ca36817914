package common

import (
	"errors"
	"testing"
)

type pauseFlags map[string]bool

func (p pauseFlags) IsPaused(module string) bool { return p[module] }

func TestGuard(t *testing.T) {
	flags := pauseFlags{"airdrop": true}
	if err := Guard(flags, "airdrop"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(flags, "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "airdrop"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestGuardAsWrapsSentinel(t *testing.T) {
	sentinel := errors.New("killed")
	err := GuardAs(pauseFlags{"airdrop": true}, "airdrop", sentinel)
	if !errors.Is(err, sentinel) || !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected both sentinels, got %v", err)
	}
	if err := GuardAs(pauseFlags{}, "airdrop", sentinel); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
