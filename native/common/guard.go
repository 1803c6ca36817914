package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused is returned by Guard when a module's pause flag is set.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes per-module pause flags.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails when module is paused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// GuardAs is Guard with a module-specific sentinel so callers can match
// either the sentinel or ErrModulePaused.
func GuardAs(p PauseView, module string, sentinel error) error {
	if err := Guard(p, module); err != nil {
		if sentinel == nil {
			return err
		}
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
