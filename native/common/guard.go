// Package common holds small cross-cutting helpers shared by native engine
// packages, starting with the frozen/paused-module guard.
package common

import "errors"

// ErrModulePaused is returned by Guard when the named module is frozen.
var ErrModulePaused = errors.New("module frozen")

// PauseView reports whether a named module is currently frozen. The CDP
// engine implements this over a single basket's Frozen flag, building one
// view per basket.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused if module is frozen in p. A nil PauseView or
// empty module name is treated as unguarded.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
