//go:build !tinygo

package core

import "sync"

// criticalState stands in for interrupt.State on regular Go.
type criticalState uintptr

// On the host the pool producer is a goroutine, so a mutex replaces
// interrupt masking. Critical sections must not nest.
var criticalMu sync.Mutex

func enterCritical() criticalState {
	criticalMu.Lock()
	return 0
}

func exitCritical(criticalState) {
	criticalMu.Unlock()
}
