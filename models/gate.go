package models

import (
	"sync"
)

// Gate serializes inspection of a process's machine state. The owning
// thread holds the gate for its whole run and reopens it briefly at each
// trap boundary; an inspector that takes the gate pauses the thread at
// its next trap until the gate is released. The register file and address
// space are only touched under the gate.
type Gate struct {
	mu sync.Mutex
}

// Start is called by the owning thread before it begins running.
func (g *Gate) Start() {
	g.mu.Lock()
}

// Stop is called by the owning thread when its run is over. The state
// stays inspectable afterward; the gate is simply never held again.
func (g *Gate) Stop() {
	g.mu.Unlock()
}

// Checkpoint reopens the gate at a trap boundary, admitting any waiting
// inspector before the owning thread continues.
func (g *Gate) Checkpoint() {
	g.mu.Unlock()
	g.mu.Lock()
}

// Lock pauses the owning thread at its next checkpoint, or returns at
// once if the thread is not running.
func (g *Gate) Lock() {
	g.mu.Lock()
}

func (g *Gate) Unlock() {
	g.mu.Unlock()
}
