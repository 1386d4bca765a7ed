package provider

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Probe)
)

// Register adds a probe by its ID.
func Register(p Probe) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.ID()] = p
}

// Get returns a registered probe by ID.
func Get(id string) (Probe, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if p, ok := registry[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("provider not registered: %s", id)
}

// Names returns the registered provider IDs, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// All returns the registered probes in ID order.
func All() []Probe {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Probe, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Reset clears the registry before a rebuild, so a provider disabled
// in config does not linger from an earlier registration.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Probe)
}
