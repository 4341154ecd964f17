// Package features holds the runtime switches for the engagement server.
package features

import (
	"sort"
	"sync"
)

// Flag names understood by the server.
const (
	// FeatureCacheEnabled routes GET /engagements/{id} through the record cache.
	FeatureCacheEnabled = "cache_enabled"
	// FeatureEventHooksEnabled publishes engagement.created and
	// engagement.temperature_changed events.
	FeatureEventHooksEnabled = "event_hooks_enabled"
)

// Flag is a named on/off switch.
type Flag struct {
	Name        string
	Enabled     bool
	Description string
}

var descriptions = map[string]string{
	FeatureCacheEnabled:      "serve engagement reads from the record cache; updates still invalidate it",
	FeatureEventHooksEnabled: "publish an event when a record is created or its temperature band changes",
}

// Manager holds the server's flags. A nil Manager reports every flag off.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewManager creates a manager with no flags.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]Flag)}
}

// NewDefaultManager registers the server's flags with the given states.
func NewDefaultManager(cacheEnabled, eventHooksEnabled bool) *Manager {
	m := NewManager()
	for name, enabled := range map[string]bool{
		FeatureCacheEnabled:      cacheEnabled,
		FeatureEventHooksEnabled: eventHooksEnabled,
	} {
		m.Register(name, enabled, descriptions[name])
	}
	return m
}

// Register adds or replaces a flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = Flag{Name: name, Enabled: enabled, Description: description}
}

// IsEnabled reports whether name is registered and on.
func (m *Manager) IsEnabled(name string) bool {
	if m == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name].Enabled
}

// Lookup returns the flag registered under name.
func (m *Manager) Lookup(name string) (Flag, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[name]
	return f, ok
}

// Set switches a registered flag and returns its new state. Unknown names
// are left unregistered and reported with false.
func (m *Manager) Set(name string, enabled bool) (Flag, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flags[name]
	if !ok {
		return Flag{}, false
	}
	f.Enabled = enabled
	m.flags[name] = f
	return f, true
}

// List returns the flags ordered by name.
func (m *Manager) List() []Flag {
	m.mu.RLock()
	out := make([]Flag, 0, len(m.flags))
	for _, f := range m.flags {
		out = append(out, f)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
