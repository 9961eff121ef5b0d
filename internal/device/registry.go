package device

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bcnelson/opnsense-access-control/internal/domain"
)

// Registry holds the switches by display name.
type Registry struct {
	mu       sync.RWMutex
	switches map[string]*Switch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{switches: make(map[string]*Switch)}
}

// Add registers s. Names must be unique.
func (r *Registry) Add(s *Switch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.switches[s.Name()]; ok {
		return fmt.Errorf("%w: duplicate device name %q", domain.ErrInvalidInput, s.Name())
	}
	r.switches[s.Name()] = s
	return nil
}

// Get returns the switch with the given name.
func (r *Registry) Get(name string) (*Switch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.switches[name]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", name, domain.ErrNotFound)
	}
	return s, nil
}

// List returns all switches ordered by name.
func (r *Registry) List() []*Switch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Switch, 0, len(r.switches))
	for _, s := range r.switches {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of switches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.switches)
}
