package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/normanking/alcance/internal/router"
)

// Set maps routing backends to providers.
type Set struct {
	mu        sync.RWMutex
	providers map[router.Backend]Provider
}

// NewSet creates an empty provider set.
func NewSet() *Set {
	return &Set{providers: make(map[router.Backend]Provider)}
}

// Register binds a provider to a backend, replacing any previous binding.
func (s *Set) Register(backend router.Backend, p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[backend] = p
}

// Get returns the provider serving backend.
func (s *Set) Get(backend router.Backend) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[backend]
	if !ok {
		return nil, &ProviderError{Provider: string(backend), Kind: KindConfig, Err: fmt.Errorf("no provider registered for backend %q", backend)}
	}
	return p, nil
}

// Backends returns the registered backends, sorted.
func (s *Set) Backends() []router.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]router.Backend, 0, len(s.providers))
	for b := range s.providers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
