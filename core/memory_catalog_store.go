package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryCatalogStore keeps the endpoint catalog in process memory. Load
// returns the selected context; Select loads-or-creates by name. Intended for
// tests and embedding scenarios without persistence.
type MemoryCatalogStore struct {
	mu       sync.Mutex
	contexts map[string]EndpointContext
	order    []string
	selected string
}

func NewMemoryCatalogStore(seed ...EndpointContext) *MemoryCatalogStore {
	store := &MemoryCatalogStore{contexts: make(map[string]EndpointContext)}
	for _, endpointContext := range seed {
		name := strings.TrimSpace(endpointContext.Name)
		if name == "" {
			continue
		}
		if _, exists := store.contexts[name]; !exists {
			store.order = append(store.order, name)
		}
		store.contexts[name] = endpointContext.Clone()
		if endpointContext.Selected || store.selected == "" {
			store.selected = name
		}
	}
	return store
}

func (s *MemoryCatalogStore) Load(_ context.Context) (EndpointContext, error) {
	if s == nil {
		return EndpointContext{}, fmt.Errorf("core: catalog store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return EndpointContext{}, fmt.Errorf("core: no context selected")
	}
	return s.contexts[s.selected].Clone(), nil
}

func (s *MemoryCatalogStore) Save(_ context.Context, endpointContext EndpointContext) error {
	if s == nil {
		return fmt.Errorf("core: catalog store is not configured")
	}
	name := strings.TrimSpace(endpointContext.Name)
	if name == "" {
		return ErrContextNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contexts[name]; !exists {
		s.order = append(s.order, name)
	}
	s.contexts[name] = endpointContext.Clone()
	if endpointContext.Selected {
		s.selected = name
	}
	return nil
}

// Select loads the named context, creating it when absent, and marks it
// selected. The bool result reports whether the context already existed.
func (s *MemoryCatalogStore) Select(_ context.Context, name string) (EndpointContext, bool, error) {
	if s == nil {
		return EndpointContext{}, false, fmt.Errorf("core: catalog store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return EndpointContext{}, false, ErrContextNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.contexts[name]
	if !found {
		existing = EndpointContext{Name: name}
		s.order = append(s.order, name)
	}
	if previous, ok := s.contexts[s.selected]; ok && s.selected != name {
		previous.Selected = false
		s.contexts[s.selected] = previous
	}
	existing.Selected = true
	s.contexts[name] = existing
	s.selected = name
	return existing.Clone(), found, nil
}

// ContextNames returns every stored context name in creation order.
func (s *MemoryCatalogStore) ContextNames() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

var (
	_ CatalogStore    = (*MemoryCatalogStore)(nil)
	_ ContextSelector = (*MemoryCatalogStore)(nil)
)
