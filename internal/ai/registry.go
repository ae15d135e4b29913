package ai

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned for model names nothing is registered under.
var ErrUnknownModel = errors.New("unknown model")

// Registry maps model names exposed to users onto configured generators.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	order      []string
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

// Register adds or replaces a generator under name.
func (r *Registry) Register(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; !ok {
		r.order = append(r.order, name)
	}
	r.generators[name] = g
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	if !ok {
		known := append([]string(nil), r.order...)
		sort.Strings(known)
		return nil, fmt.Errorf("%w %q, available models: %v", ErrUnknownModel, name, known)
	}
	return g, nil
}

// Names returns model names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
