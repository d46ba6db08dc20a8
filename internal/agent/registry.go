package agent

import (
	"fmt"
	"sync"
)

// Registry maps capability tags to agent factories. Concrete agents
// are registered in the lookup table rather than arranged in a type
// hierarchy; the graph builder instantiates one agent per roster entry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in document
// agents. The text extractor uses the supplied extractor backend; a
// nil backend falls back to the heuristic extractor.
func DefaultRegistry(extractor TextExtractor) *Registry {
	r := NewRegistry()
	r.Register(CapabilityTextExtraction, func(id string) Agent {
		return NewTextExtractionAgent(id, extractor)
	})
	r.Register(CapabilityDataValidation, func(id string) Agent {
		return NewDataValidationAgent(id)
	})
	r.Register(CapabilityStructuredExtraction, func(id string) Agent {
		return NewStructuredExtractionAgent(id)
	})
	return r
}

// Register adds a factory under a capability tag, replacing any
// previous registration.
func (r *Registry) Register(capability string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[capability] = factory
}

// New instantiates an agent for the capability, or an error if the
// capability is unknown.
func (r *Registry) New(capability, id string) (Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[capability]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no agent registered for capability %q", capability)
	}
	return factory(id), nil
}

// Roster instantiates one agent per capability tag, using the tag as
// the agent id. Ids must be unique within one workflow, which holds
// because a roster never repeats a capability.
func (r *Registry) Roster(capabilities []string) ([]Agent, error) {
	agents := make([]Agent, 0, len(capabilities))
	for _, capability := range capabilities {
		a, err := r.New(capability, capability)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// Capabilities returns the registered capability tags.
func (r *Registry) Capabilities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	return tags
}
