package httpapi

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
)

// ErrSessionNotFound is returned for a (user, property) pair with no mounted session.
var ErrSessionNotFound = errors.New("session not found")

// OrchestratorFactory builds an unmounted orchestrator for a property.
type OrchestratorFactory func(property purchase.Address) (*purchase.Orchestrator, error)

type sessionKey struct {
	owner    string
	property purchase.Address
}

// Registry holds the mounted orchestrators, one per (user, property).
type Registry struct {
	factory OrchestratorFactory

	mutex    sync.Mutex
	sessions map[sessionKey]*purchase.Orchestrator
}

// NewRegistry constructs an empty Registry.
func NewRegistry(factory OrchestratorFactory) (*Registry, error) {
	if factory == nil {
		return nil, errors.New("httpapi: orchestrator factory is nil")
	}
	return &Registry{factory: factory, sessions: map[sessionKey]*purchase.Orchestrator{}}, nil
}

// Open returns the owner's session for property, creating and mounting it on
// first use.
func (registry *Registry) Open(ctx context.Context, owner string, property purchase.Address) (*purchase.Orchestrator, error) {
	key := sessionKey{owner: owner, property: property}
	registry.mutex.Lock()
	orchestrator, exists := registry.sessions[key]
	if !exists {
		created, err := registry.factory(property)
		if err != nil {
			registry.mutex.Unlock()
			return nil, err
		}
		registry.sessions[key] = created
		orchestrator = created
	}
	registry.mutex.Unlock()

	if err := orchestrator.Mount(ctx); err != nil {
		return nil, err
	}
	return orchestrator, nil
}

// Get returns a mounted session.
func (registry *Registry) Get(owner string, property purchase.Address) (*purchase.Orchestrator, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	orchestrator, exists := registry.sessions[sessionKey{owner: owner, property: property}]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return orchestrator, nil
}

// Close unmounts and forgets a session.
func (registry *Registry) Close(owner string, property purchase.Address) error {
	key := sessionKey{owner: owner, property: property}
	registry.mutex.Lock()
	orchestrator, exists := registry.sessions[key]
	delete(registry.sessions, key)
	registry.mutex.Unlock()
	if !exists {
		return ErrSessionNotFound
	}
	orchestrator.Unmount()
	return nil
}

// Owned returns the owner's sessions ordered by property address.
func (registry *Registry) Owned(owner string) []*purchase.Orchestrator {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	owned := make([]*purchase.Orchestrator, 0)
	for key, orchestrator := range registry.sessions {
		if key.owner == owner {
			owned = append(owned, orchestrator)
		}
	}
	sort.Slice(owned, func(left, right int) bool {
		return owned[left].PropertyAddress().Hex() < owned[right].PropertyAddress().Hex()
	})
	return owned
}

// CloseAll unmounts every session.
func (registry *Registry) CloseAll() {
	registry.mutex.Lock()
	sessions := registry.sessions
	registry.sessions = map[sessionKey]*purchase.Orchestrator{}
	registry.mutex.Unlock()
	for _, orchestrator := range sessions {
		orchestrator.Unmount()
	}
}
