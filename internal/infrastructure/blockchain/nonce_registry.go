package blockchain

import (
	"strings"
	"sync"

	"crosspay.facilitator/internal/domain/entities"
)

// NonceRegistry hands out one NonceManager per (network, signer address).
// The settle and bridge paths go through the same registry, so when both
// use the same key on a chain they share a manager and cannot race.
type NonceRegistry struct {
	factory *ClientFactory

	mu       sync.Mutex
	managers map[string]*NonceManager
}

// NewNonceRegistry creates a registry backed by a client factory.
func NewNonceRegistry(factory *ClientFactory) *NonceRegistry {
	return &NonceRegistry{
		factory:  factory,
		managers: make(map[string]*NonceManager),
	}
}

// For returns the shared manager for a signer on a network.
func (r *NonceRegistry) For(network entities.Network, address string) (*NonceManager, error) {
	key := string(network) + "|" + strings.ToLower(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[key]; ok {
		return m, nil
	}

	client, err := r.factory.GetEVMClient(network)
	if err != nil {
		return nil, err
	}

	m := NewNonceManager(client, address)
	r.managers[key] = m
	return m, nil
}
