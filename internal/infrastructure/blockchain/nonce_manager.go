package blockchain

import (
	"context"
	"sync"
)

// NonceManager serializes nonce assignment for one signer on one chain.
// Concurrent settle and bridge submissions from the same key must not
// reuse a nonce, so Next hands them out under a single mutex and keeps
// the chain's pending count as a floor.
type NonceManager struct {
	mu      sync.Mutex
	address string
	client  *EVMClient

	last   uint64
	primed bool
}

// NewNonceManager creates a nonce manager for a signer address on a client's chain.
func NewNonceManager(client *EVMClient, address string) *NonceManager {
	return &NonceManager{
		client:  client,
		address: address,
	}
}

// Next reserves the next nonce. It takes the max of the locally tracked
// sequence and the chain's pending nonce, so externally submitted
// transactions from the same key cannot cause reuse.
func (m *NonceManager) Next(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.client.PendingNonceAt(ctx, m.address)
	if err != nil {
		return 0, err
	}

	next := pending
	if m.primed && m.last+1 > next {
		next = m.last + 1
	}

	m.last = next
	m.primed = true
	return next, nil
}

// Reset drops the local sequence. Call after a "nonce too low" rejection
// so the next reservation re-syncs from the chain.
func (m *NonceManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primed = false
	m.last = 0
}
