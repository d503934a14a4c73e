package blockchain

import (
	"fmt"
	"sync"

	"crosspay.facilitator/internal/config"
	"crosspay.facilitator/internal/domain/entities"
)

// ClientFactory creates and caches EVM clients per network.
type ClientFactory struct {
	cfg      config.BlockchainConfig
	registry *entities.ChainRegistry

	mu      sync.RWMutex
	clients map[entities.Network]*EVMClient
}

// NewClientFactory creates a new client factory
func NewClientFactory(cfg config.BlockchainConfig, registry *entities.ChainRegistry) *ClientFactory {
	return &ClientFactory{
		cfg:      cfg,
		registry: registry,
		clients:  make(map[entities.Network]*EVMClient),
	}
}

// GetEVMClient returns the cached client for a network, dialing on first use.
func (f *ClientFactory) GetEVMClient(network entities.Network) (*EVMClient, error) {
	f.mu.RLock()
	client, ok := f.clients[network]
	f.mu.RUnlock()
	if ok {
		return client, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Another goroutine may have dialed while we waited for the lock.
	if client, ok := f.clients[network]; ok {
		return client, nil
	}

	if _, ok := f.registry.Get(network); !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	rpcURL := f.cfg.DefaultRPCURL
	if override, ok := f.cfg.RPCOverrides[string(network)]; ok {
		rpcURL = override
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("no RPC URL configured for network %s", network)
	}

	client, err := NewEVMClient(rpcURL, f.cfg.ReadTimeout, f.cfg.ReceiptTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", network, err)
	}

	f.clients[network] = client
	return client, nil
}

// RegisterEVMClient seeds the cache with a pre-built client. Used by tests.
func (f *ClientFactory) RegisterEVMClient(network entities.Network, client *EVMClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[network] = client
}
