package services

import (
	"context"

	"crosspay.facilitator/internal/domain/entities"
)

// BridgeResult reports the outcome of a bridge transfer. DestinationTxHash
// is empty when the mint has not confirmed by the time the call returns;
// Message carries the burn message so the worker can finish the mint via
// Reconcile without burning again.
type BridgeResult struct {
	BridgeTxHash      string
	DestinationTxHash string
	MessageID         string
	Message           string
	SourceChain       entities.Network
	DestChain         entities.Network
}

// BridgeProvider moves an asset between chains. Implementations are
// expected to be safe for concurrent use.
type BridgeProvider interface {
	SupportsChain(network entities.Network) bool
	IsUSDC(network entities.Network, asset string) bool
	// CheckLiquidity reports whether the amount (atomic units, decimal
	// string) can currently be bridged.
	CheckLiquidity(ctx context.Context, source, dest entities.Network, asset, amount string) bool
	// GetExchangeRate is 1.0 for USDC to USDC burn-and-mint.
	GetExchangeRate(source, dest entities.Network, sourceAsset, destAsset string) float64
	// Bridge burns on the source chain and mints to the recipient on the
	// destination chain.
	Bridge(ctx context.Context, source entities.Network, sourceTxHash string, dest entities.Network, destAsset, amount, recipient string) (*BridgeResult, error)
	// Reconcile finishes a transfer whose burn is recorded but whose mint
	// is not: it re-polls the attestation for the message and submits the
	// mint on the destination chain. Never burns.
	Reconcile(ctx context.Context, dest entities.Network, message string) (string, error)
}
