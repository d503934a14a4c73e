package crosschain

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/domain/services"
	"crosspay.facilitator/internal/scheme/exactevm"
)

// Pre-verify failure reasons for cross-chain payments.
const (
	ReasonMissingExtension       = "missing_cross_chain_extension"
	ReasonInvalidDestinationPay  = "invalid_destination_pay_to"
	ReasonUnsupportedChainPair   = "unsupported_chain_pair"
	ReasonUnsupportedSourceAsset = "unsupported_source_asset"
	ReasonUnsupportedDestAsset   = "unsupported_destination_asset"
	ReasonInvalidSourcePayTo     = "invalid_source_pay_to"
	ReasonInsufficientLiquidity  = "insufficient_bridge_liquidity"
	ReasonInvalidExchangeRate    = "invalid_exchange_rate"
)

// Router is the scheme registered under "cross-chain". It validates the
// routing directive, rewrites payTo so the on-chain authorization pays
// the facilitator on the source chain, and delegates the actual transfer
// to the exact EVM scheme. The original destination stays inside the
// extension for the bridge worker.
type Router struct {
	exact    *exactevm.Scheme
	provider services.BridgeProvider
	// facilitatorAddress receives source-chain funds before bridging.
	facilitatorAddress string
}

// NewRouter creates the cross-chain scheme adapter.
func NewRouter(exact *exactevm.Scheme, provider services.BridgeProvider, facilitatorAddress string) *Router {
	return &Router{
		exact:              exact,
		provider:           provider,
		facilitatorAddress: facilitatorAddress,
	}
}

// Scheme returns the scheme identifier.
func (r *Router) Scheme() string {
	return entities.SchemeCrossChain
}

// Signers returns the facilitator's source-chain address.
func (r *Router) Signers(network entities.Network) []string {
	return r.exact.Signers(network)
}

// preVerify runs the mandatory cross-chain checks. Empty reason means the
// payment may proceed.
func (r *Router) preVerify(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*Info, string) {
	info := ExtractInfo(payload)
	if info == nil {
		return nil, ReasonMissingExtension
	}
	if !common.IsHexAddress(info.DestinationPayTo) {
		return nil, ReasonInvalidDestinationPay
	}
	source := requirements.Network
	dest := info.DestinationNetwork
	if !r.provider.SupportsChain(source) || !r.provider.SupportsChain(dest) {
		return nil, ReasonUnsupportedChainPair
	}
	if !r.provider.IsUSDC(source, requirements.Asset) {
		return nil, ReasonUnsupportedSourceAsset
	}
	if !r.provider.IsUSDC(dest, info.DestinationAsset) {
		return nil, ReasonUnsupportedDestAsset
	}
	// The authorization must pay the facilitator, not the merchant; the
	// merchant is paid on the destination chain by the bridge.
	if !strings.EqualFold(requirements.PayTo, r.facilitatorAddress) {
		return nil, ReasonInvalidSourcePayTo
	}
	if !r.provider.CheckLiquidity(ctx, source, dest, requirements.Asset, requirements.Amount) {
		return nil, ReasonInsufficientLiquidity
	}
	if !strings.EqualFold(requirements.Asset, info.DestinationAsset) || source != dest {
		if r.provider.GetExchangeRate(source, dest, requirements.Asset, info.DestinationAsset) <= 0 {
			return nil, ReasonInvalidExchangeRate
		}
	}
	return info, ""
}

// rewrite produces the exact-scheme view of a cross-chain payment.
func (r *Router) rewrite(payload entities.PaymentPayload, requirements entities.PaymentRequirements) (entities.PaymentPayload, entities.PaymentRequirements) {
	requirements.Scheme = entities.SchemeExact
	requirements.PayTo = r.facilitatorAddress
	payload.Accepted.Scheme = entities.SchemeExact
	payload.Accepted.PayTo = r.facilitatorAddress
	return payload, requirements
}

// Verify validates the routing directive and then the underlying payment.
func (r *Router) Verify(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.VerifyResponse, error) {
	_, reason := r.preVerify(ctx, payload, requirements)
	if reason != "" {
		return &entities.VerifyResponse{IsValid: false, InvalidReason: reason}, nil
	}
	payload, requirements = r.rewrite(payload, requirements)
	return r.exact.Verify(ctx, payload, requirements)
}

// Settle validates the routing directive and settles the source-chain leg.
// Bridging to the destination chain happens asynchronously after settle.
func (r *Router) Settle(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.SettleResponse, error) {
	_, reason := r.preVerify(ctx, payload, requirements)
	if reason != "" {
		return &entities.SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}, nil
	}
	payload, requirements = r.rewrite(payload, requirements)
	return r.exact.Settle(ctx, payload, requirements)
}
