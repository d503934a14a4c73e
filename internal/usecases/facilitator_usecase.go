package usecases

import (
	"context"

	"go.uber.org/zap"

	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/scheme/crosschain"
	"crosspay.facilitator/pkg/logger"
	"crosspay.facilitator/pkg/metrics"
)

// ReasonUnexpectedError is returned when a scheme fails internally rather
// than with a stable verification reason.
const (
	ReasonUnsupportedScheme     = "unsupported_scheme"
	ReasonUnexpectedVerifyError = "unexpected_verify_error"
	ReasonUnexpectedSettleError = "unexpected_settle_error"
	ReasonHookAborted           = "aborted_by_hook"
)

// SchemeFacilitator is one registered payment scheme.
type SchemeFacilitator interface {
	Scheme() string
	Signers(network entities.Network) []string
	Verify(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.VerifyResponse, error)
	Settle(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.SettleResponse, error)
}

// FacilitatorUsecase dispatches verify and settle requests to the scheme
// matching the requirements, runs lifecycle hooks around them, and
// triggers bridging after a successful cross-chain settlement.
type FacilitatorUsecase struct {
	schemes  map[string]SchemeFacilitator
	registry *entities.ChainRegistry
	hooks    Hooks
	bridge   *BridgeUsecase
	// bridgeEnabled gates the after-settle bridging trigger.
	bridgeEnabled bool
}

// NewFacilitatorUsecase registers the given schemes. The scheme table is
// fixed at construction; dispatch never mutates it.
func NewFacilitatorUsecase(schemes []SchemeFacilitator, registry *entities.ChainRegistry, hooks Hooks, bridge *BridgeUsecase, bridgeEnabled bool) *FacilitatorUsecase {
	byName := make(map[string]SchemeFacilitator, len(schemes))
	for _, s := range schemes {
		byName[s.Scheme()] = s
	}
	return &FacilitatorUsecase{
		schemes:       byName,
		registry:      registry,
		hooks:         hooks,
		bridge:        bridge,
		bridgeEnabled: bridgeEnabled,
	}
}

func (u *FacilitatorUsecase) resolve(requirements entities.PaymentRequirements) (SchemeFacilitator, bool) {
	scheme, ok := u.schemes[requirements.Scheme]
	if !ok {
		return nil, false
	}
	if !requirements.Network.IsEVM() {
		return nil, false
	}
	if _, ok := u.registry.Get(requirements.Network); !ok {
		return nil, false
	}
	return scheme, true
}

// Verify validates a payment without settling it.
func (u *FacilitatorUsecase) Verify(ctx context.Context, req *entities.VerifyRequest) *entities.VerifyResponse {
	scheme, ok := u.resolve(req.PaymentRequirements)
	if !ok {
		return &entities.VerifyResponse{IsValid: false, InvalidReason: ReasonUnsupportedScheme}
	}

	for _, hook := range u.hooks.BeforeVerify {
		if result := hook(ctx, req); result.Abort {
			reason := result.Reason
			if reason == "" {
				reason = ReasonHookAborted
			}
			return &entities.VerifyResponse{IsValid: false, InvalidReason: reason}
		}
	}

	resp, err := scheme.Verify(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		logger.Error(ctx, "verify failed unexpectedly",
			zap.String("scheme", req.PaymentRequirements.Scheme),
			zap.String("network", string(req.PaymentRequirements.Network)),
			zap.Error(err))
		resp = &entities.VerifyResponse{IsValid: false, InvalidReason: ReasonUnexpectedVerifyError}
	}

	result := "invalid"
	if resp.IsValid {
		result = "valid"
	}
	metrics.VerifyTotal.WithLabelValues(req.PaymentRequirements.Scheme, string(req.PaymentRequirements.Network), result).Inc()

	if resp.IsValid {
		for _, hook := range u.hooks.AfterVerify {
			hook(ctx, req, resp)
		}
	} else {
		for _, hook := range u.hooks.VerifyFailure {
			hook(ctx, req, resp)
		}
	}
	return resp
}

// Settle executes a payment on-chain and, for cross-chain payments,
// enqueues the bridge leg.
func (u *FacilitatorUsecase) Settle(ctx context.Context, req *entities.SettleRequest) *entities.SettleResponse {
	scheme, ok := u.resolve(req.PaymentRequirements)
	if !ok {
		return &entities.SettleResponse{
			Success:     false,
			ErrorReason: ReasonUnsupportedScheme,
			Network:     req.PaymentRequirements.Network,
		}
	}

	for _, hook := range u.hooks.BeforeSettle {
		if result := hook(ctx, req); result.Abort {
			reason := result.Reason
			if reason == "" {
				reason = ReasonHookAborted
			}
			return &entities.SettleResponse{Success: false, ErrorReason: reason, Network: req.PaymentRequirements.Network}
		}
	}

	resp, err := scheme.Settle(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		logger.Error(ctx, "settle failed unexpectedly",
			zap.String("scheme", req.PaymentRequirements.Scheme),
			zap.String("network", string(req.PaymentRequirements.Network)),
			zap.Error(err))
		resp = &entities.SettleResponse{
			Success:     false,
			ErrorReason: ReasonUnexpectedSettleError,
			Network:     req.PaymentRequirements.Network,
		}
	}

	result := "failed"
	if resp.Success {
		result = "settled"
	}
	metrics.SettleTotal.WithLabelValues(req.PaymentRequirements.Scheme, string(req.PaymentRequirements.Network), result).Inc()

	if resp.Success {
		u.triggerBridge(ctx, req, resp)
		for _, hook := range u.hooks.AfterSettle {
			hook(ctx, req, resp)
		}
	} else {
		for _, hook := range u.hooks.SettleFailure {
			hook(ctx, req, resp)
		}
	}
	return resp
}

// triggerBridge enqueues the destination-chain leg of a settled
// cross-chain payment and starts processing it in the background.
func (u *FacilitatorUsecase) triggerBridge(ctx context.Context, req *entities.SettleRequest, resp *entities.SettleResponse) {
	if u.bridge == nil || !u.bridgeEnabled {
		return
	}
	if req.PaymentRequirements.Scheme != entities.SchemeCrossChain {
		return
	}
	info := crosschain.ExtractInfo(req.PaymentPayload)
	if info == nil {
		return
	}
	if info.DestinationNetwork == req.PaymentRequirements.Network {
		return
	}

	job, created, err := u.bridge.Enqueue(ctx,
		req.PaymentRequirements.Network,
		resp.Transaction,
		info.DestinationNetwork,
		info.DestinationAsset,
		req.PaymentRequirements.Amount,
		info.DestinationPayTo,
	)
	if err != nil {
		logger.Error(ctx, "failed to enqueue bridge job",
			zap.String("source_tx", resp.Transaction),
			zap.Error(err))
		return
	}
	if created {
		u.bridge.Dispatch(job)
	}
}

// GetSupported lists every scheme and network pairing this facilitator
// accepts, the extension keys it understands, and its signer addresses.
func (u *FacilitatorUsecase) GetSupported() *entities.SupportedResponse {
	var kinds []entities.SupportedKind
	signers := make(map[string][]string)

	for name, scheme := range u.schemes {
		for _, network := range u.registry.Networks() {
			kinds = append(kinds, entities.SupportedKind{
				X402Version: entities.X402Version,
				Scheme:      name,
				Network:     network,
			})
			for _, addr := range scheme.Signers(network) {
				namespace, _, err := network.Parse()
				if err != nil {
					continue
				}
				if !contains(signers[namespace], addr) {
					signers[namespace] = append(signers[namespace], addr)
				}
			}
		}
	}

	return &entities.SupportedResponse{
		Kinds:      kinds,
		Extensions: []string{crosschain.ExtensionKey},
		Signers:    signers,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
