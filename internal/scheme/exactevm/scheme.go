package exactevm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/infrastructure/blockchain"
	"crosspay.facilitator/pkg/logger"
)

// Config holds scheme-level settlement options.
type Config struct {
	// DeployERC4337WithEIP6492 lets settle deploy a counterfactual smart
	// wallet from its wrapped signature before transferring.
	DeployERC4337WithEIP6492 bool
}

// Scheme verifies and settles EIP-3009 transferWithAuthorization payments
// on EVM chains.
type Scheme struct {
	factory *blockchain.ClientFactory
	signer  *blockchain.TxSigner
	nonces  *blockchain.NonceRegistry
	domains *domainCache
	config  Config

	vrsABI   abi.ABI
	bytesABI abi.ABI
}

// New creates the exact EVM scheme.
func New(factory *blockchain.ClientFactory, signer *blockchain.TxSigner, nonces *blockchain.NonceRegistry, config Config) (*Scheme, error) {
	vrsABI, err := abi.JSON(strings.NewReader(transferWithAuthorizationVRSABI))
	if err != nil {
		return nil, err
	}
	bytesABI, err := abi.JSON(strings.NewReader(transferWithAuthorizationBytesABI))
	if err != nil {
		return nil, err
	}
	return &Scheme{
		factory:  factory,
		signer:   signer,
		nonces:   nonces,
		domains:  newDomainCache(),
		config:   config,
		vrsABI:   vrsABI,
		bytesABI: bytesABI,
	}, nil
}

// Scheme returns the scheme identifier.
func (s *Scheme) Scheme() string {
	return entities.SchemeExact
}

// Signers returns the settlement addresses used on EVM chains.
func (s *Scheme) Signers(_ entities.Network) []string {
	return []string{s.signer.Address()}
}

func invalid(reason, payer string) *entities.VerifyResponse {
	return &entities.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}

// Verify checks a payment payload against requirements without touching
// chain state. Every failure carries a stable reason.
func (s *Scheme) Verify(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.VerifyResponse, error) {
	if payload.Accepted.Scheme != entities.SchemeExact || requirements.Scheme != entities.SchemeExact {
		return invalid(ReasonUnsupportedScheme, ""), nil
	}
	if payload.Accepted.Network != requirements.Network {
		return invalid(ReasonNetworkMismatch, ""), nil
	}

	evmPayload, err := payload.ExactPayload()
	if err != nil {
		return invalid(ReasonInvalidPayload, ""), nil
	}
	auth := evmPayload.Authorization
	payer := auth.From

	extra, err := requirements.ExactExtra()
	if err != nil || extra.Name == "" || extra.Version == "" {
		return invalid(ReasonMissingEIP712Domain, payer), nil
	}

	client, err := s.factory.GetEVMClient(requirements.Network)
	if err != nil {
		return nil, err
	}

	domain, err := resolveDomain(ctx, client, s.domains, requirements.Network, requirements.Asset, extra)
	if err != nil {
		return invalid(ReasonDomainSeparatorMismatch, payer), nil
	}

	digest, err := hashTransferAuthorization(domain, auth)
	if err != nil {
		return invalid(ReasonInvalidSignature, payer), nil
	}
	sig := common.FromHex(evmPayload.Signature)
	ok, err := verifySignature(ctx, client, payer, digest, sig)
	if err != nil || !ok {
		return invalid(ReasonInvalidSignature, payer), nil
	}

	if !strings.EqualFold(auth.To, requirements.PayTo) {
		return invalid(ReasonRecipientMismatch, payer), nil
	}

	now := time.Now().Unix()
	validAfter, okAfter := new(big.Int).SetString(auth.ValidAfter, 10)
	validBefore, okBefore := new(big.Int).SetString(auth.ValidBefore, 10)
	if !okBefore || validBefore.Cmp(big.NewInt(now+validBeforeGrace)) <= 0 {
		return invalid(ReasonValidBefore, payer), nil
	}
	if !okAfter || validAfter.Cmp(big.NewInt(now)) > 0 {
		return invalid(ReasonValidAfter, payer), nil
	}

	required, okAmount := new(big.Int).SetString(requirements.Amount, 10)
	if !okAmount {
		return invalid(ReasonAuthorizationValue, payer), nil
	}

	// Best effort: an RPC failure here must not fail verify.
	if balance, err := client.GetTokenBalance(ctx, requirements.Asset, payer); err == nil {
		if balance.Cmp(required) < 0 {
			return invalid(ReasonInsufficientFunds, payer), nil
		}
	} else {
		logger.Warn(ctx, "balance check skipped",
			zap.String("network", string(requirements.Network)),
			zap.String("asset", requirements.Asset),
			zap.Error(err))
	}

	authValue, okValue := new(big.Int).SetString(auth.Value, 10)
	if !okValue || authValue.Cmp(required) < 0 {
		return invalid(ReasonAuthorizationValue, payer), nil
	}

	return &entities.VerifyResponse{IsValid: true, Payer: payer}, nil
}

func settleFailure(reason, payer string, network entities.Network) *entities.SettleResponse {
	return &entities.SettleResponse{Success: false, ErrorReason: reason, Payer: payer, Network: network}
}

// Settle re-verifies and then executes transferWithAuthorization on-chain.
// Replay safety comes from the authorization nonce: the token contract
// rejects a second transfer with the same nonce.
func (s *Scheme) Settle(ctx context.Context, payload entities.PaymentPayload, requirements entities.PaymentRequirements) (*entities.SettleResponse, error) {
	verifyResp, err := s.Verify(ctx, payload, requirements)
	if err != nil {
		return nil, err
	}
	if !verifyResp.IsValid {
		return settleFailure(verifyResp.InvalidReason, verifyResp.Payer, requirements.Network), nil
	}
	payer := verifyResp.Payer

	evmPayload, err := payload.ExactPayload()
	if err != nil {
		return settleFailure(ReasonInvalidPayload, payer, requirements.Network), nil
	}
	auth := evmPayload.Authorization

	client, err := s.factory.GetEVMClient(requirements.Network)
	if err != nil {
		return nil, err
	}

	sigData, err := parseERC6492Signature(common.FromHex(evmPayload.Signature))
	if err != nil {
		return settleFailure(ReasonInvalidSignature, payer, requirements.Network), nil
	}

	if sigData.Factory != (common.Address{}) && len(sigData.FactoryCalldata) > 0 {
		if resp := s.deployWalletIfNeeded(ctx, client, requirements.Network, payer, sigData); resp != nil {
			return resp, nil
		}
	}

	data, err := s.packTransfer(auth, sigData.Inner)
	if err != nil {
		return settleFailure(ReasonInvalidPayload, payer, requirements.Network), nil
	}

	nonces, err := s.nonces.For(requirements.Network, s.signer.Address())
	if err != nil {
		return nil, err
	}

	txHash, err := s.signer.WriteContract(ctx, client, nonces, requirements.Asset, data)
	if err != nil {
		logger.Error(ctx, "settlement transaction failed",
			zap.String("network", string(requirements.Network)),
			zap.String("payer", payer),
			zap.Error(err))
		return settleFailure(ReasonTransactionFailed, payer, requirements.Network), nil
	}

	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return &entities.SettleResponse{
			Success:     false,
			ErrorReason: ReasonTransactionFailed,
			Payer:       payer,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &entities.SettleResponse{
			Success:     false,
			ErrorReason: ReasonInvalidTransactionState,
			Payer:       payer,
			Transaction: txHash,
			Network:     requirements.Network,
		}, nil
	}

	logger.Info(ctx, "payment settled",
		zap.String("network", string(requirements.Network)),
		zap.String("payer", payer),
		zap.String("tx_hash", txHash))

	return &entities.SettleResponse{
		Success:     true,
		Payer:       payer,
		Transaction: txHash,
		Network:     requirements.Network,
	}, nil
}

// deployWalletIfNeeded submits the factory deployment carried in a
// wrapped signature. Returns a failure response, or nil to continue.
func (s *Scheme) deployWalletIfNeeded(ctx context.Context, client *blockchain.EVMClient, network entities.Network, payer string, sigData *erc6492Signature) *entities.SettleResponse {
	code, err := client.GetCode(ctx, payer)
	if err != nil {
		return settleFailure(ReasonTransactionFailed, payer, network)
	}
	if len(code) > 0 {
		return nil
	}
	if !s.config.DeployERC4337WithEIP6492 {
		return settleFailure(ReasonUndeployedSmartWallet, payer, network)
	}

	nonces, err := s.nonces.For(network, s.signer.Address())
	if err != nil {
		return settleFailure(ReasonWalletDeploymentFailed, payer, network)
	}
	txHash, err := s.signer.WriteContract(ctx, client, nonces, sigData.Factory.Hex(), sigData.FactoryCalldata)
	if err != nil {
		return settleFailure(ReasonWalletDeploymentFailed, payer, network)
	}
	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil || receipt.Status != types.ReceiptStatusSuccessful {
		return settleFailure(ReasonWalletDeploymentFailed, payer, network)
	}

	logger.Info(ctx, "smart wallet deployed",
		zap.String("network", string(network)),
		zap.String("wallet", payer),
		zap.String("tx_hash", txHash))
	return nil
}

// packTransfer encodes the transferWithAuthorization call, choosing the
// (v,r,s) overload for 65-byte EOA signatures and the bytes overload for
// contract wallet signatures.
func (s *Scheme) packTransfer(auth entities.ExactAuthorization, sig []byte) ([]byte, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}
	nonceBytes := common.FromHex(auth.Nonce)
	if len(nonceBytes) != 32 {
		return nil, fmt.Errorf("authorization nonce must be 32 bytes, got %d", len(nonceBytes))
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	from := common.HexToAddress(auth.From)
	to := common.HexToAddress(auth.To)

	if len(sig) == 65 {
		var r, sv [32]byte
		copy(r[:], sig[0:32])
		copy(sv[:], sig[32:64])
		v := sig[64]
		if v == 0 || v == 1 {
			v += 27
		}
		return s.vrsABI.Pack("transferWithAuthorization", from, to, value, validAfter, validBefore, nonce, v, r, sv)
	}
	return s.bytesABI.Pack("transferWithAuthorization", from, to, value, validAfter, validBefore, nonce, sig)
}
