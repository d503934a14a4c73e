package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/domain/services"
	"crosspay.facilitator/internal/infrastructure/blockchain"
	"crosspay.facilitator/pkg/logger"
)

const erc20ApproveABI = `[{
	"inputs": [
		{"type": "address", "name": "spender"},
		{"type": "uint256", "name": "amount"}
	],
	"name": "approve",
	"outputs": [{"type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}, {
	"inputs": [
		{"type": "address", "name": "owner"},
		{"type": "address", "name": "spender"}
	],
	"name": "allowance",
	"outputs": [{"type": "uint256"}],
	"stateMutability": "view",
	"type": "function"
}]`

const tokenMessengerABI = `[{
	"inputs": [
		{"type": "uint256", "name": "amount"},
		{"type": "uint32", "name": "destinationDomain"},
		{"type": "bytes32", "name": "mintRecipient"},
		{"type": "address", "name": "burnToken"}
	],
	"name": "depositForBurn",
	"outputs": [{"type": "uint64", "name": "nonce"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

const messageTransmitterABI = `[{
	"inputs": [
		{"type": "bytes", "name": "message"},
		{"type": "bytes", "name": "attestation"}
	],
	"name": "receiveMessage",
	"outputs": [{"type": "bool", "name": "success"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// messageSentTopic is keccak256("MessageSent(bytes)"), emitted by the
// MessageTransmitter during depositForBurn.
var messageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes)"))

// Config tunes the attestation poll loop.
type Config struct {
	// AttestationURL is the attestation service base URL.
	AttestationURL string
	// PollInterval between attestation requests.
	PollInterval time.Duration
	// AttestationTimeout bounds the wait for one attestation. On timeout
	// the bridge returns with the mint still pending.
	AttestationTimeout time.Duration
	// SettleAddress is the settle-side payTo on the source chain. When it
	// equals the bridge signer, the incoming settle transfer counts toward
	// burn liquidity.
	SettleAddress string
}

// CCTPProvider bridges USDC by burn-and-mint: burn on the source chain
// via the TokenMessenger, fetch the attestation, then mint on the
// destination chain via receiveMessage.
type CCTPProvider struct {
	factory    *blockchain.ClientFactory
	signer     *blockchain.TxSigner
	nonces     *blockchain.NonceRegistry
	registry   *entities.ChainRegistry
	httpClient *http.Client
	cfg        Config

	erc20ABI       abi.ABI
	messengerABI   abi.ABI
	transmitterABI abi.ABI
}

// NewCCTPProvider creates the provider. The signer is the bridge key; it
// may be the same key the settle path uses, in which case both paths
// share nonce managers through the registry.
func NewCCTPProvider(factory *blockchain.ClientFactory, signer *blockchain.TxSigner, nonces *blockchain.NonceRegistry, registry *entities.ChainRegistry, cfg Config) (*CCTPProvider, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.AttestationTimeout == 0 {
		cfg.AttestationTimeout = 2 * time.Minute
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ApproveABI))
	if err != nil {
		return nil, err
	}
	messenger, err := abi.JSON(strings.NewReader(tokenMessengerABI))
	if err != nil {
		return nil, err
	}
	transmitter, err := abi.JSON(strings.NewReader(messageTransmitterABI))
	if err != nil {
		return nil, err
	}

	return &CCTPProvider{
		factory:        factory,
		signer:         signer,
		nonces:         nonces,
		registry:       registry,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		cfg:            cfg,
		erc20ABI:       erc20,
		messengerABI:   messenger,
		transmitterABI: transmitter,
	}, nil
}

// SupportsChain reports whether the network has burn-and-mint contracts.
func (p *CCTPProvider) SupportsChain(network entities.Network) bool {
	chain, ok := p.registry.Get(network)
	return ok && chain.TokenMessenger != "" && chain.MessageTransmitter != ""
}

// IsUSDC checks the asset against the per-chain USDC allowlist.
func (p *CCTPProvider) IsUSDC(network entities.Network, asset string) bool {
	return p.registry.IsUSDC(network, asset)
}

// CheckLiquidity verifies the bridge signer holds enough source-chain USDC
// to burn. Burn-and-mint needs no destination pool, so the source balance
// is the only constraint. The settle transfer lands before the burn, so
// the incoming amount counts toward the balance only when settlement pays
// the bridge signer itself.
func (p *CCTPProvider) CheckLiquidity(ctx context.Context, source, dest entities.Network, asset, amount string) bool {
	required, ok := new(big.Int).SetString(amount, 10)
	if !ok || required.Sign() <= 0 {
		return false
	}
	if !p.SupportsChain(source) || !p.SupportsChain(dest) {
		return false
	}

	client, err := p.factory.GetEVMClient(source)
	if err != nil {
		return false
	}
	balance, err := client.GetTokenBalance(ctx, asset, p.signer.Address())
	if err != nil {
		logger.Warn(ctx, "liquidity check failed",
			zap.String("network", string(source)), zap.Error(err))
		return false
	}

	available := new(big.Int).Set(balance)
	if strings.EqualFold(p.cfg.SettleAddress, p.signer.Address()) {
		available.Add(available, required)
	}
	return available.Cmp(required) >= 0
}

// GetExchangeRate is 1.0 for USDC to USDC, 0 otherwise.
func (p *CCTPProvider) GetExchangeRate(source, dest entities.Network, sourceAsset, destAsset string) float64 {
	if p.IsUSDC(source, sourceAsset) && p.IsUSDC(dest, destAsset) {
		return 1.0
	}
	return 0
}

// Bridge burns amount on the source chain and mints to recipient on the
// destination chain. If the attestation is not ready before the timeout
// the result carries the burn hash and message id but no destination
// hash; the caller reconciles the mint later.
func (p *CCTPProvider) Bridge(ctx context.Context, source entities.Network, sourceTxHash string, dest entities.Network, destAsset, amount, recipient string) (*services.BridgeResult, error) {
	sourceChain, ok := p.registry.Get(source)
	if !ok {
		return nil, fmt.Errorf("unsupported destination: source chain %s", source)
	}
	destChain, ok := p.registry.Get(dest)
	if !ok {
		return nil, fmt.Errorf("unsupported destination: chain %s", dest)
	}
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid bridge amount: %s", amount)
	}
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("invalid recipient: %s", recipient)
	}

	sourceClient, err := p.factory.GetEVMClient(source)
	if err != nil {
		return nil, err
	}
	sourceNonces, err := p.nonces.For(source, p.signer.Address())
	if err != nil {
		return nil, err
	}

	if err := p.ensureAllowance(ctx, sourceClient, sourceNonces, sourceChain, value); err != nil {
		return nil, err
	}

	burnTxHash, message, err := p.burn(ctx, sourceClient, sourceNonces, sourceChain, destChain, value, recipient)
	if err != nil {
		return nil, err
	}

	messageHash := crypto.Keccak256Hash(message)
	result := &services.BridgeResult{
		BridgeTxHash: burnTxHash,
		MessageID:    messageHash.Hex(),
		Message:      hexutil.Encode(message),
		SourceChain:  source,
		DestChain:    dest,
	}

	// Past this point the burn is final. A missing mint is reported as a
	// partial result, never as an error: the worker persists the message
	// and finishes via Reconcile.
	attestation, err := p.waitForAttestation(ctx, messageHash)
	if err != nil {
		logger.Warn(ctx, "attestation not ready, mint deferred",
			zap.String("message_id", result.MessageID),
			zap.Error(err))
		return result, nil
	}

	mintTxHash, err := p.mint(ctx, dest, destChain, message, attestation)
	if err != nil {
		logger.Warn(ctx, "mint not confirmed, reconciliation pending",
			zap.String("message_id", result.MessageID),
			zap.Error(err))
		return result, nil
	}
	result.DestinationTxHash = mintTxHash

	logger.Info(ctx, "bridge transfer complete",
		zap.String("source_tx", sourceTxHash),
		zap.String("burn_tx", burnTxHash),
		zap.String("mint_tx", mintTxHash))
	return result, nil
}

// Reconcile completes a bridge whose burn is already on-chain: it fetches
// the attestation for the recorded message and submits the mint on the
// destination chain. No source-chain transaction is ever sent here.
func (p *CCTPProvider) Reconcile(ctx context.Context, dest entities.Network, message string) (string, error) {
	destChain, ok := p.registry.Get(dest)
	if !ok {
		return "", fmt.Errorf("unsupported destination: chain %s", dest)
	}
	raw, err := hexutil.Decode(message)
	if err != nil {
		return "", fmt.Errorf("malformed bridge message: %w", err)
	}

	attestation, err := p.waitForAttestation(ctx, crypto.Keccak256Hash(raw))
	if err != nil {
		return "", err
	}
	return p.mint(ctx, dest, destChain, raw, attestation)
}

// ensureAllowance approves the TokenMessenger when the current allowance
// cannot cover the burn.
func (p *CCTPProvider) ensureAllowance(ctx context.Context, client *blockchain.EVMClient, nonces *blockchain.NonceManager, chain entities.Chain, value *big.Int) error {
	data, err := p.erc20ABI.Pack("allowance", common.HexToAddress(p.signer.Address()), common.HexToAddress(chain.TokenMessenger))
	if err != nil {
		return err
	}
	raw, err := client.CallView(ctx, chain.USDCAddress, data)
	if err != nil {
		return err
	}
	allowance := new(big.Int).SetBytes(raw)
	if allowance.Cmp(value) >= 0 {
		return nil
	}

	approveData, err := p.erc20ABI.Pack("approve", common.HexToAddress(chain.TokenMessenger), value)
	if err != nil {
		return err
	}
	txHash, err := p.signer.WriteContract(ctx, client, nonces, chain.USDCAddress, approveData)
	if err != nil {
		return fmt.Errorf("approve failed: %w", err)
	}
	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return fmt.Errorf("approve receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("approve reverted: %s", txHash)
	}
	return nil
}

// burn submits depositForBurn and extracts the MessageSent payload from
// the receipt logs.
func (p *CCTPProvider) burn(ctx context.Context, client *blockchain.EVMClient, nonces *blockchain.NonceManager, sourceChain, destChain entities.Chain, value *big.Int, recipient string) (string, []byte, error) {
	var mintRecipient [32]byte
	copy(mintRecipient[12:], common.HexToAddress(recipient).Bytes())

	data, err := p.messengerABI.Pack("depositForBurn", value, destChain.CCTPDomain, mintRecipient, common.HexToAddress(sourceChain.USDCAddress))
	if err != nil {
		return "", nil, err
	}

	txHash, err := p.signer.WriteContract(ctx, client, nonces, sourceChain.TokenMessenger, data)
	if err != nil {
		return "", nil, fmt.Errorf("depositForBurn failed: %w", err)
	}
	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return "", nil, fmt.Errorf("depositForBurn receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", nil, fmt.Errorf("depositForBurn reverted: %s", txHash)
	}

	message, err := extractMessageSent(receipt)
	if err != nil {
		return "", nil, err
	}
	return txHash, message, nil
}

// extractMessageSent finds the MessageSent(bytes) log and unpacks the
// message bytes from its data.
func extractMessageSent(receipt *types.Receipt) ([]byte, error) {
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytesTy}}

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != messageSentTopic {
			continue
		}
		unpacked, err := args.Unpack(log.Data)
		if err != nil {
			return nil, fmt.Errorf("malformed MessageSent log: %w", err)
		}
		message, ok := unpacked[0].([]byte)
		if !ok {
			return nil, fmt.Errorf("malformed MessageSent log: payload is not bytes")
		}
		return message, nil
	}
	return nil, fmt.Errorf("no MessageSent event in burn receipt %s", receipt.TxHash.Hex())
}

type attestationResponse struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
}

// waitForAttestation polls the attestation service until the message is
// attested or the timeout passes.
func (p *CCTPProvider) waitForAttestation(ctx context.Context, messageHash common.Hash) ([]byte, error) {
	deadline := time.Now().Add(p.cfg.AttestationTimeout)
	url := fmt.Sprintf("%s/v1/attestations/%s", strings.TrimRight(p.cfg.AttestationURL, "/"), messageHash.Hex())

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		attestation, done, err := p.fetchAttestation(ctx, url)
		if err == nil && done {
			return attestation, nil
		}
		if err != nil {
			logger.Debug(ctx, "attestation fetch failed", zap.String("url", url), zap.Error(err))
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("attestation for %s not ready within %s", messageHash.Hex(), p.cfg.AttestationTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *CCTPProvider) fetchAttestation(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch attestation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("attestation service returned %d", resp.StatusCode)
	}

	var body attestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, err
	}
	if body.Status != "complete" || body.Attestation == "" {
		return nil, false, nil
	}
	return common.FromHex(body.Attestation), true, nil
}

// mint submits receiveMessage on the destination chain.
func (p *CCTPProvider) mint(ctx context.Context, dest entities.Network, destChain entities.Chain, message, attestation []byte) (string, error) {
	client, err := p.factory.GetEVMClient(dest)
	if err != nil {
		return "", err
	}
	nonces, err := p.nonces.For(dest, p.signer.Address())
	if err != nil {
		return "", err
	}

	data, err := p.transmitterABI.Pack("receiveMessage", message, attestation)
	if err != nil {
		return "", err
	}
	txHash, err := p.signer.WriteContract(ctx, client, nonces, destChain.MessageTransmitter, data)
	if err != nil {
		return "", fmt.Errorf("receiveMessage failed: %w", err)
	}
	receipt, err := client.WaitForTransactionReceipt(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("receiveMessage receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("receiveMessage reverted: %s", txHash)
	}
	return txHash, nil
}
