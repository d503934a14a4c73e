package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrorKind classifies chain-facing failures for callers.
type ErrorKind string

const (
	ErrKindTimeout  ErrorKind = "network-timeout"
	ErrKindNotFound ErrorKind = "not-found"
	ErrKindRevert   ErrorKind = "revert"
	ErrKindPending  ErrorKind = "pending"
)

// ChainError wraps an RPC failure with its classification.
type ChainError struct {
	Kind ErrorKind
	Err  error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether callers may retry the operation.
func (e *ChainError) IsRetryable() bool {
	return e.Kind == ErrKindTimeout || e.Kind == ErrKindPending
}

// ClassifyError wraps an error with its chain error kind.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var chainErr *ChainError
	if errors.As(err, &chainErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ChainError{Kind: ErrKindTimeout, Err: err}
	case errors.Is(err, ethereum.NotFound):
		return &ChainError{Kind: ErrKindNotFound, Err: err}
	case strings.Contains(strings.ToLower(err.Error()), "execution reverted"):
		return &ChainError{Kind: ErrKindRevert, Err: err}
	}
	return err
}

// ethBackend is the subset of ethclient.Client the facilitator uses.
// Tests supply a stub; production wraps a dialed client.
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var dialEVMClient = func(rpcURL string) (ethBackend, error) {
	return ethclient.Dial(rpcURL)
}

// EVMClient provides EVM blockchain interaction for one network.
type EVMClient struct {
	backend        ethBackend
	chainID        *big.Int
	rpcURL         string
	readTimeout    time.Duration
	receiptTimeout time.Duration
	pollInterval   time.Duration
}

// NewEVMClient dials an RPC endpoint and resolves the chain id.
func NewEVMClient(rpcURL string, readTimeout, receiptTimeout time.Duration) (*EVMClient, error) {
	backend, err := dialEVMClient(rpcURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, ClassifyError(err)
	}

	return &EVMClient{
		backend:        backend,
		chainID:        chainID,
		rpcURL:         rpcURL,
		readTimeout:    readTimeout,
		receiptTimeout: receiptTimeout,
		pollInterval:   2 * time.Second,
	}, nil
}

// NewEVMClientWithBackend creates a client over an injected backend.
// Intended for unit tests where RPC sockets are unavailable.
func NewEVMClientWithBackend(chainID *big.Int, backend ethBackend) *EVMClient {
	if chainID == nil {
		chainID = big.NewInt(1)
	}
	return &EVMClient{
		backend:        backend,
		chainID:        chainID,
		readTimeout:    30 * time.Second,
		receiptTimeout: 120 * time.Second,
		pollInterval:   10 * time.Millisecond,
	}
}

// ChainID returns the chain ID
func (c *EVMClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *EVMClient) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.readTimeout)
}

// CallView executes a read-only contract call
func (c *EVMClient) CallView(ctx context.Context, to string, data []byte) ([]byte, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	addr := common.HexToAddress(to)
	msg := ethereum.CallMsg{
		To:   &addr,
		Data: data,
	}
	out, err := c.backend.CallContract(rctx, msg, nil)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return out, nil
}

// GetTokenBalance gets the ERC20 token balance of an address
func (c *EVMClient) GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error) {
	owner := common.HexToAddress(ownerAddress)

	// balanceOf(address) selector: 0x70a08231
	data := append(common.Hex2Bytes("70a08231"), common.LeftPadBytes(owner.Bytes(), 32)...)

	result, err := c.CallView(ctx, tokenAddress, data)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(result), nil
}

// GetDomainSeparator reads the token's EIP-712 DOMAIN_SEPARATOR().
func (c *EVMClient) GetDomainSeparator(ctx context.Context, tokenAddress string) ([32]byte, error) {
	var sep [32]byte

	// DOMAIN_SEPARATOR() selector: 0x3644e515
	result, err := c.CallView(ctx, tokenAddress, common.Hex2Bytes("3644e515"))
	if err != nil {
		return sep, err
	}
	if len(result) < 32 {
		return sep, &ChainError{Kind: ErrKindRevert, Err: fmt.Errorf("short DOMAIN_SEPARATOR response: %d bytes", len(result))}
	}
	copy(sep[:], result[:32])
	return sep, nil
}

// GetTokenName reads the token's name().
func (c *EVMClient) GetTokenName(ctx context.Context, tokenAddress string) (string, error) {
	// name() selector: 0x06fdde03
	result, err := c.CallView(ctx, tokenAddress, common.Hex2Bytes("06fdde03"))
	if err != nil {
		return "", err
	}
	return unpackString(result)
}

// GetTokenVersion reads the token's version().
func (c *EVMClient) GetTokenVersion(ctx context.Context, tokenAddress string) (string, error) {
	// version() selector: 0x54fd4d50
	result, err := c.CallView(ctx, tokenAddress, common.Hex2Bytes("54fd4d50"))
	if err != nil {
		return "", err
	}
	return unpackString(result)
}

// GetCode returns the deployed bytecode at an address.
func (c *EVMClient) GetCode(ctx context.Context, address string) ([]byte, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	code, err := c.backend.CodeAt(rctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, ClassifyError(err)
	}
	return code, nil
}

// PendingNonceAt returns the next nonce including mempool transactions.
func (c *EVMClient) PendingNonceAt(ctx context.Context, address string) (uint64, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(rctx, common.HexToAddress(address))
	if err != nil {
		return 0, ClassifyError(err)
	}
	return nonce, nil
}

// SuggestFees returns an EIP-1559 fee pair (tip cap, fee cap).
func (c *EVMClient) SuggestFees(ctx context.Context) (*big.Int, *big.Int, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	tip, err := c.backend.SuggestGasTipCap(rctx)
	if err != nil {
		return nil, nil, ClassifyError(err)
	}
	head, err := c.backend.HeaderByNumber(rctx, nil)
	if err != nil {
		return nil, nil, ClassifyError(err)
	}

	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return tip, feeCap, nil
}

// EstimateGas estimates gas for a transaction
func (c *EVMClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	gas, err := c.backend.EstimateGas(rctx, msg)
	if err != nil {
		return 0, ClassifyError(err)
	}
	return gas, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *EVMClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	if err := c.backend.SendTransaction(rctx, tx); err != nil {
		return ClassifyError(err)
	}
	return nil
}

// TransactionReceipt fetches a receipt without waiting.
func (c *EVMClient) TransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	rctx, cancel := c.readCtx(ctx)
	defer cancel()

	receipt, err := c.backend.TransactionReceipt(rctx, common.HexToHash(txHash))
	if err != nil {
		return nil, ClassifyError(err)
	}
	return receipt, nil
}

// WaitForTransactionReceipt polls for a receipt until the receipt deadline.
// On deadline it returns a pending ChainError, which is retryable.
func (c *EVMClient) WaitForTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	deadline := time.Now().Add(c.receiptTimeout)
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		rctx, cancel := c.readCtx(ctx)
		receipt, err := c.backend.TransactionReceipt(rctx, hash)
		cancel()

		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, ClassifyError(err)
		}
		if time.Now().After(deadline) {
			return nil, &ChainError{Kind: ErrKindPending, Err: fmt.Errorf("transaction %s not mined within %s", txHash, c.receiptTimeout)}
		}

		select {
		case <-ctx.Done():
			return nil, ClassifyError(ctx.Err())
		case <-ticker.C:
		}
	}
}

var stringReturnABI = abi.Arguments{{Type: mustNewType("string")}}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func unpackString(data []byte) (string, error) {
	values, err := stringReturnABI.Unpack(data)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected return type for string read")
	}
	return s, nil
}
