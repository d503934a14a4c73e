package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// stubBackend implements ethBackend with overridable function fields.
// Nil fields fall back to permissive defaults.
type stubBackend struct {
	chainID            *big.Int
	callContract       func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	codeAt             func(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	pendingNonceAt     func(ctx context.Context, account common.Address) (uint64, error)
	suggestGasTipCap   func(ctx context.Context) (*big.Int, error)
	headerByNumber     func(ctx context.Context, number *big.Int) (*types.Header, error)
	estimateGas        func(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	sendTransaction    func(ctx context.Context, tx *types.Transaction) error
	transactionReceipt func(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func (s *stubBackend) ChainID(ctx context.Context) (*big.Int, error) {
	if s.chainID != nil {
		return s.chainID, nil
	}
	return big.NewInt(84532), nil
}

func (s *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if s.callContract != nil {
		return s.callContract(ctx, msg, blockNumber)
	}
	return nil, nil
}

func (s *stubBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	if s.codeAt != nil {
		return s.codeAt(ctx, account, blockNumber)
	}
	return nil, nil
}

func (s *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if s.pendingNonceAt != nil {
		return s.pendingNonceAt(ctx, account)
	}
	return 0, nil
}

func (s *stubBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if s.suggestGasTipCap != nil {
		return s.suggestGasTipCap(ctx)
	}
	return big.NewInt(1_000_000_000), nil
}

func (s *stubBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if s.headerByNumber != nil {
		return s.headerByNumber(ctx, number)
	}
	return &types.Header{BaseFee: big.NewInt(100)}, nil
}

func (s *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if s.estimateGas != nil {
		return s.estimateGas(ctx, msg)
	}
	return 50_000, nil
}

func (s *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if s.sendTransaction != nil {
		return s.sendTransaction(ctx, tx)
	}
	return nil
}

func (s *stubBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if s.transactionReceipt != nil {
		return s.transactionReceipt(ctx, txHash)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}
