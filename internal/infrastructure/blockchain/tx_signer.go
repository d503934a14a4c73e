package blockchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// TxSigner holds a settlement key and submits contract writes.
type TxSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewTxSigner parses a hex private key (with or without 0x prefix).
func NewTxSigner(privateKeyHex string) (*TxSigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &TxSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's checksummed address.
func (s *TxSigner) Address() string {
	return s.address.Hex()
}

// Key exposes the raw key for typed-data signing.
func (s *TxSigner) Key() *ecdsa.PrivateKey {
	return s.key
}

// WriteContract submits a contract call as an EIP-1559 transaction and
// returns the transaction hash without waiting for a receipt.
//
// Two submission failures get one in-place retry each: a fee-underpriced
// rejection is resent with bumped fees on the same nonce, and a stale
// nonce resets the manager and reserves a fresh one.
func (s *TxSigner) WriteContract(ctx context.Context, client *EVMClient, nonces *NonceManager, to string, data []byte) (string, error) {
	toAddr := common.HexToAddress(to)

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.address,
		To:   &toAddr,
		Data: data,
	})
	if err != nil {
		return "", err
	}
	// Headroom for state drift between estimate and inclusion.
	gas = gas + gas/5

	tip, feeCap, err := client.SuggestFees(ctx)
	if err != nil {
		return "", err
	}

	nonce, err := nonces.Next(ctx)
	if err != nil {
		return "", err
	}

	hash, err := s.signAndSend(ctx, client, toAddr, data, nonce, gas, tip, feeCap)
	if err == nil {
		return hash, nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "replacement transaction underpriced") || strings.Contains(msg, "underpriced"):
		bumpedTip := bumpFee(tip)
		bumpedCap := bumpFee(feeCap)
		if bumpedCap.Cmp(bumpedTip) < 0 {
			bumpedCap = new(big.Int).Set(bumpedTip)
		}
		return s.signAndSend(ctx, client, toAddr, data, nonce, gas, bumpedTip, bumpedCap)
	case strings.Contains(msg, "nonce too low"):
		nonces.Reset()
		freshNonce, nerr := nonces.Next(ctx)
		if nerr != nil {
			return "", nerr
		}
		return s.signAndSend(ctx, client, toAddr, data, freshNonce, gas, tip, feeCap)
	}
	return "", err
}

func (s *TxSigner) signAndSend(ctx context.Context, client *EVMClient, to common.Address, data []byte, nonce, gas uint64, tip, feeCap *big.Int) (string, error) {
	chainID := client.ChainID()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", err
	}
	return signedTx.Hash().Hex(), nil
}

// bumpFee raises a fee by 12.5%, the minimum replacement increment most
// nodes accept.
func bumpFee(fee *big.Int) *big.Int {
	bumped := new(big.Int).Mul(fee, big.NewInt(1125))
	return bumped.Div(bumped, big.NewInt(1000))
}
