package exactevm

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"crosspay.facilitator/internal/infrastructure/blockchain"
)

// erc6492MagicBytes is the 32-byte suffix marking a wrapped counterfactual
// signature: bytes32(uint256(keccak256("erc6492.invalid.signature")) - 1).
var erc6492MagicBytes = common.Hex2Bytes(
	"6492649264926492649264926492649264926492649264926492649264926492",
)

// universalSigValidatorAddress is the canonical ERC-6492 validator,
// deployed at the same address on all EVM chains.
const universalSigValidatorAddress = "0x164af34fAf9879394370C7f09064127C043A35E9"

const universalSigValidatorABI = `[{
	"inputs": [
		{"type": "address", "name": "_signer"},
		{"type": "bytes32", "name": "_hash"},
		{"type": "bytes", "name": "_signature"}
	],
	"name": "isValidSig",
	"outputs": [{"type": "bool"}],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// erc6492Signature is the unwrapped form of a possibly-wrapped signature.
// Factory is the zero address for plain signatures.
type erc6492Signature struct {
	Factory         common.Address
	FactoryCalldata []byte
	Inner           []byte
}

func isERC6492Signature(sig []byte) bool {
	return len(sig) >= 32 && bytes.Equal(sig[len(sig)-32:], erc6492MagicBytes)
}

// parseERC6492Signature unwraps abi.encode(factory, factoryCalldata, sig)
// plus the magic suffix. Non-wrapped input passes through as the inner
// signature.
func parseERC6492Signature(sig []byte) (*erc6492Signature, error) {
	if !isERC6492Signature(sig) {
		return &erc6492Signature{Inner: sig}, nil
	}

	payload := sig[:len(sig)-32]

	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: addressTy}, {Type: bytesTy}, {Type: bytesTy}}

	unpacked, err := args.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("malformed wrapped signature: %w", err)
	}
	factory, ok := unpacked[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("malformed wrapped signature: factory is not an address")
	}
	calldata, ok := unpacked[1].([]byte)
	if !ok {
		return nil, fmt.Errorf("malformed wrapped signature: factory calldata is not bytes")
	}
	inner, ok := unpacked[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("malformed wrapped signature: inner signature is not bytes")
	}

	return &erc6492Signature{Factory: factory, FactoryCalldata: calldata, Inner: inner}, nil
}

// verifyECDSA recovers the signer of a 65-byte (r,s,v) signature and
// compares it against the claimed payer.
func verifyECDSA(payer string, digest [32]byte, sig []byte) (bool, error) {
	if len(sig) != 65 {
		return false, fmt.Errorf("ECDSA signature must be 65 bytes, got %d", len(sig))
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return false, err
	}
	recovered := crypto.PubkeyToAddress(*pubKey)
	return strings.EqualFold(recovered.Hex(), payer), nil
}

// verifyERC1271 asks a deployed contract wallet whether the signature is
// valid via isValidSignature(bytes32,bytes).
func verifyERC1271(ctx context.Context, client *blockchain.EVMClient, wallet string, digest [32]byte, sig []byte) (bool, error) {
	parsed, err := abi.JSON(strings.NewReader(eip1271ABI))
	if err != nil {
		return false, err
	}
	data, err := parsed.Pack("isValidSignature", digest, sig)
	if err != nil {
		return false, err
	}

	result, err := client.CallView(ctx, wallet, data)
	if err != nil {
		return false, err
	}
	if len(result) < 4 {
		return false, fmt.Errorf("short isValidSignature response: %d bytes", len(result))
	}

	var magic [4]byte
	copy(magic[:], result[:4])
	return magic == eip1271MagicValue, nil
}

// verifyERC6492 validates a wrapped signature for an undeployed wallet by
// calling the universal validator, which simulates the factory deployment
// and the EIP-1271 check in one eth_call.
func verifyERC6492(ctx context.Context, client *blockchain.EVMClient, payer string, digest [32]byte, wrapped []byte) (bool, error) {
	parsed, err := abi.JSON(strings.NewReader(universalSigValidatorABI))
	if err != nil {
		return false, err
	}
	data, err := parsed.Pack("isValidSig", common.HexToAddress(payer), digest, wrapped)
	if err != nil {
		return false, err
	}

	result, err := client.CallView(ctx, universalSigValidatorAddress, data)
	if err != nil {
		return false, err
	}
	values, err := parsed.Unpack("isValidSig", result)
	if err != nil {
		return false, err
	}
	valid, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isValidSig return type")
	}
	return valid, nil
}

// verifySignature runs the signature ladder: EOA ECDSA recovery, then
// EIP-1271 for deployed contract wallets, then the ERC-6492 validator for
// counterfactual wallets.
func verifySignature(ctx context.Context, client *blockchain.EVMClient, payer string, digest [32]byte, sig []byte) (bool, error) {
	parsed, err := parseERC6492Signature(sig)
	if err != nil {
		return false, err
	}

	code, codeErr := client.GetCode(ctx, payer)
	deployed := codeErr == nil && len(code) > 0

	if isERC6492Signature(sig) && !deployed {
		return verifyERC6492(ctx, client, payer, digest, sig)
	}
	if deployed {
		return verifyERC1271(ctx, client, payer, digest, parsed.Inner)
	}
	return verifyECDSA(payer, digest, parsed.Inner)
}
