package exactevm

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"crosspay.facilitator/internal/domain/entities"
)

func TestVerifySuccess(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	resp, err := scheme.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, resp.IsValid)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey).Hex(), resp.Payer)
	require.Empty(t, resp.InvalidReason)
}

func TestVerifyReasons(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		reason  string
		balance *big.Int
		mutate  func(payload *entities.PaymentPayload, requirements *entities.PaymentRequirements)
	}{
		{
			name:   "wrong scheme",
			reason: ReasonUnsupportedScheme,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				r.Scheme = "upto"
				p.Accepted.Scheme = "upto"
			},
		},
		{
			name:   "network mismatch",
			reason: ReasonNetworkMismatch,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				p.Accepted.Network = "eip155:1"
			},
		},
		{
			name:   "malformed payload",
			reason: ReasonInvalidPayload,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				p.Payload = map[string]interface{}{"signature": "0x01"}
			},
		},
		{
			name:   "missing domain extra",
			reason: ReasonMissingEIP712Domain,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				r.Extra = map[string]interface{}{"name": "USDC"}
			},
		},
		{
			name:   "tampered signature",
			reason: ReasonInvalidSignature,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				auth := p.Payload["authorization"].(map[string]interface{})
				auth["value"] = "20000"
				r.Amount = "20000"
			},
		},
		{
			name:   "recipient mismatch",
			reason: ReasonRecipientMismatch,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				r.PayTo = "0x00000000000000000000000000000000000000B2"
			},
		},
		{
			name:   "expired authorization",
			reason: ReasonValidBefore,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {},
		},
		{
			name:   "not yet valid",
			reason: ReasonValidAfter,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {},
		},
		{
			name:    "insufficient funds",
			reason:  ReasonInsufficientFunds,
			balance: big.NewInt(1),
			mutate:  func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {},
		},
		{
			name:   "authorization value below price",
			reason: ReasonAuthorizationValue,
			mutate: func(p *entities.PaymentPayload, r *entities.PaymentRequirements) {
				r.Amount = "999999"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newStubBackend(mustSeparator(t, fullTestDomain()))
			if tt.balance != nil {
				backend.balance = tt.balance
			}
			scheme, _ := newTestScheme(t, backend)

			requirements := testRequirements()
			var authMutate func(*entities.ExactAuthorization)
			switch tt.reason {
			case ReasonValidBefore:
				authMutate = func(a *entities.ExactAuthorization) {
					a.ValidBefore = big.NewInt(time.Now().Unix() - 10).String()
				}
			case ReasonValidAfter:
				authMutate = func(a *entities.ExactAuthorization) {
					a.ValidAfter = big.NewInt(time.Now().Unix() + 3600).String()
				}
			}
			payload := signedPayload(t, key, requirements, authMutate)
			tt.mutate(&payload, &requirements)

			resp, err := scheme.Verify(context.Background(), payload, requirements)
			require.NoError(t, err)
			require.False(t, resp.IsValid)
			require.Equal(t, tt.reason, resp.InvalidReason)
		})
	}
}

func TestVerifySkipsBalanceOnRPCError(t *testing.T) {
	// Balance read failure is best effort: verify still passes.
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	backend.callOverride = func(msg ethereum.CallMsg) ([]byte, error) {
		if common.Bytes2Hex(msg.Data[:4]) == "70a08231" {
			return nil, errors.New("rpc unavailable")
		}
		return nil, nil
	}
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	resp, err := scheme.Verify(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, resp.IsValid)
}

func TestSettleSuccess(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	resp, err := scheme.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.NotEmpty(t, resp.Transaction)
	require.Equal(t, testNetwork, resp.Network)
	require.Len(t, backend.sent, 1)

	// The settlement call targets the token contract with the v/r/s overload.
	sent := backend.sent[0]
	require.Equal(t, testAsset, sent.To().Hex())
	require.Len(t, sent.Data(), 4+9*32)
}

func TestSettleFailedVerifyShortCircuits(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)
	requirements.PayTo = "0x00000000000000000000000000000000000000B2"

	resp, err := scheme.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ReasonRecipientMismatch, resp.ErrorReason)
	require.Empty(t, backend.sent)
}

func TestSettleRevertedReceipt(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	backend.receiptStatus = types.ReceiptStatusFailed
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	resp, err := scheme.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ReasonInvalidTransactionState, resp.ErrorReason)
	require.NotEmpty(t, resp.Transaction)
}

func TestSettleSendFailure(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	backend.sendErr = errors.New("execution reverted")
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	resp, err := scheme.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ReasonTransactionFailed, resp.ErrorReason)
}

func TestSettleUndeployedSmartWallet(t *testing.T) {
	backend := newStubBackend(mustSeparator(t, fullTestDomain()))
	boolTy, err := abi.NewType("bool", "", nil)
	require.NoError(t, err)
	boolArgs := abi.Arguments{{Type: boolTy}}
	backend.callOverride = func(msg ethereum.CallMsg) ([]byte, error) {
		if *msg.To == common.HexToAddress(universalSigValidatorAddress) {
			return boolArgs.Pack(true)
		}
		return nil, nil
	}
	scheme, _ := newTestScheme(t, backend)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	requirements := testRequirements()
	payload := signedPayload(t, key, requirements, nil)

	// Wrap the signature for a counterfactual wallet. Deployment is off,
	// so settle must refuse rather than burn gas on a doomed transfer.
	inner := common.FromHex(payload.Payload["signature"].(string))
	wrapped := wrapERC6492(t, common.HexToAddress("0xF1"), []byte{0x01}, inner)
	payload.Payload["signature"] = "0x" + common.Bytes2Hex(wrapped)

	resp, err := scheme.Settle(context.Background(), payload, requirements)
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Equal(t, ReasonUndeployedSmartWallet, resp.ErrorReason)
	require.Empty(t, backend.sent)
}
