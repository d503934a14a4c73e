package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetworkParse(t *testing.T) {
	ns, ref, err := Network("eip155:84532").Parse()
	require.NoError(t, err)
	require.Equal(t, "eip155", ns)
	require.Equal(t, "84532", ref)

	_, _, err = Network("eip155").Parse()
	require.Error(t, err)
	_, _, err = Network("eip155:1:extra").Parse()
	require.Error(t, err)

	require.True(t, Network("eip155:1").IsEVM())
	require.False(t, Network("solana:mainnet").IsEVM())
	require.False(t, Network("badformat").IsEVM())
}

func TestExactExtraDecode(t *testing.T) {
	req := PaymentRequirements{
		Extra: map[string]interface{}{
			"name":    "USDC",
			"version": "2",
			"domain": map[string]interface{}{
				"fields":  float64(0x0f),
				"chainId": float64(84532),
			},
		},
	}

	extra, err := req.ExactExtra()
	require.NoError(t, err)
	require.Equal(t, "USDC", extra.Name)
	require.Equal(t, "2", extra.Version)
	require.NotNil(t, extra.Domain)
	require.NotNil(t, extra.Domain.Fields)
	require.Equal(t, 0x0f, *extra.Domain.Fields)
	require.EqualValues(t, 84532, *extra.Domain.ChainID)

	_, err = PaymentRequirements{}.ExactExtra()
	require.Error(t, err)
}

func TestExactPayloadDecode(t *testing.T) {
	payload := PaymentPayload{
		X402Version: X402Version,
		Payload: map[string]interface{}{
			"signature": "0xdeadbeef",
			"authorization": map[string]interface{}{
				"from":        "0x1111111111111111111111111111111111111111",
				"to":          "0x2222222222222222222222222222222222222222",
				"value":       "10000",
				"validAfter":  "0",
				"validBefore": "99999999999",
				"nonce":       "0x0011",
			},
		},
	}

	evm, err := payload.ExactPayload()
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", evm.Signature)
	require.Equal(t, "10000", evm.Authorization.Value)

	_, err = PaymentPayload{}.ExactPayload()
	require.Error(t, err)

	// Missing signature is incomplete, not merely empty.
	incomplete := payload
	incomplete.Payload = map[string]interface{}{
		"authorization": payload.Payload["authorization"],
	}
	_, err = incomplete.ExactPayload()
	require.Error(t, err)
}
