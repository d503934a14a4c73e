package crosschain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"crosspay.facilitator/internal/domain/entities"
)

func validInfo() Info {
	return Info{
		DestinationNetwork: "eip155:11155111",
		DestinationAsset:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		DestinationPayTo:   "0x00000000000000000000000000000000000000B2",
	}
}

func payloadWithExtension(ext interface{}) entities.PaymentPayload {
	return entities.PaymentPayload{
		X402Version: entities.X402Version,
		Extensions:  map[string]interface{}{ExtensionKey: ext},
	}
}

func TestDeclareExtension(t *testing.T) {
	decl, err := DeclareExtension(validInfo())
	require.NoError(t, err)
	require.Equal(t, validInfo(), decl.Info)
	require.Equal(t, "object", decl.Schema["type"])

	_, err = DeclareExtension(Info{DestinationNetwork: "solana:mainnet"})
	require.Error(t, err)
}

func TestExtractInfoFromDeclaration(t *testing.T) {
	// A declaration round-trips: what the merchant declares, the buyer
	// echoes, and the facilitator extracts.
	info := ExtractInfo(payloadWithExtension(map[string]interface{}{
		"info": map[string]interface{}{
			"destinationNetwork": "eip155:11155111",
			"destinationAsset":   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			"destinationPayTo":   "0x00000000000000000000000000000000000000B2",
		},
		"schema": map[string]interface{}{"type": "object"},
	}))
	require.NotNil(t, info)
	require.Equal(t, validInfo(), *info)

	// Bare info objects work too.
	info = ExtractInfo(payloadWithExtension(map[string]interface{}{
		"destinationNetwork": "eip155:11155111",
		"destinationAsset":   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		"destinationPayTo":   "0x00000000000000000000000000000000000000B2",
	}))
	require.NotNil(t, info)
	require.Equal(t, validInfo(), *info)
}

func TestExtractInfoRejectsMalformed(t *testing.T) {
	require.Nil(t, ExtractInfo(entities.PaymentPayload{}))
	require.Nil(t, ExtractInfo(entities.PaymentPayload{Extensions: map[string]interface{}{}}))

	// Partial extension is the same as no extension.
	require.Nil(t, ExtractInfo(payloadWithExtension(map[string]interface{}{
		"destinationNetwork": "eip155:11155111",
	})))

	// Wrong shapes.
	require.Nil(t, ExtractInfo(payloadWithExtension("not-an-object")))
	require.Nil(t, ExtractInfo(payloadWithExtension(map[string]interface{}{
		"destinationNetwork": "solana:mainnet",
		"destinationAsset":   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		"destinationPayTo":   "0x00000000000000000000000000000000000000B2",
	})))
	require.Nil(t, ExtractInfo(payloadWithExtension(map[string]interface{}{
		"destinationNetwork": "eip155:11155111",
		"destinationAsset":   "not-an-address",
		"destinationPayTo":   "0x00000000000000000000000000000000000000B2",
	})))

	// Unknown fields are rejected outright.
	require.Nil(t, ExtractInfo(payloadWithExtension(map[string]interface{}{
		"destinationNetwork": "eip155:11155111",
		"destinationAsset":   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		"destinationPayTo":   "0x00000000000000000000000000000000000000B2",
		"extraField":         true,
	})))
}
