package crosschain

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"crosspay.facilitator/internal/domain/entities"
)

// ExtensionKey is the key under payload.extensions carrying the
// destination routing directive.
const ExtensionKey = "cross-chain"

// Info is the routing directive a merchant embeds in its requirements and
// a buyer echoes back inside the payment payload.
type Info struct {
	DestinationNetwork entities.Network `json:"destinationNetwork"`
	DestinationAsset   string           `json:"destinationAsset"`
	DestinationPayTo   string           `json:"destinationPayTo"`
}

// infoSchema validates the extension shape: all three fields present, the
// network in eip155 CAIP-2 form, the addresses 20-byte hex.
const infoSchema = `{
	"type": "object",
	"properties": {
		"destinationNetwork": {"type": "string", "pattern": "^eip155:[0-9]+$"},
		"destinationAsset": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"destinationPayTo": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"}
	},
	"required": ["destinationNetwork", "destinationAsset", "destinationPayTo"],
	"additionalProperties": false
}`

var compiledInfoSchema = gojsonschema.NewStringLoader(infoSchema)

// Declaration pairs the extension data with the JSON schema describing it,
// for merchants building 402 responses.
type Declaration struct {
	Info   Info                   `json:"info"`
	Schema map[string]interface{} `json:"schema"`
}

// DeclareExtension builds the declaration a merchant places under the
// extension key in its payment requirements.
func DeclareExtension(info Info) (*Declaration, error) {
	doc := gojsonschema.NewGoLoader(info)
	result, err := gojsonschema.Validate(compiledInfoSchema, doc)
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		return nil, fmt.Errorf("invalid cross-chain declaration: %v", result.Errors())
	}

	var schema map[string]interface{}
	if err := json.Unmarshal([]byte(infoSchema), &schema); err != nil {
		return nil, err
	}
	return &Declaration{Info: info, Schema: schema}, nil
}

// ExtractInfo pulls the routing directive out of a payment payload.
// It returns nil unless all three fields are present and well formed; a
// partially filled extension is treated the same as an absent one, and the
// caller treats nil as a same-chain payment.
func ExtractInfo(payload entities.PaymentPayload) *Info {
	if payload.Extensions == nil {
		return nil
	}
	raw, ok := payload.Extensions[ExtensionKey]
	if !ok {
		return nil
	}

	// A declaration wraps the data under "info"; accept both that and the
	// bare info object.
	if m, ok := raw.(map[string]interface{}); ok {
		if inner, ok := m["info"]; ok {
			raw = inner
		}
	}

	result, err := gojsonschema.Validate(compiledInfoSchema, gojsonschema.NewGoLoader(raw))
	if err != nil || !result.Valid() {
		return nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var info Info
	if err := json.Unmarshal(encoded, &info); err != nil {
		return nil
	}
	return &info
}
