package entities

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Scheme identifiers accepted by the facilitator.
const (
	SchemeExact      = "exact"
	SchemeCrossChain = "cross-chain"
)

// X402Version is the protocol version this facilitator speaks.
const X402Version = 2

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "eip155:1" for Ethereum mainnet)
type Network string

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// IsEVM reports whether the network is in the eip155 namespace.
func (n Network) IsEVM() bool {
	ns, _, err := n.Parse()
	return err == nil && ns == "eip155"
}

// EIP712DomainHint carries the merchant-provided domain override inside
// requirements.extra.domain.
type EIP712DomainHint struct {
	// Fields is a bitmask selecting the domain fields:
	// 0x01 name, 0x02 version, 0x04 chainId, 0x08 verifyingContract, 0x10 salt.
	Fields  *int   `json:"fields,omitempty"`
	ChainID *int64 `json:"chainId,omitempty"`
	Salt    string `json:"salt,omitempty"`
}

// ExactExtra is the typed view of requirements.extra for the exact scheme.
type ExactExtra struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Domain  *EIP712DomainHint `json:"domain,omitempty"`
}

// PaymentRequirements defines what payment is acceptable for a resource
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
	Extensions        map[string]interface{} `json:"extensions,omitempty"`
}

// ExactExtra decodes the extra map into its typed form.
func (r PaymentRequirements) ExactExtra() (*ExactExtra, error) {
	if r.Extra == nil {
		return nil, fmt.Errorf("missing extra")
	}
	raw, err := json.Marshal(r.Extra)
	if err != nil {
		return nil, err
	}
	var extra ExactExtra
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, err
	}
	return &extra, nil
}

// PaymentPayload contains the signed payment authorization from a client
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// ExactAuthorization is the EIP-3009 TransferWithAuthorization message.
// Value, ValidAfter and ValidBefore are decimal strings; Nonce is a 0x-prefixed
// 32-byte random value chosen by the payer, not an account nonce.
type ExactAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// ExactEvmPayload is the scheme-specific payload for exact EVM payments.
type ExactEvmPayload struct {
	Authorization ExactAuthorization `json:"authorization"`
	Signature     string             `json:"signature"`
}

// ExactPayload decodes payload.payload into its typed form.
func (p PaymentPayload) ExactPayload() (*ExactEvmPayload, error) {
	if p.Payload == nil {
		return nil, fmt.Errorf("missing payload")
	}
	raw, err := json.Marshal(p.Payload)
	if err != nil {
		return nil, err
	}
	var evm ExactEvmPayload
	if err := json.Unmarshal(raw, &evm); err != nil {
		return nil, err
	}
	if evm.Authorization.From == "" || evm.Authorization.To == "" || evm.Signature == "" {
		return nil, fmt.Errorf("incomplete exact payload")
	}
	return &evm, nil
}

// VerifyRequest contains the payment to verify
type VerifyRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload" binding:"required"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements" binding:"required"`
}

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleRequest contains the payment to settle
type SettleRequest struct {
	PaymentPayload      PaymentPayload      `json:"paymentPayload" binding:"required"`
	PaymentRequirements PaymentRequirements `json:"paymentRequirements" binding:"required"`
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// SupportedKind represents a single supported payment configuration
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds the facilitator supports
type SupportedResponse struct {
	Kinds      []SupportedKind     `json:"kinds"`
	Extensions []string            `json:"extensions"`
	Signers    map[string][]string `json:"signers"`
}
