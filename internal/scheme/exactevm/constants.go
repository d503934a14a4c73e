package exactevm

// Verification and settlement failure reasons. These are wire-stable;
// clients and merchants branch on them.
const (
	ReasonUnsupportedScheme       = "unsupported_scheme"
	ReasonNetworkMismatch         = "network_mismatch"
	ReasonInvalidPayload          = "invalid_exact_evm_payload"
	ReasonMissingEIP712Domain     = "missing_eip712_domain"
	ReasonDomainSeparatorMismatch = "domain_separator_mismatch"
	ReasonInvalidSignature        = "invalid_exact_evm_payload_signature"
	ReasonRecipientMismatch       = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonValidBefore             = "authorization_valid_before"
	ReasonValidAfter              = "authorization_valid_after"
	ReasonInsufficientFunds       = "insufficient_funds"
	ReasonAuthorizationValue      = "authorization_value"
	ReasonUndeployedSmartWallet   = "invalid_exact_evm_payload_undeployed_smart_wallet"
	ReasonWalletDeploymentFailed  = "smart_wallet_deployment_failed"
	ReasonInvalidTransactionState = "invalid_transaction_state"
	ReasonTransactionFailed       = "transaction_failed"
)

// validBeforeGrace is subtracted from validBefore so an authorization
// that would expire mid-settlement is rejected up front.
const validBeforeGrace = 6 // seconds

// transferWithAuthorizationVRSABI is the EIP-3009 overload for EOA
// signatures split into (v, r, s).
const transferWithAuthorizationVRSABI = `[{
	"inputs": [
		{"type": "address", "name": "from"},
		{"type": "address", "name": "to"},
		{"type": "uint256", "name": "value"},
		{"type": "uint256", "name": "validAfter"},
		{"type": "uint256", "name": "validBefore"},
		{"type": "bytes32", "name": "nonce"},
		{"type": "uint8", "name": "v"},
		{"type": "bytes32", "name": "r"},
		{"type": "bytes32", "name": "s"}
	],
	"name": "transferWithAuthorization",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// transferWithAuthorizationBytesABI is the overload that takes the raw
// signature bytes, used for smart wallet (EIP-1271) signatures.
const transferWithAuthorizationBytesABI = `[{
	"inputs": [
		{"type": "address", "name": "from"},
		{"type": "address", "name": "to"},
		{"type": "uint256", "name": "value"},
		{"type": "uint256", "name": "validAfter"},
		{"type": "uint256", "name": "validBefore"},
		{"type": "bytes32", "name": "nonce"},
		{"type": "bytes", "name": "signature"}
	],
	"name": "transferWithAuthorization",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// eip1271ABI is the minimal ABI for isValidSignature(bytes32,bytes).
const eip1271ABI = `[{
	"inputs": [
		{"type": "bytes32", "name": "hash"},
		{"type": "bytes", "name": "signature"}
	],
	"name": "isValidSignature",
	"outputs": [{"type": "bytes4", "name": "magicValue"}],
	"stateMutability": "view",
	"type": "function"
}]`

// eip1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
var eip1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}
