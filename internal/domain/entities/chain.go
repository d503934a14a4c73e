package entities

import "strings"

// Chain describes an EVM network the facilitator can reach.
type Chain struct {
	// NetworkID is the CAIP-2 identifier, e.g. "eip155:84532".
	NetworkID Network
	// ChainID is the numeric EVM chain id.
	ChainID int64
	// Name is a human readable label.
	Name string
	// USDCAddress is the canonical USDC contract on this chain.
	USDCAddress string
	// CCTPDomain is the Circle message-passing domain for burn-and-mint.
	CCTPDomain uint32
	// TokenMessenger is the burn entry contract for the bridge.
	TokenMessenger string
	// MessageTransmitter receives attested mints on this chain.
	MessageTransmitter string
}

// DefaultChains is the boot-time chain registry. Loaded once; treated as
// immutable after startup.
var DefaultChains = []Chain{
	{
		NetworkID:          "eip155:1",
		ChainID:            1,
		Name:               "Ethereum",
		USDCAddress:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		CCTPDomain:         0,
		TokenMessenger:     "0xBd3fa81B58Ba92a82136038B25aDec7066af3155",
		MessageTransmitter: "0x0a992d191DEeC32aFe36203Ad87D7d289a738F81",
	},
	{
		NetworkID:          "eip155:8453",
		ChainID:            8453,
		Name:               "Base",
		USDCAddress:        "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		CCTPDomain:         6,
		TokenMessenger:     "0x1682Ae6375C4E4A97e4B583BC394c861A46D8962",
		MessageTransmitter: "0xAD09780d193884d503182aD4588450C416D6F9D4",
	},
	{
		NetworkID:          "eip155:84532",
		ChainID:            84532,
		Name:               "Base Sepolia",
		USDCAddress:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		CCTPDomain:         6,
		TokenMessenger:     "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
		MessageTransmitter: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
	},
	{
		NetworkID:          "eip155:11155111",
		ChainID:            11155111,
		Name:               "Ethereum Sepolia",
		USDCAddress:        "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		CCTPDomain:         0,
		TokenMessenger:     "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
		MessageTransmitter: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
	},
	{
		NetworkID:          "eip155:137",
		ChainID:            137,
		Name:               "Polygon",
		USDCAddress:        "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		CCTPDomain:         7,
		TokenMessenger:     "0x9daF8c91AEFAE50b9c0E69629D3F6Ca40cA3B3FE",
		MessageTransmitter: "0xF3be9355363857F3e001be68856A2f96b4C39Ba9",
	},
	{
		NetworkID:          "eip155:80002",
		ChainID:            80002,
		Name:               "Polygon Amoy",
		USDCAddress:        "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
		CCTPDomain:         7,
		TokenMessenger:     "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
		MessageTransmitter: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
	},
	{
		NetworkID:          "eip155:42161",
		ChainID:            42161,
		Name:               "Arbitrum One",
		USDCAddress:        "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		CCTPDomain:         3,
		TokenMessenger:     "0x19330d10D9Cc8751218eaf51E8885D058642E08A",
		MessageTransmitter: "0xC30362313FBBA5cf9163F0bb16a0e01f01A896ca",
	},
	{
		NetworkID:          "eip155:421614",
		ChainID:            421614,
		Name:               "Arbitrum Sepolia",
		USDCAddress:        "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
		CCTPDomain:         3,
		TokenMessenger:     "0x9f3B8679c73C2Fef8b59B4f3444d4e156fb70AA5",
		MessageTransmitter: "0x7865fAfC2db2093669d92c0F33AeEF291086BEFD",
	},
}

// ChainRegistry resolves chains by CAIP-2 network id.
type ChainRegistry struct {
	byNetwork map[Network]Chain
}

// NewChainRegistry builds a registry from a chain list.
func NewChainRegistry(chains []Chain) *ChainRegistry {
	byNetwork := make(map[Network]Chain, len(chains))
	for _, c := range chains {
		byNetwork[c.NetworkID] = c
	}
	return &ChainRegistry{byNetwork: byNetwork}
}

// Get returns the chain for a network id.
func (r *ChainRegistry) Get(network Network) (Chain, bool) {
	c, ok := r.byNetwork[network]
	return c, ok
}

// Networks lists all registered network ids.
func (r *ChainRegistry) Networks() []Network {
	out := make([]Network, 0, len(r.byNetwork))
	for n := range r.byNetwork {
		out = append(out, n)
	}
	return out
}

// IsUSDC reports whether the asset is the canonical USDC contract on the
// network. The check is a strict per-chain allowlist.
func (r *ChainRegistry) IsUSDC(network Network, asset string) bool {
	c, ok := r.byNetwork[network]
	if !ok {
		return false
	}
	return strings.EqualFold(c.USDCAddress, asset)
}
