package exactevm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/infrastructure/blockchain"
)

// Domain field bitmask values for requirements.extra.domain.fields.
const (
	domainFieldName              = 0x01
	domainFieldVersion           = 0x02
	domainFieldChainID           = 0x04
	domainFieldVerifyingContract = 0x08
	domainFieldSalt              = 0x10
)

// resolvedDomain is an EIP-712 domain whose separator matched the token's
// on-chain DOMAIN_SEPARATOR().
type resolvedDomain struct {
	domain apitypes.TypedDataDomain
	fields []apitypes.Type
}

// domainCache remembers resolved domains per token so the combination
// probe runs once per (network, asset, name, version), not per verify.
type domainCache struct {
	mu      sync.RWMutex
	entries map[string]resolvedDomain
}

func newDomainCache() *domainCache {
	return &domainCache{entries: make(map[string]resolvedDomain)}
}

func (c *domainCache) get(key string) (resolvedDomain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[key]
	return d, ok
}

func (c *domainCache) put(key string, d resolvedDomain) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = d
}

func domainCacheKey(network entities.Network, asset, name, version string) string {
	return fmt.Sprintf("%s|%s|%s|%s", network, common.HexToAddress(asset).Hex(), name, version)
}

// buildDomain constructs a domain from an explicit field bitmask.
func buildDomain(name, version string, chainID *big.Int, asset string, saltHex string, fields int) resolvedDomain {
	var d apitypes.TypedDataDomain
	var types []apitypes.Type

	if fields&domainFieldName != 0 {
		d.Name = name
		types = append(types, apitypes.Type{Name: "name", Type: "string"})
	}
	if fields&domainFieldVersion != 0 {
		d.Version = version
		types = append(types, apitypes.Type{Name: "version", Type: "string"})
	}
	if fields&domainFieldChainID != 0 {
		d.ChainId = (*math.HexOrDecimal256)(new(big.Int).Set(chainID))
		types = append(types, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if fields&domainFieldVerifyingContract != 0 {
		d.VerifyingContract = common.HexToAddress(asset).Hex()
		types = append(types, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if fields&domainFieldSalt != 0 {
		d.Salt = saltHex
		types = append(types, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return resolvedDomain{domain: d, fields: types}
}

// chainIDSalt encodes a chain id as a left-padded bytes32 salt. Several
// tokens key their salt-based domain to the chain id this way.
func chainIDSalt(chainID *big.Int) string {
	return "0x" + common.Bytes2Hex(common.LeftPadBytes(chainID.Bytes(), 32))
}

// domainCandidates enumerates the field combinations tried against the
// on-chain separator when the merchant gave no explicit bitmask.
func domainCandidates(extra *entities.ExactExtra, chainID *big.Int, asset string) []resolvedDomain {
	name, version := extra.Name, extra.Version

	hintChainID := chainID
	saltHex := ""
	if extra.Domain != nil {
		if extra.Domain.ChainID != nil {
			hintChainID = big.NewInt(*extra.Domain.ChainID)
		}
		saltHex = extra.Domain.Salt
	}

	if extra.Domain != nil && extra.Domain.Fields != nil {
		return []resolvedDomain{
			buildDomain(name, version, hintChainID, asset, saltHex, *extra.Domain.Fields),
		}
	}

	if saltHex != "" {
		// Salt provided without a bitmask: salt replaces chainId.
		return []resolvedDomain{
			buildDomain(name, version, hintChainID, asset, saltHex,
				domainFieldName|domainFieldVersion|domainFieldVerifyingContract|domainFieldSalt),
		}
	}

	full := domainFieldName | domainFieldVersion | domainFieldChainID | domainFieldVerifyingContract
	return []resolvedDomain{
		buildDomain(name, version, hintChainID, asset, "", full),
		buildDomain(name, version, hintChainID, asset, chainIDSalt(hintChainID),
			domainFieldName|domainFieldVersion|domainFieldVerifyingContract|domainFieldSalt),
		buildDomain(name, version, hintChainID, asset, "",
			domainFieldName|domainFieldChainID|domainFieldVerifyingContract),
		buildDomain(name, version, hintChainID, asset, "",
			domainFieldName|domainFieldVersion|domainFieldVerifyingContract),
	}
}

// separatorOf hashes the EIP712Domain struct of a candidate.
func separatorOf(d resolvedDomain) ([32]byte, error) {
	var sep [32]byte
	typedData := apitypes.TypedData{
		Types:       apitypes.Types{"EIP712Domain": d.fields},
		PrimaryType: "EIP712Domain",
		Domain:      d.domain,
	}
	hash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return sep, err
	}
	copy(sep[:], hash)
	return sep, nil
}

// resolveDomain finds the domain whose separator the token actually uses.
//
// An explicit bitmask is authoritative: it is compared once and a mismatch
// is fatal. Without one, the candidate enumeration is probed in order and
// the first match wins. If the token does not expose DOMAIN_SEPARATOR()
// the canonical four-field domain is assumed.
func resolveDomain(ctx context.Context, client *blockchain.EVMClient, cache *domainCache, network entities.Network, asset string, extra *entities.ExactExtra) (resolvedDomain, error) {
	key := domainCacheKey(network, asset, extra.Name, extra.Version)
	if d, ok := cache.get(key); ok {
		return d, nil
	}

	candidates := domainCandidates(extra, client.ChainID(), asset)
	explicit := extra.Domain != nil && extra.Domain.Fields != nil

	onChain, err := client.GetDomainSeparator(ctx, asset)
	if err != nil {
		d := candidates[0]
		cache.put(key, d)
		return d, nil
	}

	for _, d := range candidates {
		sep, err := separatorOf(d)
		if err != nil {
			continue
		}
		if sep == onChain {
			cache.put(key, d)
			return d, nil
		}
	}

	if explicit {
		return resolvedDomain{}, fmt.Errorf("declared domain does not match on-chain separator for %s on %s", asset, network)
	}
	return resolvedDomain{}, fmt.Errorf("no domain combination matches on-chain separator for %s on %s", asset, network)
}

// hashTransferAuthorization computes the EIP-712 digest the payer signed.
func hashTransferAuthorization(d resolvedDomain, auth entities.ExactAuthorization) ([32]byte, error) {
	var digest [32]byte

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": d.fields,
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain:      d.domain,
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return digest, fmt.Errorf("failed to hash authorization: %w", err)
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return digest, fmt.Errorf("failed to hash domain: %w", err)
	}

	raw := append([]byte{0x19, 0x01}, domainHash...)
	raw = append(raw, structHash...)
	copy(digest[:], crypto.Keccak256(raw))
	return digest, nil
}
