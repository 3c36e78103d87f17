package core

import (
	"sort"
	"strings"
)

// Family groups networks that share address and signature rules
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// Network is a CAIP-2 network identifier
type Network string

const (
	BaseMainnet      Network = "eip155:8453"
	BaseSepolia      Network = "eip155:84532"
	PolygonMainnet   Network = "eip155:137"
	AvalancheMainnet Network = "eip155:43114"
	SolanaMainnet    Network = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnet     Network = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

// Family derives the network family from the CAIP-2 namespace
func (n Network) Family() Family {
	switch {
	case strings.HasPrefix(string(n), "eip155:"):
		return FamilyEVM
	case strings.HasPrefix(string(n), "solana:"):
		return FamilySolana
	default:
		return ""
	}
}

func (n Network) String() string { return string(n) }

// NetworkInfo describes the settlement asset and chain metadata of a network
type NetworkInfo struct {
	ID            Network `yaml:"id"`
	Name          string  `yaml:"name"`
	ChainID       int64   `yaml:"chain_id"` // EVM only
	Testnet       bool    `yaml:"testnet"`
	Asset         string  `yaml:"asset"`
	Decimals      int32   `yaml:"decimals"`
	EIP712Name    string  `yaml:"eip712_name"`    // EVM only
	EIP712Version string  `yaml:"eip712_version"` // EVM only
}

// Family of the network
func (i NetworkInfo) Family() Family { return i.ID.Family() }

// USDC on every network this service knows about.
var defaultNetworks = []NetworkInfo{
	{ID: BaseMainnet, Name: "Base", ChainID: 8453, Asset: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6, EIP712Name: "USD Coin", EIP712Version: "2"},
	{ID: BaseSepolia, Name: "Base Sepolia", ChainID: 84532, Testnet: true, Asset: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", Decimals: 6, EIP712Name: "USDC", EIP712Version: "2"},
	{ID: PolygonMainnet, Name: "Polygon", ChainID: 137, Asset: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6, EIP712Name: "USD Coin", EIP712Version: "2"},
	{ID: AvalancheMainnet, Name: "Avalanche C-Chain", ChainID: 43114, Asset: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6, EIP712Name: "USD Coin", EIP712Version: "2"},
	{ID: SolanaMainnet, Name: "Solana", Asset: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{ID: SolanaDevnet, Name: "Solana Devnet", Testnet: true, Asset: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU", Decimals: 6},
}

// NetworkTable is a lookup of supported networks keyed by CAIP-2 id
type NetworkTable map[Network]NetworkInfo

// DefaultNetworks returns a fresh copy of the built-in network table
func DefaultNetworks() NetworkTable {
	table := make(NetworkTable, len(defaultNetworks))
	for _, info := range defaultNetworks {
		table[info.ID] = info
	}
	return table
}

// Lookup returns the network info for id
func (t NetworkTable) Lookup(id Network) (NetworkInfo, bool) {
	info, ok := t[id]
	return info, ok
}

// ByChainID finds the EVM network with the given numeric chain id
func (t NetworkTable) ByChainID(chainID int64) (Network, bool) {
	for id, info := range t {
		if info.Family() == FamilyEVM && info.ChainID == chainID {
			return id, true
		}
	}
	return "", false
}

// IDs lists the table's networks in a stable order
func (t NetworkTable) IDs() []Network {
	ids := make([]Network, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Restrict keeps only the listed networks. An empty list keeps everything.
func (t NetworkTable) Restrict(allowed []Network) NetworkTable {
	if len(allowed) == 0 {
		return t
	}
	out := make(NetworkTable, len(allowed))
	for _, id := range allowed {
		if info, ok := t[id]; ok {
			out[id] = info
		}
	}
	return out
}
