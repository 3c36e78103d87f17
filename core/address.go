package core

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// DetectFamily guesses the family of an address from its shape
func DetectFamily(address string) (Family, bool) {
	address = strings.TrimSpace(address)
	if isEVMAddress(address) {
		return FamilyEVM, true
	}
	if _, err := solana.PublicKeyFromBase58(address); err == nil {
		return FamilySolana, true
	}
	return "", false
}

// ValidateAddress reports whether address is well-formed for the family
func ValidateAddress(address string, family Family) bool {
	_, err := NormalizeAddress(address, family)
	return err == nil
}

// NormalizeAddress returns the canonical form of address.
// EVM addresses are returned EIP-55 checksummed, Solana addresses are
// re-encoded from their 32 public key bytes.
func NormalizeAddress(address string, family Family) (string, error) {
	address = strings.TrimSpace(address)

	switch family {
	case FamilyEVM:
		if !isEVMAddress(address) {
			return "", fmt.Errorf("%w: %q is not an EVM address", ErrInvalidAddress, address)
		}
		return common.HexToAddress(address).Hex(), nil
	case FamilySolana:
		pk, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return pk.String(), nil
	default:
		return "", fmt.Errorf("%w: unknown network family %q", ErrUnsupportedNetwork, family)
	}
}

// SameAddress compares two addresses under the family's normalization rules
func SameAddress(a, b string, family Family) bool {
	na, err := NormalizeAddress(a, family)
	if err != nil {
		return false
	}
	nb, err := NormalizeAddress(b, family)
	if err != nil {
		return false
	}
	return na == nb
}

func isEVMAddress(s string) bool {
	return (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) && common.IsHexAddress(s)
}
