package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress_EVM(t *testing.T) {
	lower := "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	got, err := NormalizeAddress(lower, FamilyEVM)
	require.NoError(t, err)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", got)

	again, err := NormalizeAddress(got, FamilyEVM)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = NormalizeAddress("833589fcd6edb6e08f4c7c32d4f71b54bda02913", FamilyEVM)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NormalizeAddress("0x1234", FamilyEVM)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNormalizeAddress_Solana(t *testing.T) {
	addr := "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	got, err := NormalizeAddress("  "+addr+" ", FamilySolana)
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	again, err := NormalizeAddress(got, FamilySolana)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	_, err = NormalizeAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", FamilySolana)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = NormalizeAddress("abc", FamilySolana)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestNormalizeAddress_UnknownFamily(t *testing.T) {
	_, err := NormalizeAddress("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", Family("cosmos"))
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestDetectFamily(t *testing.T) {
	f, ok := DetectFamily("0x833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.True(t, ok)
	assert.Equal(t, FamilyEVM, f)

	f, ok = DetectFamily("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.True(t, ok)
	assert.Equal(t, FamilySolana, f)

	_, ok = DetectFamily("not-an-address")
	assert.False(t, ok)
}

func TestSameAddress(t *testing.T) {
	assert.True(t, SameAddress(
		"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		"0x833589FCD6EDB6E08F4C7C32D4F71B54BDA02913",
		FamilyEVM,
	))
	assert.False(t, SameAddress(
		"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		"0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		FamilyEVM,
	))
}
