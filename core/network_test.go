package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetworkFamily(t *testing.T) {
	assert.Equal(t, FamilyEVM, BaseMainnet.Family())
	assert.Equal(t, FamilySolana, SolanaMainnet.Family())
	assert.Equal(t, Family(""), Network("cosmos:hub").Family())
}

func TestNetworkTable(t *testing.T) {
	table := DefaultNetworks()

	id, ok := table.ByChainID(8453)
	require.True(t, ok)
	assert.Equal(t, BaseMainnet, id)

	_, ok = table.ByChainID(1)
	assert.False(t, ok)

	info, ok := table.Lookup(BaseSepolia)
	require.True(t, ok)
	assert.True(t, info.Testnet)

	restricted := table.Restrict([]Network{BaseMainnet, SolanaMainnet, "eip155:1"})
	assert.Equal(t, []Network{BaseMainnet, SolanaMainnet}, restricted.IDs())

	assert.Len(t, table.Restrict(nil), len(table))
}
