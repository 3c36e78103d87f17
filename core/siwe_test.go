package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSIWE = `example.com wants you to sign in with your Ethereum account:
0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913

Sign in to publish: with your wallet.

URI: https://example.com/login
Version: 1
Chain ID: 8453
Nonce: 9f8e7d6c
Issued At: 2026-01-02T03:04:05Z
Expiration Time: 2026-01-02T03:09:05Z
Resources:
- https://example.com/terms`

func TestParseSIWEMessage(t *testing.T) {
	m, err := ParseSIWEMessage(sampleSIWE)
	require.NoError(t, err)

	assert.Equal(t, "example.com", m.Domain)
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", m.Address)
	assert.Equal(t, "Sign in to publish: with your wallet.", m.Statement)
	assert.Equal(t, "https://example.com/login", m.URI)
	assert.Equal(t, int64(8453), m.ChainID)
	assert.Equal(t, "9f8e7d6c", m.Nonce)
	require.NotNil(t, m.ExpirationTime)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 9, 5, 0, time.UTC), m.ExpirationTime.UTC())
	assert.Equal(t, []string{"https://example.com/terms"}, m.Resources)

	assert.Equal(t, sampleSIWE, m.String())
}

func TestParseSIWEMessage_Malformed(t *testing.T) {
	for name, msg := range map[string]string{
		"no header":   "hello\nworld",
		"no nonce":    "example.com wants you to sign in with your Ethereum account:\n0xabc\n\nURI: https://x\nChain ID: 1",
		"bad chainid": "example.com wants you to sign in with your Ethereum account:\n0xabc\n\nURI: https://x\nChain ID: one\nNonce: n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSIWEMessage(msg)
			assert.Error(t, err)
		})
	}
}

func TestExtractNonce(t *testing.T) {
	n, ok := ExtractNonce(sampleSIWE)
	require.True(t, ok)
	assert.Equal(t, "9f8e7d6c", n)

	_, ok = ExtractNonce("Sign in with nonce abc123")
	assert.False(t, ok)
}
