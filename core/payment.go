package core

import (
	"encoding/json"
	"time"
)

// X402Version is the protocol version tagged on 402 envelopes
const X402Version = 2

// SchemeExact is the only payment scheme issued by this service
const SchemeExact = "exact"

// RequirementExtra carries scheme specific hints for the payer
type RequirementExtra struct {
	FeePayer string `json:"feePayer,omitempty"` // Solana only
	Name     string `json:"name,omitempty"`     // EIP-712 domain name, EVM only
	Version  string `json:"version,omitempty"`  // EIP-712 domain version, EVM only
}

// PaymentRequirement describes one acceptable way to pay for a resource
type PaymentRequirement struct {
	Scheme            string           `json:"scheme"`
	Network           Network          `json:"network"`
	Asset             string           `json:"asset"`
	Amount            string           `json:"amount"` // base units of Asset
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds"`
	Resource          string           `json:"resource,omitempty"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	Extra             RequirementExtra `json:"extra"`
}

// PaymentRequired is the body of a 402 response
type PaymentRequired struct {
	X402Version int                  `json:"x402Version"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Error       string               `json:"error,omitempty"`
	Resource    string               `json:"resource,omitempty"`
	Description string               `json:"description,omitempty"`
	MimeType    string               `json:"mimeType,omitempty"`
}

// PaymentPayload is the decoded payment proof a client submits
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Scheme      string              `json:"scheme"`
	Network     Network             `json:"network"`
	Payload     json.RawMessage     `json:"payload"`
	Accepted    *PaymentRequirement `json:"accepted,omitempty"`
}

// VerifyResult is a facilitator's verdict on a payment proof
type VerifyResult struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResult is a facilitator's settlement receipt
type SettleResult struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Transaction string  `json:"transaction,omitempty"`
	Network     Network `json:"network"`
	Payer       string  `json:"payer,omitempty"`
}

// SupportedKind is one (scheme, network) pair a facilitator handles
type SupportedKind struct {
	X402Version int            `json:"x402Version"`
	Scheme      string         `json:"scheme"`
	Network     Network        `json:"network"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// AtaCreation is one row of the associated token account creation log
type AtaCreation struct {
	WalletAddress string    `json:"walletAddress"`
	AtaAddress    string    `json:"ataAddress"`
	Network       Network   `json:"network"`
	MintAddress   string    `json:"mintAddress"`
	TxSignature   string    `json:"txSignature"`
	FeePayer      string    `json:"feePayer"`
	FeeLamports   uint64    `json:"feeLamports"`
	TriggerSource string    `json:"triggerSource"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AtaResult is the outcome of ensuring an associated token account exists
type AtaResult struct {
	Success       bool   `json:"success"`
	AtaAddress    string `json:"ataAddress,omitempty"`
	TxSignature   string `json:"txSignature,omitempty"`
	AlreadyExists bool   `json:"alreadyExists"`
	Err           error  `json:"-"`
}
