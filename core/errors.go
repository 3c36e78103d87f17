package core

import "errors"

var (
	ErrInvalidAddress     = errors.New("invalid address")
	ErrUnsupportedNetwork = errors.New("unsupported network")
	ErrTestnetNotAllowed  = errors.New("testnet not allowed")

	ErrNonceMissing  = errors.New("nonce missing")
	ErrNonceNotFound = errors.New("nonce not found")
	ErrNonceExpired  = errors.New("nonce expired")
	ErrNonceMismatch = errors.New("nonce mismatch")

	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidToken     = errors.New("invalid token")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionMismatch = errors.New("session mismatch")

	ErrIdentityNotFound = errors.New("identity not found")

	ErrFacilitatorUnavailable    = errors.New("facilitator unavailable")
	ErrFeePayerNotConfigured     = errors.New("fee payer not configured")
	ErrAtaCreationFailed         = errors.New("associated token account creation failed")
	ErrPaymentProofUndecodable   = errors.New("payment proof undecodable")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrPaymentSettlementFailed   = errors.New("payment settlement failed")
	ErrNoMatchingRequirement     = errors.New("no matching payment requirement")

	ErrInvalidPrice         = errors.New("invalid price")
	ErrRateLimited          = errors.New("rate limited")
	ErrStoreOperationFailed = errors.New("store operation failed")
)
