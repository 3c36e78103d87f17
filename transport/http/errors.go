package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tollgate/core"
)

type errorMapping struct {
	err       error
	status    int
	category  string
	retryable bool
}

// Security failures share a few coarse categories so responses do not reveal
// which check rejected the request.
var errorMappings = []errorMapping{
	{core.ErrInvalidAddress, http.StatusBadRequest, "invalid_address", false},
	{core.ErrInvalidPrice, http.StatusBadRequest, "invalid_price", false},
	{core.ErrUnsupportedNetwork, http.StatusBadRequest, "unsupported_network", false},
	{core.ErrTestnetNotAllowed, http.StatusBadRequest, "testnet_not_allowed", false},
	{core.ErrNonceMissing, http.StatusBadRequest, "nonce_missing", false},

	{core.ErrNonceNotFound, http.StatusConflict, "nonce_invalid", false},
	{core.ErrNonceExpired, http.StatusConflict, "nonce_invalid", false},

	{core.ErrNonceMismatch, http.StatusUnauthorized, "invalid_signature", false},
	{core.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature", false},
	{core.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", false},
	{core.ErrSessionNotFound, http.StatusUnauthorized, "invalid_session", false},
	{core.ErrSessionExpired, http.StatusUnauthorized, "invalid_session", false},
	{core.ErrSessionMismatch, http.StatusUnauthorized, "invalid_session", false},

	{core.ErrPaymentProofUndecodable, http.StatusPaymentRequired, "invalid_payment_proof", false},
	{core.ErrNoMatchingRequirement, http.StatusPaymentRequired, "no_matching_requirement", false},
	{core.ErrPaymentVerificationFailed, http.StatusPaymentRequired, "payment_verification_failed", false},
	{core.ErrPaymentSettlementFailed, http.StatusPaymentRequired, "payment_settlement_failed", false},

	// ATA failures wrap the fee payer error, so they are matched first
	{core.ErrAtaCreationFailed, http.StatusServiceUnavailable, "ata_creation_failed", true},
	{core.ErrFeePayerNotConfigured, http.StatusServiceUnavailable, "fee_payer_not_configured", false},
	{core.ErrFacilitatorUnavailable, http.StatusServiceUnavailable, "facilitator_unavailable", true},

	{core.ErrRateLimited, http.StatusTooManyRequests, "rate_limited", true},
}

// classify maps a service error to a status code and response category
func classify(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m
		}
	}
	return errorMapping{err: err, status: http.StatusInternalServerError, category: "internal_error"}
}

func errorBody(m errorMapping) gin.H {
	body := gin.H{"error": m.category}
	if m.retryable {
		body["retryable"] = true
	}
	return body
}

func abortWithError(c *gin.Context, err error) {
	m := classify(err)
	if m.status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(m.status, errorBody(m))
}
