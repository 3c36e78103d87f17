package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/service"
	"github.com/shopspring/decimal"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// Nonce handles the challenge request
func (h *AuthHandlers) Nonce(c *gin.Context) {
	var req struct {
		Address string       `json:"address" binding:"required"`
		Network core.Network `json:"network"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	challenge, err := h.authService.RequestNonce(c.Request.Context(), req.Address, req.Network)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// Verify handles the signed challenge
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
		Nonce     string `json:"nonce"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, session, err := h.authService.Verify(c.Request.Context(), service.VerifyRequest{
		Message:   req.Message,
		Signature: req.Signature,
		Nonce:     req.Nonce,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": session.ExpiresAt,
		"session":    session,
	})
}

// Logout revokes the current session
func (h *AuthHandlers) Logout(c *gin.Context) {
	principal := MustPrincipal(c)

	if err := h.authService.Logout(c.Request.Context(), principal); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// LogoutAll revokes every session of the current wallet
func (h *AuthHandlers) LogoutAll(c *gin.Context) {
	principal := MustPrincipal(c)

	n, err := h.authService.LogoutAll(c.Request.Context(), principal)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out", "revoked": n})
}

// Session returns the authenticated principal and its session
func (h *AuthHandlers) Session(c *gin.Context) {
	principal := MustPrincipal(c)

	session, err := h.authService.Session(c.Request.Context(), principal)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"principal": principal,
		"session":   session,
	})
}

// PaymentHandlers contains HTTP handlers for collaborators building paywalls
type PaymentHandlers struct {
	payments *service.PaymentService
}

// NewPaymentHandlers creates new payment handlers
func NewPaymentHandlers(payments *service.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Requirements prices a resource and returns the 402 envelope for it
func (h *PaymentHandlers) Requirements(c *gin.Context) {
	var req struct {
		Networks []core.Network  `json:"networks"`
		PriceUSD decimal.Decimal `json:"priceUsd"`
		PayTo    struct {
			EVM    string `json:"evm"`
			Solana string `json:"solana"`
		} `json:"payTo"`
		Resource    string `json:"resource"`
		Description string `json:"description"`
		MimeType    string `json:"mimeType"`
	}

	if err := c.ShouldBindJSON(&req); err != nil || (req.PayTo.EVM == "" && req.PayTo.Solana == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	env, err := h.payments.Requirements(c.Request.Context(), service.Offer{
		PriceUSD: req.PriceUSD,
		PayTo: map[core.Family]string{
			core.FamilyEVM:    req.PayTo.EVM,
			core.FamilySolana: req.PayTo.Solana,
		},
		Networks:    req.Networks,
		Resource:    req.Resource,
		Description: req.Description,
		MimeType:    req.MimeType,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, env)
}

// Health reports liveness
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
