package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/service"
	"go.uber.org/zap"
)

const (
	HeaderPaymentSignature = "PAYMENT-SIGNATURE"
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"
	// HeaderLegacyPayment is sent by x402 v1 clients
	HeaderLegacyPayment = "X-PAYMENT"

	receiptKey = "x402_receipt"
)

// OfferFunc prices the request being served
type OfferFunc func(c *gin.Context) (service.Offer, error)

// StaticOffer always charges offer
func StaticOffer(offer service.Offer) OfferFunc {
	return func(*gin.Context) (service.Offer, error) { return offer, nil }
}

// Paywall gates the following handlers behind an x402 payment. Requests
// without a proof get a 402 envelope; valid proofs are settled before the
// handler runs and the receipt is echoed in PAYMENT-RESPONSE.
func Paywall(payments *service.PaymentService, offerFn OfferFunc, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		offer, err := offerFn(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if offer.Resource == "" {
			offer.Resource = resourceURL(c)
		}

		header := c.GetHeader(HeaderPaymentSignature)
		if header == "" {
			header = c.GetHeader(HeaderLegacyPayment)
		}
		if header == "" {
			paymentRequired(c, payments, offer, "payment required", logger)
			return
		}

		receipt, err := payments.Settle(ctx, offer, header)
		if err != nil {
			m := classify(err)
			if m.status == http.StatusPaymentRequired {
				logger.Info("payment rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
				paymentRequired(c, payments, offer, m.category, logger)
				return
			}
			logger.Warn("payment failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
			abortWithError(c, err)
			return
		}

		if encoded, err := service.EncodeHeader(receipt.Settlement); err == nil {
			c.Header(HeaderPaymentResponse, encoded)
		} else {
			logger.Warn("failed to encode payment response", zap.Error(err))
		}

		c.Set(receiptKey, receipt)
		c.Next()
	}
}

// ReceiptFrom returns the settled payment stored by Paywall
func ReceiptFrom(c *gin.Context) (*service.Receipt, bool) {
	v, ok := c.Get(receiptKey)
	if !ok {
		return nil, false
	}
	r, ok := v.(*service.Receipt)
	return r, ok
}

func paymentRequired(c *gin.Context, payments *service.PaymentService, offer service.Offer, reason string, logger *zap.Logger) {
	env, err := payments.Requirements(c.Request.Context(), offer)
	if err != nil {
		if !errors.Is(err, core.ErrFacilitatorUnavailable) {
			logger.Error("failed to build payment requirements", zap.Error(err))
		}
		abortWithError(c, err)
		return
	}
	env.Error = reason

	if encoded, err := service.EncodeHeader(env); err == nil {
		c.Header(HeaderPaymentRequired, encoded)
	}
	c.AbortWithStatusJSON(http.StatusPaymentRequired, env)
}

func resourceURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
