package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/tollgate/ports"
	"github.com/layer-3/tollgate/service"
	"go.uber.org/zap"
)

// PaidResource is a route served only after payment
type PaidResource struct {
	Path    string
	Offer   service.Offer
	Content any
}

// RouterConfig wires the services into the HTTP surface
type RouterConfig struct {
	Auth        *service.AuthService
	Payments    *service.PaymentService
	Limiter     ports.RateLimiter
	NonceLimit  RateLimit
	VerifyLimit RateLimit
	Resources   []PaidResource
	Logger      *zap.Logger
}

// DefaultNonceLimit and DefaultVerifyLimit budget the unauthenticated routes
var (
	DefaultNonceLimit  = RateLimit{Requests: 10, Window: time.Minute}
	DefaultVerifyLimit = RateLimit{Requests: 20, Window: time.Minute}
)

// SetupRouter sets up the Gin router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(cfg.Logger), RequestLogger(cfg.Logger))

	router.GET("/health", Health)

	handlers := NewAuthHandlers(cfg.Auth)

	auth := router.Group("/auth")
	{
		auth.POST("/nonce", RateLimitMiddleware(cfg.Limiter, "nonce", cfg.NonceLimit, cfg.Logger), handlers.Nonce)
		auth.POST("/verify", RateLimitMiddleware(cfg.Limiter, "verify", cfg.VerifyLimit, cfg.Logger), handlers.Verify)
	}

	// Protected routes
	protected := router.Group("/auth")
	protected.Use(AuthMiddleware(cfg.Auth))
	{
		protected.POST("/logout", handlers.Logout)
		protected.POST("/logout-all", handlers.LogoutAll)
		protected.GET("/session", handlers.Session)
	}

	if cfg.Payments != nil {
		payments := NewPaymentHandlers(cfg.Payments)
		router.POST("/payments/requirements", payments.Requirements)

		for _, res := range cfg.Resources {
			paywall := Paywall(cfg.Payments, StaticOffer(res.Offer), cfg.Logger)
			serve := serveResource(res)
			router.GET(res.Path, paywall, serve)
			router.POST(res.Path, paywall, serve)
		}
	}

	return router
}

func serveResource(res PaidResource) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"resource": res.Path}
		if res.Content != nil {
			body["content"] = res.Content
		}
		if receipt, ok := ReceiptFrom(c); ok {
			body["payment"] = receipt.Settlement
		}
		c.JSON(http.StatusOK, body)
	}
}
