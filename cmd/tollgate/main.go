package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/layer-3/tollgate/adapters/events"
	"github.com/layer-3/tollgate/adapters/facilitator"
	"github.com/layer-3/tollgate/adapters/store"
	"github.com/layer-3/tollgate/adapters/store/postgres"
	"github.com/layer-3/tollgate/adapters/svm"
	"github.com/layer-3/tollgate/adapters/tokenizer"
	"github.com/layer-3/tollgate/adapters/verifier"
	"github.com/layer-3/tollgate/config"
	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"github.com/layer-3/tollgate/service"
	api "github.com/layer-3/tollgate/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if !cfg.Production {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

type stores struct {
	nonces     ports.NonceStore
	sessions   ports.SessionStore
	identities ports.IdentityStore
	atas       ports.AtaLogStore
	limiter    ports.RateLimiter
	eventPub   ports.EventPublisher
	closers    []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects Postgres and Redis when configured and falls back to
// process memory otherwise
func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	s := &stores{
		nonces:     store.NewMemoryNonceStore(),
		sessions:   store.NewMemorySessionStore(),
		identities: store.NewMemoryIdentityStore(),
		atas:       store.NewMemoryAtaLog(),
		limiter:    store.NewMemoryRateLimiter(),
		eventPub:   events.Nop{},
	}

	if cfg.PostgresDSN != "" {
		if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		db, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.sessions = postgres.NewSessionStore(db)
		s.identities = postgres.NewIdentityStore(db)
		s.atas = postgres.NewAtaLog(db)
	} else {
		logger.Warn("no postgres dsn configured, sessions are kept in memory")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		s.closers = append(s.closers, func() { _ = client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			s.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: client},
			events.NewZapLogger(logger.Named("watermill")),
		)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		s.closers = append(s.closers, func() { _ = publisher.Close() })

		s.nonces = store.NewRedisNonceStore(client)
		s.limiter = store.NewRedisRateLimiter(client)
		s.eventPub = events.NewWatermillPublisher(publisher)
	} else {
		logger.Warn("no redis url configured, nonces and rate limits are kept in memory")
	}

	return s, nil
}

func newFacilitator(cfg config.FacilitatorConfig) (*facilitator.Client, error) {
	opts := []facilitator.Option{
		facilitator.WithTimeouts(cfg.Timeout, 6*cfg.Timeout),
	}

	switch {
	case cfg.APIKeyName != "":
		auth, err := facilitator.NewJWTAuth(cfg.APIKeyName, cfg.APIKeySecret)
		if err != nil {
			return nil, fmt.Errorf("failed to load facilitator api key: %w", err)
		}
		opts = append(opts, facilitator.WithAuth(auth))
	case cfg.Authorization != "":
		opts = append(opts, facilitator.WithAuth(facilitator.StaticAuth(cfg.Authorization)))
	}

	return facilitator.New(cfg.URL, opts...), nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	networks := cfg.NetworkTable()

	tokens, err := tokenizer.NewJWTTokenizer([]byte(cfg.Auth.JWTSecret), cfg.Auth.Domain)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		service.AuthConfig{
			NonceTTL:             cfg.Auth.NonceTTL,
			SessionTTL:           cfg.Auth.SessionTTL,
			Domain:               cfg.Auth.Domain,
			URI:                  cfg.Auth.URI,
			Statement:            cfg.Auth.Statement,
			Production:           cfg.Production,
			DefaultEVMNetwork:    cfg.Auth.DefaultEVMNetwork,
			DefaultSolanaNetwork: cfg.Auth.DefaultSolanaNetwork,
			Networks:             networks,
		},
		st.nonces,
		st.sessions,
		st.identities,
		tokens,
		st.eventPub,
		logger.Named("auth"),
		verifier.NewEVM(cfg.Auth.Domain, networks, cfg.Auth.DefaultEVMNetwork),
		verifier.NewSolana(),
	)

	fac, err := newFacilitator(cfg.Facilitator)
	if err != nil {
		return err
	}
	cache := service.NewCapabilityCache(fac, cfg.Facilitator.Timeout, logger.Named("capabilities"))

	// An unset interface keeps the provisioner in its no-fee-payer mode
	var chain ports.TokenAccountChain
	if cfg.Solana.FeePayerKey != "" {
		c, err := svm.Dial(cfg.Solana.RPCURL, cfg.Solana.FeePayerKey)
		if err != nil {
			return fmt.Errorf("failed to set up solana fee payer: %w", err)
		}
		chain = c
		logger.Info("solana fee payer loaded", zap.String("fee_payer", c.FeePayer()))
	}

	builder := service.NewRequirementBuilder(service.RequirementConfig{
		Networks:             networks,
		Production:           cfg.Production,
		DefaultNetwork:       cfg.Payments.DefaultNetwork,
		DefaultSolanaNetwork: cfg.Payments.DefaultSolanaNetwork,
		MaxTimeoutSeconds:    cfg.Payments.MaxTimeoutSeconds,
	}, cache)
	atas := service.NewATAProvisioner(chain, st.atas, st.eventPub, networks, logger.Named("ata"))
	payments := service.NewPaymentService(builder, fac, cache, atas, st.eventPub, logger.Named("payments"))

	resources, err := paidResources(cfg.Resources)
	if err != nil {
		return err
	}

	window := cfg.RateLimits.Window
	router := api.SetupRouter(api.RouterConfig{
		Auth:        authService,
		Payments:    payments,
		Limiter:     st.limiter,
		NonceLimit:  api.RateLimit{Requests: cfg.RateLimits.NonceRequests, Window: window},
		VerifyLimit: api.RateLimit{Requests: cfg.RateLimits.VerifyRequests, Window: window},
		Resources:   resources,
		Logger:      logger.Named("http"),
	})

	// Warm the capability cache so the first 402 does not wait on it
	go func() {
		if err := cache.EnsureLoaded(ctx); err != nil {
			logger.Warn("facilitator capabilities not loaded", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.Bool("production", cfg.Production))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func paidResources(in []config.Resource) ([]api.PaidResource, error) {
	out := make([]api.PaidResource, 0, len(in))
	for _, r := range in {
		price, err := r.Price()
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.Path, err)
		}

		payTo := make(map[core.Family]string, 2)
		if r.PayTo.EVM != "" {
			payTo[core.FamilyEVM] = r.PayTo.EVM
		}
		if r.PayTo.Solana != "" {
			payTo[core.FamilySolana] = r.PayTo.Solana
		}

		res := api.PaidResource{
			Path: r.Path,
			Offer: service.Offer{
				PriceUSD:    price,
				PayTo:       payTo,
				Networks:    r.Networks,
				Description: r.Description,
				MimeType:    r.MimeType,
			},
		}
		if r.Content != "" {
			res.Content = r.Content
		}
		out = append(out, res)
	}
	return out, nil
}
