package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CapabilityCache holds the facilitator's supported kinds and Solana fee
// payers. It is hydrated lazily with at most one fetch in flight; a failed
// fetch is shared by everyone waiting on it and the next call retries.
type CapabilityCache struct {
	facilitator ports.Facilitator
	timeout     time.Duration
	logger      *zap.Logger

	group singleflight.Group

	mu        sync.RWMutex
	loaded    bool
	gen       uint64
	feePayers map[core.Network]string
	supported map[core.Network]bool
}

var _ ports.FeePayerSource = (*CapabilityCache)(nil)

// NewCapabilityCache creates an empty cache over facilitator. timeout bounds
// a single hydration regardless of the callers' contexts.
func NewCapabilityCache(facilitator ports.Facilitator, timeout time.Duration, logger *zap.Logger) *CapabilityCache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CapabilityCache{
		facilitator: facilitator,
		timeout:     timeout,
		logger:      logger,
	}
}

// hydrateAttempts bounds how often EnsureLoaded refetches when Invalidate
// keeps landing while a fetch is in flight
const hydrateAttempts = 3

// EnsureLoaded hydrates the cache unless it already is
func (c *CapabilityCache) EnsureLoaded(ctx context.Context) error {
	for attempt := 0; attempt < hydrateAttempts; attempt++ {
		if c.isLoaded() {
			return nil
		}

		ch := c.group.DoChan("supported", func() (any, error) {
			// another flight may have finished between the check and DoChan
			if c.isLoaded() {
				return nil, nil
			}

			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
			defer cancel()
			return nil, c.hydrate(hctx)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return res.Err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.isLoaded() {
		return nil
	}
	return fmt.Errorf("%w: capabilities invalidated while loading", core.ErrFacilitatorUnavailable)
}

func (c *CapabilityCache) isLoaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

func (c *CapabilityCache) hydrate(ctx context.Context) error {
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	kinds, err := c.facilitator.Supported(ctx)
	if err != nil {
		c.logger.Warn("failed to load facilitator capabilities", zap.Error(err))
		return fmt.Errorf("failed to load facilitator capabilities: %w", err)
	}

	feePayers := make(map[core.Network]string)
	supported := make(map[core.Network]bool)
	for _, kind := range kinds {
		if kind.Scheme != "" && kind.Scheme != core.SchemeExact {
			continue
		}
		supported[kind.Network] = true
		if fp, ok := kind.Extra["feePayer"].(string); ok && fp != "" {
			feePayers[kind.Network] = fp
		}
	}

	c.mu.Lock()
	if c.gen != gen {
		// invalidated mid-flight, the answer may predate the outage
		c.mu.Unlock()
		c.logger.Debug("discarding capabilities fetched before invalidation")
		return nil
	}
	c.feePayers = feePayers
	c.supported = supported
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("facilitator capabilities loaded",
		zap.Int("networks", len(supported)),
		zap.Int("fee_payers", len(feePayers)),
	)
	return nil
}

// FeePayer returns the facilitator's fee payer for network, if it has one
func (c *CapabilityCache) FeePayer(ctx context.Context, network core.Network) (string, bool, error) {
	if err := c.EnsureLoaded(ctx); err != nil {
		return "", false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.feePayers[network]
	return fp, ok, nil
}

// Supports reports whether the facilitator settles the exact scheme on network
func (c *CapabilityCache) Supports(ctx context.Context, network core.Network) (bool, error) {
	if err := c.EnsureLoaded(ctx); err != nil {
		return false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supported[network], nil
}

// Invalidate drops the cached capabilities so the next call refetches. A
// fetch already in flight is discarded rather than cached.
func (c *CapabilityCache) Invalidate() {
	c.group.Forget("supported")

	c.mu.Lock()
	c.gen++
	c.loaded = false
	c.feePayers = nil
	c.supported = nil
	c.mu.Unlock()
}
