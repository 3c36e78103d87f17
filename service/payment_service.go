package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/layer-3/tollgate/core"
	"github.com/layer-3/tollgate/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Offer is what a paid resource charges and to whom
type Offer struct {
	PriceUSD decimal.Decimal
	// PayTo holds one payee address per network family
	PayTo map[core.Family]string
	// Networks restricts the accepted networks; empty offers the defaults
	Networks    []core.Network
	Resource    string
	Description string
	MimeType    string
}

// Receipt is a settled payment
type Receipt struct {
	Requirement *core.PaymentRequirement `json:"requirement"`
	Settlement  *core.SettleResult       `json:"settlement"`
	Ata         *core.AtaResult          `json:"ata,omitempty"`
}

// PaymentService verifies and settles x402 payments through a facilitator
type PaymentService struct {
	builder     *RequirementBuilder
	facilitator ports.Facilitator
	cache       *CapabilityCache
	atas        *ATAProvisioner
	eventPub    ports.EventPublisher
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	builder *RequirementBuilder,
	facilitator ports.Facilitator,
	cache *CapabilityCache,
	atas *ATAProvisioner,
	eventPub ports.EventPublisher,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		builder:     builder,
		facilitator: facilitator,
		cache:       cache,
		atas:        atas,
		eventPub:    eventPub,
		logger:      logger,
	}
}

// Requirements builds one payment requirement per accepted network of offer.
// Networks that are unsupported or disallowed testnets are skipped, as are
// networks whose fee payer cannot be resolved while the facilitator is down.
func (s *PaymentService) Requirements(ctx context.Context, offer Offer) (*core.PaymentRequired, error) {
	targets := offer.Networks
	if len(targets) == 0 {
		targets = s.builder.DefaultTargets()
	}

	var (
		reqs      []core.PaymentRequirement
		lastErr   error
		outageErr error
	)
	for _, network := range targets {
		payTo := offer.PayTo[network.Family()]
		if payTo == "" {
			continue
		}

		req, err := s.builder.Build(ctx, BuildInput{
			Network:     network,
			PriceUSD:    offer.PriceUSD,
			PayTo:       payTo,
			Resource:    offer.Resource,
			Description: offer.Description,
			MimeType:    offer.MimeType,
		})
		if errors.Is(err, core.ErrTestnetNotAllowed) || errors.Is(err, core.ErrUnsupportedNetwork) {
			s.logger.Warn("skipping payment network", zap.String("network", network.String()), zap.Error(err))
			lastErr = err
			continue
		}
		if errors.Is(err, core.ErrFacilitatorUnavailable) {
			s.invalidateOnOutage(err)
			s.logger.Warn("skipping payment network, facilitator unavailable", zap.String("network", network.String()), zap.Error(err))
			outageErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}

	if len(reqs) == 0 {
		if outageErr != nil {
			return nil, outageErr
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("%w: no payee for the offered networks", core.ErrUnsupportedNetwork)
	}

	return s.builder.Envelope(reqs, ""), nil
}

// Settle verifies the payment proof in header against offer and settles it
func (s *PaymentService) Settle(ctx context.Context, offer Offer, header string) (*Receipt, error) {
	payload, err := DecodePaymentHeader(header)
	if err != nil {
		return nil, err
	}

	required, err := s.Requirements(ctx, offer)
	if err != nil {
		return nil, err
	}

	req, err := matchRequirement(payload, required.Accepts)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(
		zap.String("network", req.Network.String()),
		zap.String("resource", req.Resource),
		zap.String("amount", req.Amount),
	)

	verified, err := s.facilitator.Verify(ctx, payload, req)
	if err != nil {
		s.invalidateOnOutage(err)
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !verified.IsValid {
		logger.Info("payment rejected", zap.String("reason", verified.InvalidReason))
		return nil, fmt.Errorf("%w: %s", core.ErrPaymentVerificationFailed, verified.InvalidReason)
	}

	receipt := &Receipt{Requirement: req}

	if req.Network.Family() == core.FamilySolana {
		ata := s.atas.Ensure(ctx, req.PayTo, req.Network, "payment")
		if !ata.Success {
			logger.Warn("payee token account unavailable", zap.Error(ata.Err))
			if errors.Is(ata.Err, core.ErrAtaCreationFailed) {
				return nil, ata.Err
			}
			return nil, fmt.Errorf("%w: %w", core.ErrAtaCreationFailed, ata.Err)
		}
		receipt.Ata = &ata
	}

	settled, err := s.facilitator.Settle(ctx, payload, req)
	if err != nil {
		s.invalidateOnOutage(err)
		return nil, fmt.Errorf("failed to settle payment: %w", err)
	}
	if !settled.Success {
		logger.Warn("payment settlement failed", zap.String("reason", settled.ErrorReason))
		return nil, fmt.Errorf("%w: %s", core.ErrPaymentSettlementFailed, settled.ErrorReason)
	}
	if settled.Payer == "" {
		settled.Payer = verified.Payer
	}
	receipt.Settlement = settled

	if err := s.eventPub.PublishPaymentSettled(ctx, req, settled); err != nil {
		logger.Warn("failed to publish settlement event", zap.Error(err))
	}

	logger.Info("payment settled", zap.String("tx", settled.Transaction), zap.String("payer", settled.Payer))
	return receipt, nil
}

// invalidateOnOutage drops cached capabilities after a facilitator outage so
// the next request refetches them
func (s *PaymentService) invalidateOnOutage(err error) {
	if s.cache != nil && errors.Is(err, core.ErrFacilitatorUnavailable) {
		s.cache.Invalidate()
	}
}

func matchRequirement(payload *core.PaymentPayload, accepts []core.PaymentRequirement) (*core.PaymentRequirement, error) {
	scheme, network := payload.Scheme, payload.Network
	if payload.Accepted != nil {
		scheme, network = payload.Accepted.Scheme, payload.Accepted.Network
	}

	for i := range accepts {
		if accepts[i].Scheme == scheme && accepts[i].Network == network {
			return &accepts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", core.ErrNoMatchingRequirement, scheme, network)
}

// DecodePaymentHeader parses a payment proof header: base64 encoded JSON, or
// raw JSON from older clients
func DecodePaymentHeader(header string) (*core.PaymentPayload, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("%w: empty header", core.ErrPaymentProofUndecodable)
	}

	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(header, "="))
	}
	if err != nil {
		raw = []byte(header)
	}

	var payload core.PaymentPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPaymentProofUndecodable, err)
	}
	if payload.Accepted != nil {
		if payload.Scheme == "" {
			payload.Scheme = payload.Accepted.Scheme
		}
		if payload.Network == "" {
			payload.Network = payload.Accepted.Network
		}
	}
	if payload.Scheme == "" || payload.Network == "" || len(payload.Payload) == 0 {
		return nil, fmt.Errorf("%w: missing scheme, network or payload", core.ErrPaymentProofUndecodable)
	}
	return &payload, nil
}

// EncodeHeader serializes v as base64 JSON for PAYMENT-REQUIRED and
// PAYMENT-RESPONSE headers
func EncodeHeader(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
