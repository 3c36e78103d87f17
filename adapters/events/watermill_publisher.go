package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/tollgate/core"
)

const (
	TopicSessionCreated = "tollgate.session.created"
	TopicLogout         = "tollgate.auth.logout"
	TopicAtaCreated     = "tollgate.ata.created"
	TopicPaymentSettled = "tollgate.payment.settled"
)

// SessionCreatedEvent is emitted after a successful sign-in
type SessionCreatedEvent struct {
	SessionID string       `json:"session_id"`
	Address   string       `json:"address"`
	AuthorID  *string      `json:"author_id,omitempty"`
	Network   core.Network `json:"network"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address    string   `json:"address"`
	SessionIDs []string `json:"session_ids,omitempty"` // empty means every session of Address
}

// PaymentSettledEvent is emitted once a facilitator settles a payment
type PaymentSettledEvent struct {
	Network     core.Network `json:"network"`
	Asset       string       `json:"asset"`
	Amount      string       `json:"amount"`
	PayTo       string       `json:"pay_to"`
	Payer       string       `json:"payer,omitempty"`
	Transaction string       `json:"transaction,omitempty"`
	Resource    string       `json:"resource,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishSessionCreated publishes a session created event
func (p *WatermillPublisher) PublishSessionCreated(ctx context.Context, session *core.Session) error {
	return p.publish(ctx, TopicSessionCreated, session.ID.String(), SessionCreatedEvent{
		SessionID: session.ID.String(),
		Address:   session.WalletAddress,
		AuthorID:  session.AuthorID,
		Network:   session.Network,
		ExpiresAt: session.ExpiresAt,
	})
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, sessionIDs ...string) error {
	return p.publish(ctx, TopicLogout, uuid.NewString(), LogoutEvent{
		Address:    address,
		SessionIDs: sessionIDs,
	})
}

// PublishAtaCreated publishes an associated token account creation
func (p *WatermillPublisher) PublishAtaCreated(ctx context.Context, entry *core.AtaCreation) error {
	return p.publish(ctx, TopicAtaCreated, uuid.NewString(), entry)
}

// PublishPaymentSettled publishes a settled payment
func (p *WatermillPublisher) PublishPaymentSettled(ctx context.Context, req *core.PaymentRequirement, result *core.SettleResult) error {
	return p.publish(ctx, TopicPaymentSettled, uuid.NewString(), PaymentSettledEvent{
		Network:     req.Network,
		Asset:       req.Asset,
		Amount:      req.Amount,
		PayTo:       req.PayTo,
		Payer:       result.Payer,
		Transaction: result.Transaction,
		Resource:    req.Resource,
	})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Nop discards every event
type Nop struct{}

func (Nop) PublishSessionCreated(context.Context, *core.Session) error { return nil }
func (Nop) PublishLogout(context.Context, string, ...string) error { return nil }
func (Nop) PublishAtaCreated(context.Context, *core.AtaCreation) error { return nil }
func (Nop) PublishPaymentSettled(context.Context, *core.PaymentRequirement, *core.SettleResult) error {
	return nil
}
