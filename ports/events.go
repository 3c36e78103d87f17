package ports

import (
	"context"

	"github.com/layer-3/tollgate/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionCreated(ctx context.Context, session *core.Session) error
	PublishLogout(ctx context.Context, address string, sessionIDs ...string) error
	PublishAtaCreated(ctx context.Context, entry *core.AtaCreation) error
	PublishPaymentSettled(ctx context.Context, requirement *core.PaymentRequirement, result *core.SettleResult) error
}
