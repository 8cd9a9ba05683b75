package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/bondify/bondify/internal/domain"
)

const (
	// KindSubscription is sent to a subscriber once units are allocated.
	KindSubscription = "bond_subscription"
	// KindTransfer is sent to the receiving side of a unit transfer.
	KindTransfer = "bond_transfer"
	// KindMaturity is sent to every holder when a bond matures.
	KindMaturity = "bond_maturity"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
	Event       *domain.Event
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// KindFor maps a ledger event type to its notification kind.
func KindFor(t domain.EventType) string {
	switch t {
	case domain.EventSubscription:
		return KindSubscription
	case domain.EventTransfer:
		return KindTransfer
	default:
		return KindMaturity
	}
}

// FromEvent builds the notification for a committed ledger event.
func FromEvent(e domain.Event) Message {
	ev := e
	return Message{Kind: KindFor(e.Type), Destination: e.UserID, Body: e.Details, Event: &ev}
}

// LoggerNotifier writes notifications to the structured log. It is the
// notifier used when no message broker is configured.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a notifier backed by logger.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	attrs := []any{"kind", message.Kind, "destination", message.Destination, "body", message.Body}
	if message.Event != nil {
		attrs = append(attrs, "bond_id", message.Event.BondID, "event_id", message.Event.ID,
			"created_at", message.Event.CreatedAt.Format(time.RFC3339Nano))
	}
	n.logger.Info("notification", attrs...)
	return nil
}
