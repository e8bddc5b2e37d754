package notify

import (
	"context"
	"log/slog"

	"github.com/utafrali/foodcart/pkg/kafka"
	"github.com/utafrali/foodcart/pkg/logger"
)

// Kafka event identifiers for published notifications.
const (
	EventTypeNotification = "cart.notification"
	AggregateTypeSession  = "cart_session"
	SourceStorefront      = "storefront"
)

// Publisher is the part of kafka.Producer the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// KafkaNotifier publishes notifications as events keyed by session so one
// session's messages stay ordered on a partition.
type KafkaNotifier struct {
	publisher Publisher
	topic     string
	logger    *slog.Logger
}

// NewKafkaNotifier returns a notifier publishing to topic.
func NewKafkaNotifier(publisher Publisher, topic string, log *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, topic: topic, logger: log}
}

// Notify publishes n. Publish failures are logged and dropped.
func (k *KafkaNotifier) Notify(ctx context.Context, n Notification) {
	session := logger.SessionFromContext(ctx)
	if session == "" {
		session = "anonymous"
	}

	event, err := kafka.NewEvent(EventTypeNotification, session, AggregateTypeSession, SourceStorefront, n)
	if err != nil {
		k.logger.ErrorContext(ctx, "failed to build notification event", slog.String("error", err.Error()))
		return
	}
	event.WithMetadata("level", string(n.Level))
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := k.publisher.Publish(ctx, k.topic, event); err != nil {
		k.logger.WarnContext(ctx, "notification not published",
			slog.String("topic", k.topic),
			slog.String("error", err.Error()),
		)
	}
}
