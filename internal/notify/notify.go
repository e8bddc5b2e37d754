// Package notify delivers the transient success and error messages that the
// cart store raises for the user.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/foodcart/pkg/logger"
)

// Level is the severity shown to the user.
type Level string

// Notification levels.
const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is one message for the user. Seq is assigned by the Feed.
type Notification struct {
	Seq     uint64    `json:"seq"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	ItemID  string    `json:"item_id,omitempty"`
	Time    time.Time `json:"time"`
}

// Success builds a success notification stamped with the current time.
func Success(message string) Notification {
	return Notification{Level: LevelSuccess, Message: message, Time: time.Now().UTC()}
}

// Error builds an error notification stamped with the current time.
func Error(message string) Notification {
	return Notification{Level: LevelError, Message: message, Time: time.Now().UTC()}
}

// ForItem returns n tagged with the item it concerns.
func (n Notification) ForItem(itemID string) Notification {
	n.ItemID = itemID
	return n
}

// Notifier receives notifications. Delivery is fire-and-forget: sinks handle
// their own failures so a broken sink never fails a cart operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

// Notify delivers n to each notifier.
func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, Notification) {})

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier writing to log.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Notify logs success messages at info and error messages at warn.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) {
	level := slog.LevelInfo
	if n.Level == LevelError {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("notification_level", string(n.Level)),
		slog.String("message", n.Message),
	}
	if n.ItemID != "" {
		attrs = append(attrs, slog.String("item_id", n.ItemID))
	}
	logger.WithContext(ctx, l.logger).LogAttrs(ctx, level, "notification", attrs...)
}
