package worker

import (
	"context"
	"log"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers an order confirmation to the customer and the admin
// address. Delivery transport is pluggable; the worker only cares that a
// returned error keeps the task queued for retry.
type Notifier interface {
	NotifyOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// LogNotifier records confirmations in the log. It stands in for the mail
// transport, which is configured per deployment.
type LogNotifier struct {
	AdminEmail string
	logger     *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(adminEmail string) *LogNotifier {
	return &LogNotifier{
		AdminEmail: adminEmail,
		logger:     util.GetLogger(),
	}
}

// NotifyOrderPlaced logs the confirmation that would be mailed
func (n *LogNotifier) NotifyOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	n.logger.Info("Order confirmation notification",
		zap.Int64("order_id", event.OrderID),
		zap.String("invoice_code", event.InvoiceCode),
		zap.String("customer", event.CustomerName),
		zap.String("admin_email", n.AdminEmail),
		zap.String("total", event.TotalAmount.String()))
	util.NotificationsSentTotal.Inc()
	return nil
}

// NotificationWorker consumes OrderPlaced events and hands them to the
// notifier. Consumption runs outside the placement transaction: the HTTP
// response never waits on it, and an uncommitted offset retries the task.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(func(ctx context.Context, event *models.OrderPlacedEvent) error {
		if err := notifier.NotifyOrderPlaced(ctx, event); err != nil {
			util.NotificationFailuresTotal.Inc()
			return err
		}
		return nil
	})

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}
