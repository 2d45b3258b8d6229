package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order placements",
	}, []string{"reason"})

	OrderPlacementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_placement_latency_seconds",
		Help:    "Latency of the order placement workflow",
		Buckets: prometheus.DefBuckets,
	})

	OrderLineMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_line_mutations_total",
		Help: "Total number of post-creation line mutations",
	}, []string{"op"})

	PaymentStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_status_changes_total",
		Help: "Total number of payment status changes",
	}, []string{"status"})

	PaidAmountUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paid_amount_updates_total",
		Help: "Total number of collected-amount updates",
	})

	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of order confirmations delivered",
	})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Total number of order confirmation delivery failures",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
