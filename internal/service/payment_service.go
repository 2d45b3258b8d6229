package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService drives the payment status machine and the collected-amount
// bookkeeping. Status and padi_amount are updated by distinct operations and
// neither derives the other; a fully reconciled payment requires both calls.
type PaymentService struct {
	store          *store.Store
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(st *store.Store, eventPublisher *broker.EventPublisher) *PaymentService {
	return &PaymentService{
		store:          st,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// validPaymentStatus reports whether s is an accepted requested status
func validPaymentStatus(s int) bool {
	return s == 0 || s == 1 || s == 3 || s == 4
}

// transitionAmountFor picks the ledger amount for a paid-method bucket:
// the full payable amount for method 1, the collected amount otherwise.
func transitionAmountFor(paymentType int, amount, padiAmount decimal.Decimal) decimal.Decimal {
	if paymentType == models.PaymentTypeCash {
		return amount
	}
	return padiAmount
}

// UpdateStatus applies the payment status machine for a requested status in
// {0,1,3,4}. Status 0 resets the payment to unpaid and removes its ledger
// entry; any other value marks it paid with that method bucket and upserts
// the single transition row.
func (ps *PaymentService) UpdateStatus(ctx context.Context, paymentID int64, requested int, actor *int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.UpdateStatus")
	defer span.End()

	if !validPaymentStatus(requested) {
		return nil, ErrInvalidStatus
	}

	var payment *models.Payment
	err := ps.store.Transact(ctx, func(tx *sqlx.Tx) error {
		var err error
		payment, err = ps.store.GetPaymentForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		newStatus := models.PaymentStatusPaid
		newType := requested
		if requested == 0 {
			newStatus = models.PaymentStatusUnpaid
			newType = models.PaymentTypeNone
		}

		if err := ps.store.UpdatePaymentStatusTx(ctx, tx, paymentID, newStatus, newType); err != nil {
			return err
		}

		if requested == 0 {
			if err := ps.store.DeleteTransitionsByPaymentTx(ctx, tx, paymentID); err != nil {
				return err
			}
		} else {
			amount := transitionAmountFor(newType, payment.Amount, payment.PadiAmount)
			if err := ps.upsertTransition(ctx, tx, paymentID, amount); err != nil {
				return err
			}
		}

		activity := &models.Activity{
			RelatableID: paymentID,
			Type:        models.ActivityTypePayment,
			UserID:      actor,
			Description: fmt.Sprintf("payment status changed from %d (type %d) to %d (type %d)",
				payment.Status, payment.PaymentType, newStatus, newType),
		}
		if err := ps.store.CreateActivityTx(ctx, tx, activity); err != nil {
			return err
		}

		payment.Status = newStatus
		payment.PaymentType = newType
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PaymentStatusChangesTotal.WithLabelValues(strconv.Itoa(requested)).Inc()
	ps.logger.Info("Payment status updated",
		zap.Int64("payment_id", paymentID),
		zap.Int("status", payment.Status),
		zap.Int("payment_type", payment.PaymentType))

	ps.publishStatusChanged(payment)
	return payment, nil
}

// upsertTransition finds-or-creates the payment's single transition row
func (ps *PaymentService) upsertTransition(ctx context.Context, tx *sqlx.Tx, paymentID int64, amount decimal.Decimal) error {
	transition, err := ps.store.GetTransitionByPaymentTx(ctx, tx, paymentID)
	if err != nil {
		return err
	}
	if transition != nil {
		return ps.store.UpdateTransitionAmountTx(ctx, tx, transition.ID, amount)
	}
	return ps.store.CreateTransitionTx(ctx, tx, &models.Transition{
		PaymentID: paymentID,
		Amount:    amount,
	})
}

// UpdatePadiAmount sets the collected amount. It rejects values above the
// payable amount and never flips the payment status.
func (ps *PaymentService) UpdatePadiAmount(ctx context.Context, paymentID int64, amount decimal.Decimal, actor *int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.UpdatePadiAmount")
	defer span.End()

	if amount.IsNegative() {
		return nil, ErrInvalidPaidAmount
	}

	var payment *models.Payment
	err := ps.store.Transact(ctx, func(tx *sqlx.Tx) error {
		var err error
		payment, err = ps.store.GetPaymentForUpdateTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}

		if amount.GreaterThan(payment.Amount) {
			return ErrPaidExceedsAmount
		}

		if err := ps.store.UpdatePadiAmountTx(ctx, tx, paymentID, amount); err != nil {
			return err
		}

		activity := &models.Activity{
			RelatableID: paymentID,
			Type:        models.ActivityTypePayment,
			UserID:      actor,
			Description: fmt.Sprintf("paid amount changed from %s to %s", payment.PadiAmount, amount),
		}
		if err := ps.store.CreateActivityTx(ctx, tx, activity); err != nil {
			return err
		}

		payment.PadiAmount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.PaidAmountUpdatesTotal.Inc()
	return payment, nil
}

// PaymentDetail pairs a payment with its ledger entry, if any
type PaymentDetail struct {
	Payment    *models.Payment    `json:"payment"`
	Transition *models.Transition `json:"transition,omitempty"`
}

// GetPayment retrieves a payment with its transition
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID int64) (*PaymentDetail, error) {
	payment, err := ps.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	transition, err := ps.store.GetTransitionByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return &PaymentDetail{Payment: payment, Transition: transition}, nil
}

func (ps *PaymentService) publishStatusChanged(payment *models.Payment) {
	if ps.eventPublisher == nil {
		return
	}

	event := &models.PaymentStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Timestamp: time.Now(),
		},
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		Status:      payment.Status,
		PaymentType: payment.PaymentType,
		Amount:      payment.Amount,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := ps.eventPublisher.PublishPaymentStatusChanged(ctx, event); err != nil {
			ps.logger.Error("Failed to publish PaymentStatusChanged event",
				zap.Int64("payment_id", payment.ID), zap.Error(err))
		}
	}()
}
