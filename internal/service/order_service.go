package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService handles order placement and post-creation line mutations
type OrderService struct {
	store          *store.Store
	redis          *redisclient.Client
	sequencer      *InvoiceSequencer
	eventPublisher *broker.EventPublisher
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	st *store.Store,
	redis *redisclient.Client,
	sequencer *InvoiceSequencer,
	eventPublisher *broker.EventPublisher,
	idempotencyTTL time.Duration,
) *OrderService {
	return &OrderService{
		store:          st,
		redis:          redis,
		sequencer:      sequencer,
		eventPublisher: eventPublisher,
		idempotencyTTL: idempotencyTTL,
		logger:         util.GetLogger(),
	}
}

// CartLine is one requested line of a placement
type CartLine struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// PlaceOrderRequest carries the checkout payload. Subtotal, shipping and
// total are computed client-side and stored as submitted; the server does not
// recompute them from item prices.
type PlaceOrderRequest struct {
	Products        []CartLine      `json:"products" binding:"required,min=1,dive"`
	PaymentType     int             `json:"payment_type" binding:"required,oneof=1 2"`
	Total           decimal.Decimal `json:"total"`
	ProductSubtotal decimal.Decimal `json:"product_subtotal"`
	ShippingCharge  decimal.Decimal `json:"shipping_charge"`
	CouponID        *int64          `json:"coupon_id,omitempty"`
	ShippingID      *int64          `json:"shipping_id,omitempty"`
	UserID          *int64          `json:"user_id,omitempty"`
	Trxed           string          `json:"trxed,omitempty"`
	PaymentPhone    string          `json:"paymentphone,omitempty"`
	UserName        string          `json:"user_name,omitempty"`
	Address         string          `json:"address,omitempty"`
	UserPhone       string          `json:"userphone,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
}

// PlaceOrder runs the placement workflow in one transaction: per-line stock
// check-and-decrement under row locks, invoice sequencing, order and line
// rows with bundle expansion, and the payment row. Any failure rolls the
// whole transaction back, so partial decrements never persist. The customer
// notification is enqueued after commit and never blocks the response.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.PlaceOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderPlacementLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey != "" {
		if order, ok := s.lookupIdempotentOrder(ctx, req.IdempotencyKey); ok {
			return order, nil
		}
	}

	order, err := s.placeOnce(ctx, req)
	if store.IsDuplicateKey(err) {
		// The invoice counter fell behind the persisted data. Repair it and
		// retry the whole transaction once; a second collision is a real error.
		s.logger.Warn("Duplicate invoice code, resyncing counter", zap.Error(err))
		if rerr := s.sequencer.Resync(ctx); rerr != nil {
			s.logger.Error("Failed to resync invoice counter", zap.Error(rerr))
		}
		order, err = s.placeOnce(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.String("invoice_code", order.InvoiceCode))

	if req.IdempotencyKey != "" && s.redis != nil {
		if err := s.redis.SetOrderIdempotencyKey(ctx, req.IdempotencyKey, order.ID, s.idempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.Error(err))
		}
	}

	s.notifyOrderPlaced(order, req)

	return order, nil
}

func (s *OrderService) lookupIdempotentOrder(ctx context.Context, key string) (*models.Order, bool) {
	if s.redis == nil {
		return nil, false
	}
	orderID, found, err := s.redis.GetOrderIdempotencyKey(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		s.logger.Warn("Idempotent order missing, replaying placement",
			zap.Int64("order_id", orderID), zap.Error(err))
		return nil, false
	}
	s.logger.Info("Duplicate placement request detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", order.ID))
	return order, true
}

func (s *OrderService) placeOnce(ctx context.Context, req *PlaceOrderRequest) (*models.Order, error) {
	var order *models.Order

	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		// Stock check-and-decrement pass. Each item row is locked before the
		// check so a concurrent placement cannot decrement from a stale read;
		// the decrement happens immediately and the transaction rollback is
		// what undoes it if a later line fails. A bundle's own quantity is
		// not sellable stock: only its components are checked and consumed,
		// during line persistence below.
		items := make(map[int64]*models.Item, len(req.Products))
		for _, line := range req.Products {
			item, err := s.store.GetItemForUpdateTx(ctx, tx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return &UnknownProductError{ProductID: line.ProductID}
			}
			if err != nil {
				return err
			}
			if !item.IsBundle {
				if item.Quantity < line.Quantity {
					return &InsufficientStockError{
						ProductID: item.ID,
						Name:      item.Name,
						Available: item.Quantity,
						Requested: line.Quantity,
					}
				}
				if err := s.store.DecrementItemStockTx(ctx, tx, item.ID, line.Quantity); err != nil {
					return err
				}
			}
			items[line.ProductID] = item
		}

		invoiceCode, err := s.sequencer.Next(ctx)
		if err != nil {
			return fmt.Errorf("failed to mint invoice code: %w", err)
		}

		order = &models.Order{
			InvoiceCode:    invoiceCode,
			UserID:         req.UserID,
			ShippingID:     req.ShippingID,
			Status:         models.OrderStatusProcessing,
			ItemSubtotal:   req.ProductSubtotal,
			ShippingCharge: req.ShippingCharge,
			TotalAmount:    req.Total,
			CouponID:       req.CouponID,
			UserName:       req.UserName,
			Phone:          req.UserPhone,
			Address:        req.Address,
		}
		if err := s.store.CreateOrderTx(ctx, tx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range req.Products {
			if err := s.persistLine(ctx, tx, order.ID, items[line.ProductID], line.Quantity); err != nil {
				return err
			}
		}

		payment := &models.Payment{
			OrderID:    order.ID,
			Status:     models.PaymentStatusUnpaid,
			Amount:     req.Total,
			PadiAmount: decimal.Zero,
		}
		if req.PaymentType == models.PaymentTypeMobile {
			payment.Status = models.PaymentStatusMobilePending
			payment.PaymentType = models.PaymentTypeMobile
		}
		if err := s.store.CreatePaymentTx(ctx, tx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		return nil
	})
	if err != nil {
		if _, ok := err.(*InsufficientStockError); ok {
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		} else if !store.IsDuplicateKey(err) {
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	return order, nil
}

func (s *OrderService) lockAndDecrement(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (*models.Item, error) {
	item, err := s.store.GetItemForUpdateTx(ctx, tx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &UnknownProductError{ProductID: productID}
	}
	if err != nil {
		return nil, err
	}
	if item.Quantity < quantity {
		return nil, &InsufficientStockError{
			ProductID: item.ID,
			Name:      item.Name,
			Available: item.Quantity,
			Requested: quantity,
		}
	}
	if err := s.store.DecrementItemStockTx(ctx, tx, item.ID, quantity); err != nil {
		return nil, err
	}
	return item, nil
}

// persistLine writes the order line for one cart entry, capturing the item
// price at this instant. Bundles additionally consume their components'
// stock and write the extra bundle-total row (null bundle_product_id, price
// carrying the parent line total). The two rows per bundle sale reproduce
// the stored billing shape; reports sum lines as-is.
func (s *OrderService) persistLine(ctx context.Context, tx *sqlx.Tx, orderID int64, item *models.Item, quantity int) error {
	productID := item.ID
	line := &models.OrderLine{
		OrderID:   orderID,
		ProductID: &productID,
		Quantity:  quantity,
		Price:     item.Price,
	}
	if err := s.store.CreateOrderLineTx(ctx, tx, line); err != nil {
		return fmt.Errorf("failed to create order line: %w", err)
	}

	if !item.IsBundle {
		return nil
	}

	components, err := s.store.GetBundleComponentsTx(ctx, tx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load bundle components for item %d: %w", item.ID, err)
	}

	for _, component := range components {
		consumed := component.BundleQuantity * quantity
		if _, err := s.lockAndDecrement(ctx, tx, component.ItemID, consumed); err != nil {
			return err
		}
	}

	bundleLine := &models.OrderLine{
		OrderID:   orderID,
		ProductID: &productID,
		Quantity:  quantity,
		Price:     item.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	if err := s.store.CreateOrderLineTx(ctx, tx, bundleLine); err != nil {
		return fmt.Errorf("failed to create bundle line: %w", err)
	}

	return nil
}

func (s *OrderService) notifyOrderPlaced(order *models.Order, req *PlaceOrderRequest) {
	if s.eventPublisher == nil {
		return
	}

	lines := make([]models.OrderLineData, 0, len(req.Products))
	for _, line := range req.Products {
		lines = append(lines, models.OrderLineData{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		InvoiceCode:   order.InvoiceCode,
		UserID:        order.UserID,
		CustomerName:  order.UserName,
		CustomerPhone: order.Phone,
		TotalAmount:   order.TotalAmount,
		Lines:         lines,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.eventPublisher.PublishOrderPlaced(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderPlaced event",
				zap.Int64("order_id", event.OrderID), zap.Error(err))
		}
	}()
}

// AddProductRequest adds or merges a line on an existing order
type AddProductRequest struct {
	ProductID int64            `json:"product_id" binding:"required"`
	Quantity  int              `json:"quantity" binding:"required,min=1"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

// UpdateLineRequest rewrites a line's quantity and optionally its price
type UpdateLineRequest struct {
	Quantity int              `json:"quantity" binding:"required,min=1"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// AddProduct merges a product onto an order (or inserts a new line) and
// applies the resulting delta to both the order total and the payment amount
// in the same transaction. The payment amount is a derived view of the
// order's chargeable total; the two always move together.
func (s *OrderService) AddProduct(ctx context.Context, orderID int64, req *AddProductRequest, actor *int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddProduct")
	defer span.End()

	item, err := s.store.GetItemByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	err = s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		line, err := s.store.GetOrderLineForUpdateTx(ctx, tx, orderID, req.ProductID)
		if err != nil {
			return err
		}

		var delta decimal.Decimal
		var description string
		if line != nil {
			oldTotal := lineTotal(line.Price, line.Quantity)
			newQuantity := line.Quantity + req.Quantity
			newPrice := line.Price
			if req.Price != nil {
				newPrice = *req.Price
			}
			newTotal := lineTotal(newPrice, newQuantity)
			delta = newTotal.Sub(oldTotal)

			if err := s.store.UpdateOrderLineTx(ctx, tx, line.ID, newQuantity, newPrice); err != nil {
				return err
			}
			description = fmt.Sprintf("merged product %d: quantity %d -> %d, price %s -> %s",
				req.ProductID, line.Quantity, newQuantity, line.Price, newPrice)
		} else {
			price := item.Price
			if req.Price != nil {
				price = *req.Price
			}
			productID := req.ProductID
			newLine := &models.OrderLine{
				OrderID:   orderID,
				ProductID: &productID,
				Quantity:  req.Quantity,
				Price:     price,
			}
			if err := s.store.CreateOrderLineTx(ctx, tx, newLine); err != nil {
				return err
			}
			delta = lineTotal(price, req.Quantity)
			description = fmt.Sprintf("added product %d x%d at %s", req.ProductID, req.Quantity, price)
		}

		return s.applyLedgerDelta(ctx, tx, order, delta, description, actor)
	})
	if err != nil {
		return nil, err
	}

	util.OrderLineMutationsTotal.WithLabelValues("add").Inc()
	return s.store.GetOrderByID(ctx, orderID)
}

// UpdateLine rewrites a line's quantity (and optionally price) and applies
// the delta to both sides of the ledger.
func (s *OrderService) UpdateLine(ctx context.Context, orderID, productID int64, req *UpdateLineRequest, actor *int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateLine")
	defer span.End()

	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		line, err := s.store.GetOrderLineForUpdateTx(ctx, tx, orderID, productID)
		if err != nil {
			return err
		}
		if line == nil {
			return fmt.Errorf("product %d on order %d: %w", productID, orderID, store.ErrNotFound)
		}

		oldTotal := lineTotal(line.Price, line.Quantity)
		newPrice := line.Price
		if req.Price != nil {
			newPrice = *req.Price
		}
		newTotal := lineTotal(newPrice, req.Quantity)
		delta := newTotal.Sub(oldTotal)

		if err := s.store.UpdateOrderLineTx(ctx, tx, line.ID, req.Quantity, newPrice); err != nil {
			return err
		}

		description := fmt.Sprintf("updated product %d: quantity %d -> %d, price %s -> %s",
			productID, line.Quantity, req.Quantity, line.Price, newPrice)
		return s.applyLedgerDelta(ctx, tx, order, delta, description, actor)
	})
	if err != nil {
		return nil, err
	}

	util.OrderLineMutationsTotal.WithLabelValues("update").Inc()
	return s.store.GetOrderByID(ctx, orderID)
}

// RemoveLine deletes a product's line and subtracts its total from both
// sides of the ledger. Stock is not restocked; placement is the only path
// that touches item quantities.
func (s *OrderService) RemoveLine(ctx context.Context, orderID, productID int64, actor *int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.RemoveLine")
	defer span.End()

	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}

		line, err := s.store.GetOrderLineForUpdateTx(ctx, tx, orderID, productID)
		if err != nil {
			return err
		}
		if line == nil {
			return fmt.Errorf("product %d on order %d: %w", productID, orderID, store.ErrNotFound)
		}

		if err := s.store.DeleteOrderLineTx(ctx, tx, line.ID); err != nil {
			return err
		}

		delta := lineTotal(line.Price, line.Quantity).Neg()
		description := fmt.Sprintf("removed product %d x%d at %s", productID, line.Quantity, line.Price)
		return s.applyLedgerDelta(ctx, tx, order, delta, description, actor)
	})
	if err != nil {
		return nil, err
	}

	util.OrderLineMutationsTotal.WithLabelValues("remove").Inc()
	return s.store.GetOrderByID(ctx, orderID)
}

// applyLedgerDelta moves the order total and the payment amount by the same
// delta and appends the audit row, all inside the caller's transaction.
func (s *OrderService) applyLedgerDelta(ctx context.Context, tx *sqlx.Tx, order *models.Order, delta decimal.Decimal, description string, actor *int64) error {
	if err := s.store.AddOrderTotalTx(ctx, tx, order.ID, delta); err != nil {
		return err
	}

	payment, err := s.store.GetPaymentByOrderForUpdateTx(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if payment != nil {
		if err := s.store.AddPaymentAmountTx(ctx, tx, payment.ID, delta); err != nil {
			return err
		}
	}

	activity := &models.Activity{
		RelatableID: order.ID,
		Type:        models.ActivityTypeOrder,
		UserID:      actor,
		Description: fmt.Sprintf("%s (total %s -> %s)", description, order.TotalAmount, order.TotalAmount.Add(delta)),
	}
	return s.store.CreateActivityTx(ctx, tx, activity)
}

// UpdateStatus moves an order between statuses and logs the change
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status int, actor *int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if status < models.OrderStatusProcessing || status > models.OrderStatusRefunded {
		return nil, ErrInvalidStatus
	}

	var from int
	err := s.store.Transact(ctx, func(tx *sqlx.Tx) error {
		order, err := s.store.GetOrderForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.Status

		if err := s.store.UpdateOrderStatusTx(ctx, tx, orderID, status); err != nil {
			return err
		}

		activity := &models.Activity{
			RelatableID: orderID,
			Type:        models.ActivityTypeOrder,
			UserID:      actor,
			Description: fmt.Sprintf("order status changed from %d to %d", order.Status, status),
		}
		return s.store.CreateActivityTx(ctx, tx, activity)
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderStatusChanged(orderID, from, status)
	return s.store.GetOrderByID(ctx, orderID)
}

func (s *OrderService) publishOrderStatusChanged(orderID int64, from, to int) {
	if s.eventPublisher == nil {
		return
	}

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()
}

// OrderDetail aggregates an order with its related rows, each loaded by an
// explicit query.
type OrderDetail struct {
	Order    *models.Order           `json:"order"`
	Lines    []models.OrderLine      `json:"lines"`
	Payments []models.Payment        `json:"payments"`
	Coupon   *models.Coupon          `json:"coupon,omitempty"`
	Shipping *models.ShippingAddress `json:"shipping,omitempty"`
}

// GetOrder retrieves an order with lines, payments, coupon and shipping
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines, err := s.store.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payments, err := s.store.GetPaymentsByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{Order: order, Lines: lines, Payments: payments}

	if order.CouponID != nil {
		coupon, err := s.store.GetCouponByID(ctx, *order.CouponID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.Coupon = coupon
	}

	if order.ShippingID != nil {
		shipping, err := s.store.GetShippingAddress(ctx, *order.ShippingID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		detail.Shipping = shipping
	}

	return detail, nil
}

// ListOrders retrieves recent orders, optionally for one user
func (s *OrderService) ListOrders(ctx context.Context, userID *int64, limit int) ([]models.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListOrders(ctx, userID, limit)
}

// ListActivities retrieves the audit trail of an order
func (s *OrderService) ListActivities(ctx context.Context, orderID int64) ([]models.Activity, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, orderID, models.ActivityTypeOrder)
}

func lineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
