package api

import (
	"net/http"
	"strconv"
	"time"

	"commerce-service/internal/service"
	"commerce-service/internal/store"
	"commerce-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	store          *store.Store
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, paymentService *service.PaymentService, st *store.Store) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
		store:          st,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/place-order", h.placeOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/:id/activities", h.listOrderActivities)
		v1.PUT("/orders/update-status/:id", h.updateOrderStatus)
		v1.POST("/orders/add-product/:id", h.addProduct)
		v1.PUT("/orders/products/:id/update-quantity/:productId", h.updateOrderLine)
		v1.DELETE("/orders/products/:id/remove/:productId", h.removeOrderLine)

		v1.PUT("/payments/update-status/:id", h.updatePaymentStatus)
		v1.PUT("/payments/update-paid-amount/:id", h.updatePaidAmount)
		v1.GET("/payments/:id", h.getPayment)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/coupons/:code", h.getCoupon)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// actorID resolves the acting admin user for audit rows. Authentication is
// terminated upstream; the gateway forwards the principal in a header.
func actorID(c *gin.Context) *int64 {
	raw := c.GetHeader("X-Actor-ID")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid "+name, nil)
		return 0, false
	}
	return id, true
}

// placeOrder handles order placement
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusCreated, "order placed", order)
}

// listOrders handles order listing with an optional user filter
func (h *Handler) listOrders(c *gin.Context) {
	var userID *int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid user_id", nil)
			return
		}
		userID = &id
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	orders, err := h.orderService.ListOrders(c.Request.Context(), userID, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "orders", orders)
}

// getOrder handles full order detail
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "order", detail)
}

// listOrderActivities handles the order audit trail
func (h *Handler) listOrderActivities(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	activities, err := h.orderService.ListActivities(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "activities", activities)
}

type updateOrderStatusRequest struct {
	Status *int `json:"status" binding:"required,min=0,max=4"`
}

// updateOrderStatus handles order status changes
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := h.orderService.UpdateStatus(c.Request.Context(), orderID, *req.Status, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "order status updated", order)
}

// addProduct handles adding a line to an existing order
func (h *Handler) addProduct(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req service.AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := h.orderService.AddProduct(c.Request.Context(), orderID, &req, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "product added", order)
}

// updateOrderLine handles quantity/price updates on an existing line
func (h *Handler) updateOrderLine(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}

	var req service.UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := h.orderService.UpdateLine(c.Request.Context(), orderID, productID, &req, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "product updated", order)
}

// removeOrderLine handles removing a line from an order
func (h *Handler) removeOrderLine(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}

	order, err := h.orderService.RemoveLine(c.Request.Context(), orderID, productID, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "product removed", order)
}

type updatePaymentStatusRequest struct {
	Status *int `json:"status" binding:"required,oneof=0 1 3 4"`
}

// updatePaymentStatus handles the payment status machine
func (h *Handler) updatePaymentStatus(c *gin.Context) {
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	payment, err := h.paymentService.UpdateStatus(c.Request.Context(), paymentID, *req.Status, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "payment status updated", payment)
}

type updatePaidAmountRequest struct {
	PadiAmount decimal.Decimal `json:"padi_amount"`
}

// updatePaidAmount handles collected-amount updates
func (h *Handler) updatePaidAmount(c *gin.Context) {
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updatePaidAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	payment, err := h.paymentService.UpdatePadiAmount(c.Request.Context(), paymentID, req.PadiAmount, actorID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "paid amount updated", payment)
}

// getPayment handles payment detail
func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "id")
	if !ok {
		return
	}

	detail, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "payment", detail)
}

// listProducts handles the item list
func (h *Handler) listProducts(c *gin.Context) {
	items, err := h.store.GetItems(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "products", items)
}

// getProduct handles item detail, including bundle components
func (h *Handler) getProduct(c *gin.Context) {
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}

	item, err := h.store.GetItemByID(c.Request.Context(), itemID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	data := gin.H{"item": item}
	if item.IsBundle {
		components, err := h.store.GetBundleComponents(c.Request.Context(), item.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		data["components"] = components
	}

	respond(c, http.StatusOK, "product", data)
}

// getCoupon handles coupon lookup by code
func (h *Handler) getCoupon(c *gin.Context) {
	coupon, err := h.store.GetCouponByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respond(c, http.StatusOK, "coupon", coupon)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
