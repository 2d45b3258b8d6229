package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a sellable product. Bundles are items with IsBundle set; a bundle's
// own Quantity is not sellable stock, only its components' quantities are.
type Item struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
	Quantity  int             `db:"quantity" json:"quantity"`
	IsBundle  bool            `db:"is_bundle" json:"is_bundle"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// BundleItem links a bundle item to one of its component items.
// BundleQuantity is the number of component units consumed per bundle sold.
type BundleItem struct {
	ID             int64 `db:"id" json:"id"`
	BundleItemID   int64 `db:"bundle_item_id" json:"bundle_item_id"`
	ItemID         int64 `db:"item_id" json:"item_id"`
	BundleQuantity int   `db:"bundle_quantity" json:"bundle_quantity"`
}

// Order is a customer order. UserID is nil for guest checkout, in which case
// the denormalized UserName/Phone/Address fields carry the customer details.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	InvoiceCode    string          `db:"invoice_code" json:"invoice_code"`
	UserID         *int64          `db:"user_id" json:"user_id,omitempty"`
	ShippingID     *int64          `db:"shipping_id" json:"shipping_id,omitempty"`
	Status         int             `db:"status" json:"status"`
	ItemSubtotal   decimal.Decimal `db:"item_subtotal" json:"item_subtotal"`
	ShippingCharge decimal.Decimal `db:"shipping_charge" json:"shipping_charge"`
	TotalAmount    decimal.Decimal `db:"total_amount" json:"total_amount"`
	CouponID       *int64          `db:"coupon_id" json:"coupon_id,omitempty"`
	Discount       decimal.Decimal `db:"discount" json:"discount"`
	UserName       string          `db:"user_name" json:"user_name,omitempty"`
	Phone          string          `db:"phone" json:"phone,omitempty"`
	Address        string          `db:"address" json:"address,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderLine is one purchased line of an order. Price is captured at the time
// of sale and never re-reads the item's live price.
//
// A bundle sale produces two rows: the unit-price row for the bundle item and
// an extra bundle-total row whose BundleProductID is null and whose Price is
// the parent line total. Historical reports sum these rows as stored, so the
// duplication is preserved rather than collapsed.
type OrderLine struct {
	ID              int64           `db:"id" json:"id"`
	OrderID         int64           `db:"order_id" json:"order_id"`
	ProductID       *int64          `db:"product_id" json:"product_id,omitempty"`
	BundleProductID *int64          `db:"bundle_product_id" json:"bundle_product_id,omitempty"`
	Quantity        int             `db:"quantity" json:"quantity"`
	Price           decimal.Decimal `db:"price" json:"price"`
}

// Payment tracks the chargeable total of an order. Amount mirrors the order's
// total_amount; PadiAmount is what has actually been collected so far. The
// field name preserves the stored column's historical spelling.
type Payment struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     int64           `db:"order_id" json:"order_id"`
	Status      int             `db:"status" json:"status"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PadiAmount  decimal.Decimal `db:"padi_amount" json:"padi_amount"`
	PaymentType int             `db:"payment_type" json:"payment_type"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Transition is the revenue ledger entry for a paid payment. At most one
// exists per payment, maintained by find-or-create.
type Transition struct {
	ID        int64           `db:"id" json:"id"`
	PaymentID int64           `db:"payment_id" json:"payment_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// Coupon is a flat-amount discount code.
type Coupon struct {
	ID     int64           `db:"id" json:"id"`
	Code   string          `db:"code" json:"code"`
	Amount decimal.Decimal `db:"amount" json:"amount"`
}

// ShippingAddress is a saved delivery address.
type ShippingAddress struct {
	ID      int64           `db:"id" json:"id"`
	UserID  int64           `db:"user_id" json:"user_id"`
	Address string          `db:"address" json:"address"`
	Phone   string          `db:"phone" json:"phone"`
	Charge  decimal.Decimal `db:"charge" json:"charge"`
}

// Activity is an append-only audit row. Business logic only ever inserts
// these; they are read back solely for admin display and never gate a
// mutation.
type Activity struct {
	ID          int64     `db:"id" json:"id"`
	RelatableID int64     `db:"relatable_id" json:"relatable_id"`
	Type        string    `db:"type" json:"type"`
	UserID      *int64    `db:"user_id" json:"user_id,omitempty"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderStatusProcessing = 0
	OrderStatusCompleted  = 1
	OrderStatusOnHold     = 2
	OrderStatusCancelled  = 3
	OrderStatusRefunded   = 4
)

// Payment statuses
const (
	PaymentStatusUnpaid = 0
	PaymentStatusPaid   = 1
)

// Payment types. Type 2 marks a mobile payment awaiting confirmation at
// placement time (stored as payment status 4); 1, 3 and 4 are the
// paid-method buckets recorded alongside payment status 1.
const (
	PaymentTypeNone   = 0
	PaymentTypeCash   = 1
	PaymentTypeMobile = 2
)

// PaymentStatusMobilePending is the placement-time status for orders placed
// with a mobile payment type, before an admin confirms collection.
const PaymentStatusMobilePending = 4

// Activity discriminators
const (
	ActivityTypeOrder   = "order"
	ActivityTypePayment = "payment"
)
