package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/internal/address"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// BuyNowInput requests a single-item order that bypasses the cart.
type BuyNowInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// CreateOrderInput is everything the orchestrator needs to build an order.
// BuyNow nil means the order is assembled from the user's cart.
type CreateOrderInput struct {
	UserID          uuid.UUID
	PaymentMethod   enums.PaymentMethod
	Phone           string
	ServiceCharge   decimal.Decimal
	PromoCode       string
	ShippingAddress address.Input
	BuyNow          *BuyNowInput
}

// PaymentRedirect tells the client where to send the customer next.
// Khalti hosts a payment page (RedirectURL); eSewa expects the browser to
// POST a signed form (FormAction + FormFields).
type PaymentRedirect struct {
	Gateway     enums.PaymentMethod `json:"gateway"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	FormAction  string              `json:"form_action,omitempty"`
	FormFields  map[string]string   `json:"form_fields,omitempty"`
}

// CreateOrderResult is the orchestrator's answer: the persisted order,
// redirect info for online methods, and routing data for notifications.
type CreateOrderResult struct {
	Order         *models.Order
	Payment       *PaymentRedirect
	VendorIDs     []uuid.UUID
	CustomerEmail string
}
