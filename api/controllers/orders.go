package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/api/middleware"
	"github.com/bijaykarki/meromart-backend/api/responses"
	"github.com/bijaykarki/meromart-backend/api/validators"
	"github.com/bijaykarki/meromart-backend/internal/address"
	internalorders "github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type shippingAddressRequest struct {
	Province string `json:"province" validate:"required"`
	District string `json:"district" validate:"required"`
	City     string `json:"city" validate:"required"`
	Street   string `json:"street" validate:"required"`
	Landmark string `json:"landmark"`
}

type buyNowRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	PaymentMethod   string                 `json:"payment_method" validate:"required"`
	Phone           string                 `json:"phone" validate:"required,min=7,max=15"`
	ServiceCharge   decimal.Decimal        `json:"service_charge"`
	PromoCode       string                 `json:"promo_code"`
	ShippingAddress shippingAddressRequest `json:"shipping_address" validate:"required"`
	BuyNow          *buyNowRequest         `json:"buy_now"`
}

// CreateOrder places an order from the caller's cart, or for a single
// product when buy_now is present.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		input := internalorders.CreateOrderInput{
			UserID:        userID,
			PaymentMethod: method,
			Phone:         strings.TrimSpace(req.Phone),
			ServiceCharge: req.ServiceCharge,
			PromoCode:     req.PromoCode,
			ShippingAddress: address.Input{
				Province: req.ShippingAddress.Province,
				District: req.ShippingAddress.District,
				City:     req.ShippingAddress.City,
				Street:   req.ShippingAddress.Street,
				Landmark: req.ShippingAddress.Landmark,
			},
		}
		if req.BuyNow != nil {
			input.BuyNow = &internalorders.BuyNowInput{
				ProductID: req.BuyNow.ProductID,
				VariantID: req.BuyNow.VariantID,
				Quantity:  req.BuyNow.Quantity,
			}
		}

		result, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"order":   result.Order,
			"payment": result.Payment,
		})
	}
}

// ListOrders returns the caller's orders, newest first.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		list, err := svc.ListByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// OrderDetail returns one order. Customers only see their own orders;
// admins see any.
func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if middleware.RoleFromContext(r.Context()) != "admin" {
			userID, ok := middleware.UserIDFromContext(r.Context())
			if !ok || order.UserID != userID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
		}

		responses.WriteSuccess(w, order)
	}
}

// TrackOrder is the public status lookup. The caller must supply the
// email the order was placed with.
func TrackOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "email is required"))
			return
		}

		status, err := svc.Track(r.Context(), orderID, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": status.String()})
	}
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus moves an order along the fulfillment lifecycle.
func UpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParsePathUUID(chi.URLParam(r, "orderId"), "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orderID, enums.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

type bulkDeleteOrdersRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1"`
}

// BulkDeleteOrders removes orders and their items.
func BulkDeleteOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var req bulkDeleteOrdersRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.BulkDelete(r.Context(), req.IDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"deleted": len(req.IDs)})
	}
}
