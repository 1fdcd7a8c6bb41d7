package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bijaykarki/meromart-backend/api/middleware"
	internalorders "github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type stubOrdersService struct {
	createInput *internalorders.CreateOrderInput
	createErr   error
	trackEmail  string
	trackStatus enums.OrderStatus
	trackErr    error
	updated     *enums.OrderStatus
}

func (s *stubOrdersService) Create(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
	s.createInput = &input
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &internalorders.CreateOrderResult{Order: &models.Order{ID: uuid.New(), UserID: input.UserID}}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrdersService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersService) Track(ctx context.Context, orderID uuid.UUID, email string) (enums.OrderStatus, error) {
	s.trackEmail = email
	if s.trackErr != nil {
		return "", s.trackErr
	}
	return s.trackStatus, nil
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	s.updated = &next
	return &models.Order{ID: orderID, Status: next}, nil
}

func (s *stubOrdersService) CancelPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (s *stubOrdersService) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
}

func TestCreateOrder(t *testing.T) {
	logg := testLogger()
	userID := uuid.New()

	body := `{
		"payment_method": "cash_on_delivery",
		"phone": "9841000000",
		"shipping_address": {
			"province": "Bagmati",
			"district": "Kathmandu",
			"city": "Kathmandu",
			"street": "New Road"
		}
	}`

	t.Run("missing user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		rec := httptest.NewRecorder()
		CreateOrder(&stubOrdersService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without identity, got %d", rec.Code)
		}
	})

	t.Run("invalid payment method", func(t *testing.T) {
		payload := strings.Replace(body, `"cash_on_delivery"`, `"bitcoin"`, 1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(payload))
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		CreateOrder(&stubOrdersService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for unknown method, got %d", rec.Code)
		}
	})

	t.Run("missing phone", func(t *testing.T) {
		payload := strings.Replace(body, `"phone": "9841000000",`, "", 1)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(payload))
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		CreateOrder(&stubOrdersService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing phone, got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubOrdersService{}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		CreateOrder(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.createInput == nil {
			t.Fatal("expected service to be invoked")
		}
		if stub.createInput.UserID != userID {
			t.Fatalf("expected user id from context, got %s", stub.createInput.UserID)
		}
		if stub.createInput.PaymentMethod != enums.PaymentMethodCOD {
			t.Fatalf("expected cod, got %s", stub.createInput.PaymentMethod)
		}
		if stub.createInput.ShippingAddress.District != "Kathmandu" {
			t.Fatalf("unexpected district %q", stub.createInput.ShippingAddress.District)
		}
	})

	t.Run("service conflict surfaces as 409", func(t *testing.T) {
		stub := &stubOrdersService{createErr: pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock")}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		CreateOrder(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})
}

func TestTrackOrder(t *testing.T) {
	logg := testLogger()
	orderID := uuid.New()

	makeRequest := func(target string, stub *stubOrdersService) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("orderId", orderID.String())
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		TrackOrder(stub, logg).ServeHTTP(rec, req)
		return rec
	}

	t.Run("missing email", func(t *testing.T) {
		rec := makeRequest("/api/v1/orders/"+orderID.String()+"/track", &stubOrdersService{})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 without email, got %d", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		stub := &stubOrdersService{trackStatus: enums.OrderStatusConfirmed}
		rec := makeRequest("/api/v1/orders/"+orderID.String()+"/track?email=sita%40example.com", stub)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.trackEmail != "sita@example.com" {
			t.Fatalf("unexpected email %q", stub.trackEmail)
		}
		var envelope struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if envelope.Data.Status != "confirmed" {
			t.Fatalf("expected confirmed, got %q", envelope.Data.Status)
		}
	})

	t.Run("mismatch stays not found", func(t *testing.T) {
		stub := &stubOrdersService{trackErr: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
		rec := makeRequest("/api/v1/orders/"+orderID.String()+"/track?email=wrong%40example.com", stub)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestUpdateOrderStatus(t *testing.T) {
	logg := testLogger()
	orderID := uuid.New()

	t.Run("invalid order id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/nope/status", strings.NewReader(`{"status":"confirmed"}`))
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("orderId", "nope")
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		UpdateOrderStatus(&stubOrdersService{}, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad id, got %d", rec.Code)
		}
	})

	t.Run("success normalizes casing", func(t *testing.T) {
		stub := &stubOrdersService{}
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"Delivered"}`))
		routeCtx := chi.NewRouteContext()
		routeCtx.URLParams.Add("orderId", orderID.String())
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
		rec := httptest.NewRecorder()
		UpdateOrderStatus(stub, logg).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if stub.updated == nil || *stub.updated != enums.OrderStatusDelivered {
			t.Fatalf("expected delivered passed to service, got %v", stub.updated)
		}
	})
}
