package khalti

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "khalti-test"})
	c, err := NewClient(context.Background(), config.KhaltiConfig{
		SecretKey: "test-secret",
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
	}, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewClientRequiresSecret(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "khalti-test"})
	if _, err := NewClient(context.Background(), config.KhaltiConfig{BaseURL: "https://example.com"}, logg); err == nil {
		t.Fatal("expected error for missing secret key")
	}
}

func TestInitiate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/epayment/initiate/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		_ = json.NewEncoder(w).Encode(InitiateResponse{
			Pidx:       "pidx123",
			PaymentURL: "https://test-pay.khalti.com/?pidx=pidx123",
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Initiate(context.Background(), InitiateRequest{
		Amount:            decimal.NewFromInt(1100),
		PurchaseOrderID:   "mm-order-1",
		PurchaseOrderName: "MeroMart order",
		ReturnURL:         "https://meromart.example/payment/return",
		WebsiteURL:        "https://meromart.example",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if resp.Pidx != "pidx123" {
		t.Fatalf("unexpected pidx %q", resp.Pidx)
	}
	if gotAuth != "key test-secret" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	// 1100 rupees becomes 110000 paisa
	if amt, ok := gotBody["amount"].(float64); !ok || amt != 110000 {
		t.Fatalf("expected amount 110000 paisa, got %v", gotBody["amount"])
	}
}

func TestInitiateRejectsBadInput(t *testing.T) {
	c := testClient(t, "https://example.com")

	if _, err := c.Initiate(context.Background(), InitiateRequest{Amount: decimal.NewFromInt(10)}); err == nil {
		t.Fatal("expected error for missing purchase order id")
	}
	if _, err := c.Initiate(context.Background(), InitiateRequest{PurchaseOrderID: "x"}); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
}

func TestInitiateSurfacesGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"Amount should be greater than Rs. 10"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Initiate(context.Background(), InitiateRequest{
		Amount:          decimal.NewFromInt(5),
		PurchaseOrderID: "mm-order-1",
	})
	if err == nil {
		t.Fatal("expected error from gateway")
	}
}

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/epayment/lookup/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(LookupResponse{
			Pidx:        "pidx123",
			TotalAmount: 110000,
			Status:      StatusCompleted,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	resp, err := c.Lookup(context.Background(), "pidx123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if resp.Status != StatusCompleted {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestLookupRequiresPidx(t *testing.T) {
	c := testClient(t, "https://example.com")
	if _, err := c.Lookup(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty pidx")
	}
}
