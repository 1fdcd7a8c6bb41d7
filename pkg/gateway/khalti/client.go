package khalti

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

const (
	initiatePath = "/epayment/initiate/"
	lookupPath   = "/epayment/lookup/"
)

// Lookup statuses Khalti reports. Anything else is treated as unknown
// by the caller.
const (
	StatusCompleted    = "Completed"
	StatusPending      = "Pending"
	StatusExpired      = "Expired"
	StatusUserCanceled = "User canceled"
	StatusRefunded     = "Refunded"
)

var (
	errSecretKeyRequired = errors.New("khalti secret key is required")
	errBaseURLRequired   = errors.New("khalti base url is required")
	errLoggerRequired    = errors.New("khalti logger is required")
)

// Client talks to Khalti's ePayment (KPG-2) API.
type Client struct {
	httpClient *http.Client
	secretKey  string
	baseURL    string
	logger     *logger.Logger
}

// NewClient initializes the Khalti wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.KhaltiConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		secretKey:  secret,
		baseURL:    baseURL,
		logger:     logg,
	}

	logg.Info(ctx, "khalti client initialized")
	return c, nil
}

// InitiateRequest starts one payment. Amount is in rupees; Khalti is
// paid in paisa so the client converts.
type InitiateRequest struct {
	Amount            decimal.Decimal
	PurchaseOrderID   string
	PurchaseOrderName string
	ReturnURL         string
	WebsiteURL        string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
}

// InitiateResponse carries the redirect target and Khalti's payment id.
type InitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

// Initiate registers a payment with Khalti and returns the hosted
// payment page URL the customer is redirected to.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if strings.TrimSpace(req.PurchaseOrderID) == "" {
		return nil, errors.New("purchase order id is required")
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive, got %s", req.Amount)
	}

	body := map[string]any{
		"return_url":          req.ReturnURL,
		"website_url":         req.WebsiteURL,
		"amount":              req.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		"purchase_order_id":   req.PurchaseOrderID,
		"purchase_order_name": req.PurchaseOrderName,
	}
	if req.CustomerName != "" || req.CustomerEmail != "" || req.CustomerPhone != "" {
		body["customer_info"] = map[string]string{
			"name":  req.CustomerName,
			"email": req.CustomerEmail,
			"phone": req.CustomerPhone,
		}
	}

	var resp InitiateResponse
	if err := c.post(ctx, initiatePath, body, &resp); err != nil {
		return nil, err
	}
	if resp.Pidx == "" || resp.PaymentURL == "" {
		return nil, errors.New("khalti initiate returned empty pidx or payment_url")
	}
	return &resp, nil
}

// LookupResponse is the authoritative state of a Khalti payment.
type LookupResponse struct {
	Pidx        string          `json:"pidx"`
	TotalAmount int64           `json:"total_amount"`
	Status      string          `json:"status"`
	Refunded    bool            `json:"refunded"`
	Fee         decimal.Decimal `json:"fee"`
}

// Lookup fetches the current status of a payment by pidx. Callbacks are
// advisory; the lookup result is the source of truth.
func (c *Client) Lookup(ctx context.Context, pidx string) (*LookupResponse, error) {
	if strings.TrimSpace(pidx) == "" {
		return nil, errors.New("pidx is required")
	}

	var resp LookupResponse
	if err := c.post(ctx, lookupPath, map[string]any{"pidx": pidx}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling khalti request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("building khalti request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("khalti %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading khalti response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("khalti %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshalling khalti response: %w", err)
	}
	return nil
}
