package esewa

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/pkg/config"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

const (
	formPath   = "/api/epay/main/v2/form"
	statusPath = "/api/epay/transaction/status/"

	// StatusComplete is the terminal success status eSewa reports.
	StatusComplete = "COMPLETE"
)

var (
	errSecretKeyRequired = errors.New("esewa secret key is required")
	errBaseURLRequired   = errors.New("esewa base url is required")
	errLoggerRequired    = errors.New("esewa logger is required")
)

// Client talks to eSewa's ePay v2 endpoints. Payment initiation is a
// signed form the frontend POSTs to eSewa; the server side signs the
// form, verifies callbacks, and can look up transaction status.
type Client struct {
	httpClient  *http.Client
	productCode string
	secretKey   string
	baseURL     string
	logger      *logger.Logger
}

// NewClient initializes the eSewa wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.EsewaConfig, logg *logger.Logger) (*Client, error) {
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
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		productCode: strings.TrimSpace(cfg.ProductCode),
		secretKey:   secret,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "esewa client initialized")
	return c, nil
}

// ProductCode returns the configured merchant product code.
func (c *Client) ProductCode() string {
	if c == nil {
		return ""
	}
	return c.productCode
}

// PaymentForm is the signed form the frontend submits to eSewa.
type PaymentForm struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// PaymentRequest describes one payment to initiate.
type PaymentRequest struct {
	TransactionUUID string
	TotalAmount     decimal.Decimal
	SuccessURL      string
	FailureURL      string
}

// BuildPaymentForm returns the form fields, including the HMAC signature
// eSewa requires over total_amount, transaction_uuid and product_code.
func (c *Client) BuildPaymentForm(req PaymentRequest) (*PaymentForm, error) {
	if strings.TrimSpace(req.TransactionUUID) == "" {
		return nil, errors.New("transaction uuid is required")
	}
	if req.TotalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("total amount must be positive, got %s", req.TotalAmount)
	}

	total := req.TotalAmount.StringFixed(2)
	signed := "total_amount,transaction_uuid,product_code"
	payload := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		total, req.TransactionUUID, c.productCode)

	return &PaymentForm{
		Action: c.baseURL + formPath,
		Fields: map[string]string{
			"amount":                  total,
			"tax_amount":              "0",
			"product_service_charge":  "0",
			"product_delivery_charge": "0",
			"total_amount":            total,
			"transaction_uuid":        req.TransactionUUID,
			"product_code":            c.productCode,
			"success_url":             req.SuccessURL,
			"failure_url":             req.FailureURL,
			"signed_field_names":      signed,
			"signature":               c.sign(payload),
		},
	}, nil
}

// CallbackPayload is the base64-encoded JSON eSewa appends to the
// success redirect.
type CallbackPayload struct {
	TransactionCode  string `json:"transaction_code"`
	Status           string `json:"status"`
	TotalAmount      string `json:"total_amount"`
	TransactionUUID  string `json:"transaction_uuid"`
	ProductCode      string `json:"product_code"`
	SignedFieldNames string `json:"signed_field_names"`
	Signature        string `json:"signature"`
}

// DecodeCallback decodes and signature-checks an inbound callback. The
// signature is recomputed over the payload's signed fields in their
// declared order and compared in constant time.
func (c *Client) DecodeCallback(data string) (*CallbackPayload, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		// eSewa url-encodes the blob on some redirects
		raw, err = base64.URLEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return nil, fmt.Errorf("decoding callback payload: %w", err)
		}
	}

	var payload CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("unmarshalling callback payload: %w", err)
	}

	if err := c.verifyPayload(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// VerifySignature recomputes an HMAC-SHA256 signature from the canonical
// sorted-key concatenation of fields and compares it to candidate.
func (c *Client) VerifySignature(fields map[string]string, candidate string) bool {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	expected := c.sign(strings.Join(pairs, ","))
	return hmac.Equal([]byte(expected), []byte(candidate))
}

func (c *Client) verifyPayload(p *CallbackPayload) error {
	fieldValues := map[string]string{
		"transaction_code":   p.TransactionCode,
		"status":             p.Status,
		"total_amount":       p.TotalAmount,
		"transaction_uuid":   p.TransactionUUID,
		"product_code":       p.ProductCode,
		"signed_field_names": p.SignedFieldNames,
	}

	names := strings.Split(p.SignedFieldNames, ",")
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		v, ok := fieldValues[name]
		if !ok {
			return fmt.Errorf("callback signed unknown field %q", name)
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", name, v))
	}

	expected := c.sign(strings.Join(pairs, ","))
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return errors.New("esewa callback signature mismatch")
	}
	return nil
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// StatusResponse is eSewa's transaction status lookup result.
type StatusResponse struct {
	ProductCode     string `json:"product_code"`
	TransactionUUID string `json:"transaction_uuid"`
	TotalAmount     any    `json:"total_amount"`
	Status          string `json:"status"`
	RefID           string `json:"ref_id"`
}

// LookupStatus queries eSewa for the authoritative state of a transaction.
func (c *Client) LookupStatus(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*StatusResponse, error) {
	q := url.Values{}
	q.Set("product_code", c.productCode)
	q.Set("total_amount", totalAmount.StringFixed(2))
	q.Set("transaction_uuid", transactionUUID)

	endpoint := c.baseURL + statusPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esewa status lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esewa status lookup returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("unmarshalling status response: %w", err)
	}
	return &status, nil
}
