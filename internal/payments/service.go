package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/internal/inventory"
	"github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/esewa"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/khalti"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

// Outcome is the normalized result of a gateway callback. Gateways speak
// different status vocabularies; everything funnels into these four.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeUnknown   Outcome = "unknown"
)

type txRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type esewaVerifier interface {
	DecodeCallback(data string) (*esewa.CallbackPayload, error)
	VerifySignature(fields map[string]string, candidate string) bool
}

type khaltiLookup interface {
	Lookup(ctx context.Context, pidx string) (*khalti.LookupResponse, error)
}

type cartClearer interface {
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// Service reconciles asynchronous gateway callbacks with order,
// inventory and cart state.
type Service interface {
	Reconcile(ctx context.Context, merchantTxnID string, outcome Outcome) (*models.Order, error)
	HandleEsewaCallback(ctx context.Context, data string) (*models.Order, error)
	HandleKhaltiReturn(ctx context.Context, pidx string) (*models.Order, error)
	HandleNotification(ctx context.Context, fields map[string]string) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ServiceParams bundle the reconciler's collaborators.
type ServiceParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Inventory inventory.Service
	Carts     cartClearer
	Esewa     esewaVerifier
	Khalti    khaltiLookup
}

type service struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	inventory inventory.Service
	carts     cartClearer
	esewa     esewaVerifier
	khalti    khaltiLookup
}

// NewService validates the wiring and returns the payment reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	return &service{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		inventory: params.Inventory,
		carts:     params.Carts,
		esewa:     params.Esewa,
		khalti:    params.Khalti,
	}, nil
}

// Reconcile applies a normalized gateway outcome to the order identified
// by its merchant transaction id. Replays are no-ops: a paid order
// ignores further successes, a cancelled order further failures.
// Unknown outcomes never mutate state; they are logged for inspection
// since gateways may redeliver or send unexpected values.
func (s *service) Reconcile(ctx context.Context, merchantTxnID string, outcome Outcome) (*models.Order, error) {
	merchantTxnID = strings.TrimSpace(merchantTxnID)
	if merchantTxnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchant transaction id is required")
	}

	order, err := s.orders.FindByMerchantTxnID(ctx, merchantTxnID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	switch outcome {
	case OutcomeSuccess:
		return s.applySuccess(ctx, order)
	case OutcomeFailed, OutcomeCancelled:
		return s.applyCancellation(ctx, order)
	default:
		s.logg.Warn(s.logg.WithField(ctx, "merchant_txn_id", merchantTxnID),
			"unrecognized payment outcome, leaving order untouched")
		return order, nil
	}
}

func (s *service) applySuccess(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.PaymentStatus == enums.PaymentStatusPaid {
		s.logg.Info(ctx, "payment success replayed for paid order, ignoring")
		return order, nil
	}
	if order.Status == enums.OrderStatusCancelled {
		// Money arrived for an order we already cancelled. Needs a human.
		s.logg.Warn(ctx, "payment success received for cancelled order")
		return order, nil
	}

	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.Line{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	// The checks above ran on a read taken before the transaction, so a
	// concurrent delivery of the same callback may have settled the order
	// in the meantime. The flip to paid is a conditional update inside
	// the transaction; only the delivery that wins it deducts stock and
	// clears the cart.
	var soldOut []inventory.SoldOutRef
	settled := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		won, err := s.orders.WithTx(tx).MarkPaidConfirmed(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if !won {
			return nil
		}
		settled = true
		refs, err := s.inventory.Deduct(ctx, tx, lines)
		if err != nil {
			return err
		}
		soldOut = refs
		if !order.IsBuyNow {
			if err := s.carts.Clear(ctx, tx, order.UserID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !settled {
		s.logg.Info(ctx, "payment success raced a concurrent reconciliation, ignoring")
		return s.reload(ctx, order)
	}
	if len(soldOut) > 0 {
		s.inventory.EvictFromCarts(ctx, soldOut)
	}

	order.PaymentStatus = enums.PaymentStatusPaid
	order.Status = enums.OrderStatusConfirmed
	s.logg.Info(ctx, "payment reconciled, order confirmed")
	return order, nil
}

func (s *service) applyCancellation(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.PaymentStatus == enums.PaymentStatusPaid {
		s.logg.Warn(ctx, "payment failure received for paid order, ignoring")
		return order, nil
	}
	if order.Status == enums.OrderStatusCancelled {
		return order, nil
	}

	won, err := s.orders.CancelIfUnpaid(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	if !won {
		// Payment landed, or another delivery cancelled it, after our read.
		s.logg.Warn(ctx, "payment cancellation raced a concurrent reconciliation, ignoring")
		return s.reload(ctx, order)
	}
	order.Status = enums.OrderStatusCancelled
	s.logg.Info(ctx, "payment failed or cancelled, order cancelled")
	return order, nil
}

// reload returns the order's current row, falling back to the stale
// copy if the read fails. Used on the losing side of a reconciliation
// race, where the caller still wants to see the settled state.
func (s *service) reload(ctx context.Context, order *models.Order) (*models.Order, error) {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		return order, nil
	}
	return fresh, nil
}

// HandleEsewaCallback decodes eSewa's base64 callback blob, whose
// signature DecodeCallback already verifies, checks the charged amount
// against the order and reconciles.
func (s *service) HandleEsewaCallback(ctx context.Context, data string) (*models.Order, error) {
	if s.esewa == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "esewa gateway not configured")
	}
	payload, err := s.esewa.DecodeCallback(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid signature")
	}

	order, err := s.orders.FindByMerchantTxnID(ctx, payload.TransactionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := verifyAmount(order.TotalPrice, payload.TotalAmount); err != nil {
		return nil, err
	}

	return s.Reconcile(ctx, payload.TransactionUUID, outcomeFromEsewa(payload.Status))
}

// HandleKhaltiReturn treats the return redirect as advisory and asks
// Khalti's lookup endpoint for the authoritative payment state.
func (s *service) HandleKhaltiReturn(ctx context.Context, pidx string) (*models.Order, error) {
	if s.khalti == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "khalti gateway not configured")
	}
	lookup, err := s.khalti.Lookup(ctx, pidx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "khalti lookup")
	}

	order, err := s.orders.FindByMerchantTxnID(ctx, lookup.Pidx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	// Khalti amounts are in paisa.
	paisa := order.TotalPrice.Mul(decimal.NewFromInt(100)).IntPart()
	if lookup.Status == khalti.StatusCompleted && lookup.TotalAmount != paisa {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("payment amount mismatch: charged %d paisa, order is %d", lookup.TotalAmount, paisa))
	}

	return s.Reconcile(ctx, lookup.Pidx, outcomeFromKhalti(lookup.Status))
}

// HandleNotification processes the gateway-initiated webhook. The
// payload signature is verified over the canonical sorted-key form;
// a mismatch mutates nothing.
func (s *service) HandleNotification(ctx context.Context, fields map[string]string) (*models.Order, error) {
	if s.esewa == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "esewa gateway not configured")
	}
	signature := fields["signature"]
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}
	signed := make(map[string]string, len(fields))
	for k, v := range fields {
		if k == "signature" {
			continue
		}
		signed[k] = v
	}
	if !s.esewa.VerifySignature(signed, signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature")
	}

	txnID := fields["transaction_uuid"]
	return s.Reconcile(ctx, txnID, outcomeFromEsewa(fields["status"]))
}

// Cancel handles the synchronous cancel landing: the customer backed out
// on the gateway page before a callback fired.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !order.PaymentMethod.IsGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting online payment")
	}
	return s.applyCancellation(s.logg.WithOrderID(ctx, order.ID.String()), order)
}

// verifyAmount compares a gateway-reported amount string against the
// order total. eSewa formats amounts inconsistently ("1,100.0" vs
// "1100.00"), so commas are stripped before parsing.
func verifyAmount(total decimal.Decimal, reported string) error {
	cleaned := strings.ReplaceAll(strings.TrimSpace(reported), ",", "")
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unparseable payment amount %q", reported))
	}
	if !amount.Equal(total) {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("payment amount mismatch: charged %s, order is %s", amount, total))
	}
	return nil
}

func outcomeFromEsewa(status string) Outcome {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case esewa.StatusComplete:
		return OutcomeSuccess
	case "PENDING", "AMBIGUOUS":
		return OutcomeUnknown
	case "CANCELED", "CANCELLED":
		return OutcomeCancelled
	case "FAILURE", "FULL_REFUND", "PARTIAL_REFUND", "NOT_FOUND":
		return OutcomeFailed
	default:
		return OutcomeUnknown
	}
}

func outcomeFromKhalti(status string) Outcome {
	switch status {
	case khalti.StatusCompleted:
		return OutcomeSuccess
	case khalti.StatusUserCanceled:
		return OutcomeCancelled
	case khalti.StatusExpired:
		return OutcomeFailed
	case khalti.StatusPending, khalti.StatusRefunded:
		return OutcomeUnknown
	default:
		return OutcomeUnknown
	}
}
