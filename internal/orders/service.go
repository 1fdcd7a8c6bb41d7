package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/internal/address"
	"github.com/bijaykarki/meromart-backend/internal/inventory"
	"github.com/bijaykarki/meromart-backend/internal/pricing"
	"github.com/bijaykarki/meromart-backend/internal/shipping"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/esewa"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/khalti"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type txRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type districtLookup interface {
	Exists(ctx context.Context, name string) (bool, error)
}

type catalogLoader interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
}

type vendorLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Vendor, error)
}

type cartAccess interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type addressResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input address.Input) (*models.Address, error)
}

type promoApplier interface {
	ApplyPromo(ctx context.Context, subtotal decimal.Decimal, code string) (decimal.Decimal, error)
}

type esewaGateway interface {
	BuildPaymentForm(req esewa.PaymentRequest) (*esewa.PaymentForm, error)
}

type khaltiGateway interface {
	Initiate(ctx context.Context, req khalti.InitiateRequest) (*khalti.InitiateResponse, error)
}

// Service orchestrates order creation and lifecycle transitions.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	Track(ctx context.Context, orderID uuid.UUID, email string) (enums.OrderStatus, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error)
	CancelPendingBefore(ctx context.Context, cutoff time.Time) (int, error)
	BulkDelete(ctx context.Context, ids []uuid.UUID) error
}

// ServiceParams bundle the orchestrator's collaborators. Every field is
// required except the gateways, which may be absent in deployments that
// only take cash on delivery.
type ServiceParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repo        Repository
	Districts   districtLookup
	Catalog     catalogLoader
	Vendors     vendorLoader
	Carts       cartAccess
	Addresses   addressResolver
	Inventory   inventory.Service
	Pricing     promoApplier
	Esewa       esewaGateway
	Khalti      khaltiGateway
	FrontendURL string
}

type service struct {
	logg        *logger.Logger
	db          txRunner
	repo        Repository
	districts   districtLookup
	catalog     catalogLoader
	vendors     vendorLoader
	carts       cartAccess
	addresses   addressResolver
	inventory   inventory.Service
	pricing     promoApplier
	esewa       esewaGateway
	khalti      khaltiGateway
	frontendURL string
}

// NewService validates the wiring and returns the order orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.Districts == nil {
		return nil, fmt.Errorf("district lookup required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog loader required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor loader required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart access required")
	}
	if params.Addresses == nil {
		return nil, fmt.Errorf("address resolver required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Pricing == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	return &service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repo,
		districts:   params.Districts,
		catalog:     params.Catalog,
		vendors:     params.Vendors,
		carts:       params.Carts,
		addresses:   params.Addresses,
		inventory:   params.Inventory,
		pricing:     params.Pricing,
		esewa:       params.Esewa,
		khalti:      params.Khalti,
		frontendURL: strings.TrimRight(params.FrontendURL, "/"),
	}, nil
}

// draftLine pairs an order line snapshot with its inventory reference.
type draftLine struct {
	item models.OrderItem
	inv  inventory.Line
}

// Create runs the full order creation workflow: resolve the buyer and
// destination, assemble line items from the cart or a buy-now request,
// pre-check stock, resolve the shipping address, price the order, then
// branch on payment method. COD orders confirm and deduct stock in one
// transaction; gateway orders persist as pending and hand the customer a
// redirect. A failed gateway initiation leaves the pending order in
// place so payment can be retried against the same order id.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}

	destination := strings.TrimSpace(input.ShippingAddress.District)
	deliverable, err := s.districts.Exists(ctx, destination)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check district")
	}
	if !deliverable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("district %q is not deliverable", destination))
	}

	lines, err := s.resolveLines(ctx, input)
	if err != nil {
		return nil, err
	}

	invLines := make([]inventory.Line, 0, len(lines))
	for _, line := range lines {
		invLines = append(invLines, line.inv)
	}
	if err := s.inventory.CheckAvailability(ctx, invLines); err != nil {
		return nil, err
	}

	addr, err := s.addresses.Resolve(ctx, nil, input.UserID, input.ShippingAddress)
	if err != nil {
		return nil, err
	}

	quote, err := s.quoteShipping(ctx, addr.District, lines)
	if err != nil {
		return nil, err
	}

	subtotal := orderSubtotal(lines)
	promoDiscount, err := s.pricing.ApplyPromo(ctx, subtotal, input.PromoCode)
	if err != nil {
		return nil, err
	}
	total := pricing.OrderTotal(subtotal, promoDiscount, quote.Fee, input.ServiceCharge)

	order := &models.Order{
		UserID:            input.UserID,
		TotalPrice:        total,
		ShippingFee:       quote.Fee,
		ServiceCharge:     input.ServiceCharge.Round(2),
		PaymentMethod:     input.PaymentMethod,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		Status:            enums.OrderStatusPending,
		Phone:             strings.TrimSpace(input.Phone),
		IsBuyNow:          input.BuyNow != nil,
		ShippingAddressID: addr.ID,
	}
	if code := strings.TrimSpace(input.PromoCode); code != "" {
		order.PromoCode = &code
	}
	for _, line := range lines {
		order.Items = append(order.Items, line.item)
	}

	result := &CreateOrderResult{
		Order:         order,
		VendorIDs:     quote.VendorIDs,
		CustomerEmail: user.Email,
	}

	if input.PaymentMethod == enums.PaymentMethodCOD {
		order.Status = enums.OrderStatusConfirmed
		if err := s.persistWithDeduction(ctx, order, invLines); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
	}

	redirect, err := s.initiatePayment(ctx, order, user)
	if err != nil {
		// The pending order survives a failed initiation on purpose.
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "payment initiation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "initiate payment").
			WithDetails(map[string]any{"order_id": order.ID})
	}
	result.Payment = redirect
	return result, nil
}

// persistWithDeduction writes the order, re-validates and deducts stock,
// and clears the cart for non-buy-now orders, all in one transaction.
// Cart eviction for sold-out items commits separately afterwards.
func (s *service) persistWithDeduction(ctx context.Context, order *models.Order, invLines []inventory.Line) error {
	var soldOut []inventory.SoldOutRef
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist order")
		}
		refs, err := s.inventory.Deduct(ctx, tx, invLines)
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
		return err
	}
	if len(soldOut) > 0 {
		s.inventory.EvictFromCarts(ctx, soldOut)
	}
	return nil
}

// resolveLines assembles order lines either from a fresh catalog lookup
// (buy now) or from the user's cart snapshots.
func (s *service) resolveLines(ctx context.Context, input CreateOrderInput) ([]draftLine, error) {
	if input.BuyNow != nil {
		return s.buyNowLine(ctx, *input.BuyNow)
	}

	cart, err := s.carts.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	lines := make([]draftLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, draftLine{
			item: models.OrderItem{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				VendorID:  item.VendorID,
				Name:      item.Name,
				Price:     item.Price,
				Quantity:  item.Quantity,
			},
			inv: inventory.Line{
				ProductID: item.ProductID,
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			},
		})
	}
	return lines, nil
}

// buyNowLine looks the product (and variant) up fresh so a buy-now order
// always prices against the current catalog, never a stale snapshot.
func (s *service) buyNowLine(ctx context.Context, req BuyNowInput) ([]draftLine, error) {
	product, err := s.catalog.FindProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	line := draftLine{
		item: models.OrderItem{
			ProductID: product.ID,
			VendorID:  product.VendorID,
			Name:      product.Name,
			Quantity:  req.Quantity,
		},
		inv: inventory.Line{
			ProductID: product.ID,
			VariantID: req.VariantID,
			Quantity:  req.Quantity,
		},
	}

	if req.VariantID != nil {
		variant, err := s.catalog.FindVariant(ctx, *req.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant.ProductID != product.ID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant does not belong to product")
		}
		line.item.VariantID = &variant.ID
		line.item.Price = variant.Price
		return []draftLine{line}, nil
	}

	if product.HasVariants() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("product %q requires a variant selection", product.Name))
	}
	line.item.Price = pricing.LineSubtotal(pricing.Line{
		UnitPrice:    product.Price,
		Discount:     product.Discount,
		DiscountType: product.DiscountType,
		Quantity:     1,
	})
	return []draftLine{line}, nil
}

// quoteShipping loads each vendor touched by the order and prices the
// fee per distinct vendor district.
func (s *service) quoteShipping(ctx context.Context, destination string, lines []draftLine) (*shipping.Quote, error) {
	seen := make(map[uuid.UUID]bool)
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if !seen[line.item.VendorID] {
			seen[line.item.VendorID] = true
			ids = append(ids, line.item.VendorID)
		}
	}

	vendors, err := s.vendors.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
	}
	districtByVendor := make(map[uuid.UUID]string, len(vendors))
	for _, vendor := range vendors {
		districtByVendor[vendor.ID] = vendor.District
	}

	locations := make([]shipping.VendorLocation, 0, len(ids))
	for _, id := range ids {
		locations = append(locations, shipping.VendorLocation{
			VendorID: id,
			District: districtByVendor[id],
		})
	}
	return shipping.Calculate(destination, locations)
}

func orderSubtotal(lines []draftLine) decimal.Decimal {
	priced := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		// Line prices are already effective unit prices; no further
		// discounting happens at order time.
		priced = append(priced, pricing.Line{
			UnitPrice: line.item.Price,
			Quantity:  line.item.Quantity,
		})
	}
	return pricing.OrderSubtotal(priced)
}

// initiatePayment branches on gateway. The generic "online" method maps
// to eSewa. eSewa gets a server-generated transaction uuid recorded
// before the signed form is built; Khalti's pidx comes back from the
// initiate call and is recorded after.
func (s *service) initiatePayment(ctx context.Context, order *models.Order, user *models.User) (*PaymentRedirect, error) {
	switch order.PaymentMethod {
	case enums.PaymentMethodOnline, enums.PaymentMethodEsewa:
		if s.esewa == nil {
			return nil, fmt.Errorf("esewa gateway not configured")
		}
		txnID := uuid.NewString()
		if err := s.recordMerchantTxn(ctx, order, txnID); err != nil {
			return nil, err
		}
		form, err := s.esewa.BuildPaymentForm(esewa.PaymentRequest{
			TransactionUUID: txnID,
			TotalAmount:     order.TotalPrice,
			SuccessURL:      s.frontendURL + "/payment/success",
			FailureURL:      s.frontendURL + "/payment/failure",
		})
		if err != nil {
			return nil, err
		}
		return &PaymentRedirect{
			Gateway:    enums.PaymentMethodEsewa,
			FormAction: form.Action,
			FormFields: form.Fields,
		}, nil

	case enums.PaymentMethodKhalti:
		if s.khalti == nil {
			return nil, fmt.Errorf("khalti gateway not configured")
		}
		resp, err := s.khalti.Initiate(ctx, khalti.InitiateRequest{
			Amount:            order.TotalPrice,
			PurchaseOrderID:   order.ID.String(),
			PurchaseOrderName: fmt.Sprintf("MeroMart order %s", order.ID),
			ReturnURL:         s.frontendURL + "/payment/success",
			WebsiteURL:        s.frontendURL,
			CustomerName:      user.FullName,
			CustomerEmail:     user.Email,
			CustomerPhone:     order.Phone,
		})
		if err != nil {
			return nil, err
		}
		if err := s.recordMerchantTxn(ctx, order, resp.Pidx); err != nil {
			return nil, err
		}
		return &PaymentRedirect{
			Gateway:     enums.PaymentMethodKhalti,
			RedirectURL: resp.PaymentURL,
		}, nil

	default:
		return nil, fmt.Errorf("payment method %q has no gateway", order.PaymentMethod)
	}
}

func (s *service) recordMerchantTxn(ctx context.Context, order *models.Order, txnID string) error {
	if err := s.repo.UpdateFields(ctx, order.ID, map[string]any{"merchant_txn_id": txnID}); err != nil {
		return fmt.Errorf("record merchant txn id: %w", err)
	}
	order.MerchantTxnID = &txnID
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, nil
}

// Track is the public tracking endpoint's backend: order id plus the
// buyer's email, answering with the status only. A wrong email reads the
// same as a missing order so the endpoint cannot be used to enumerate ids.
func (s *service) Track(ctx context.Context, orderID uuid.UUID, email string) (enums.OrderStatus, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	user, err := s.repo.FindUser(ctx, order.UserID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if !strings.EqualFold(strings.TrimSpace(email), user.Email) {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order.Status, nil
}

// UpdateStatus applies an administrative transition, validated against
// the order status graph. Delivering a COD order also marks it paid.
func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", next))
	}
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(next) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot transition order from %s to %s", order.Status, next))
	}

	updates := map[string]any{"status": next}
	if next == enums.OrderStatusDelivered && order.PaymentMethod == enums.PaymentMethodCOD {
		updates["payment_status"] = enums.PaymentStatusPaid
	}
	// The transition was validated against a read that may be stale by
	// now, so the write is guarded on the status it validated from. A
	// concurrent transition that got there first makes this one lose.
	moved, err := s.repo.UpdateFieldsFromStatus(ctx, orderID, order.Status, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order left status %s before the transition to %s applied", order.Status, next))
	}

	order.Status = next
	if status, ok := updates["payment_status"]; ok {
		order.PaymentStatus = status.(enums.PaymentStatus)
	}
	return order, nil
}

// CancelPendingBefore cancels gateway orders that never completed
// payment, going through UpdateStatus so cleanup follows the same
// transition rules as any other status change. Returns how many orders
// were cancelled.
func (s *service) CancelPendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.FindPendingGatewayOrdersBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	var errs []error
	cancelled := 0
	for _, order := range stale {
		if _, err := s.UpdateStatus(ctx, order.ID, enums.OrderStatusCancelled); err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}
	return cancelled, multierr.Combine(errs...)
}

func (s *service) BulkDelete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order id is required")
	}
	if err := s.repo.DeleteBulk(ctx, ids); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "bulk delete orders")
	}
	return nil
}

func validateCreateInput(input CreateOrderInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid payment method %q", input.PaymentMethod))
	}
	if strings.TrimSpace(input.Phone) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "phone is required")
	}
	if input.ServiceCharge.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "service charge must not be negative")
	}
	if input.BuyNow != nil && input.BuyNow.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
