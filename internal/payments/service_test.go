package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/internal/cart"
	"github.com/bijaykarki/meromart-backend/internal/inventory"
	"github.com/bijaykarki/meromart-backend/internal/orders"
	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/esewa"
	"github.com/bijaykarki/meromart-backend/pkg/gateway/khalti"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type stubEsewa struct {
	payload *esewa.CallbackPayload
	decErr  error
	valid   bool
}

func (s *stubEsewa) DecodeCallback(data string) (*esewa.CallbackPayload, error) {
	if s.decErr != nil {
		return nil, s.decErr
	}
	return s.payload, nil
}

func (s *stubEsewa) VerifySignature(fields map[string]string, candidate string) bool {
	return s.valid
}

type stubKhalti struct {
	resp *khalti.LookupResponse
	err  error
}

func (s *stubKhalti) Lookup(ctx context.Context, pidx string) (*khalti.LookupResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type fixture struct {
	db     *gorm.DB
	svc    Service
	esewa  *stubEsewa
	khalti *stubKhalti
	userID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.Variant{},
		&models.Cart{}, &models.CartItem{},
		&models.Order{}, &models.OrderItem{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	invSvc, err := inventory.NewService(inventory.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(db), products.NewRepository(db))
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}

	esewaStub := &stubEsewa{valid: true}
	khaltiStub := &stubKhalti{}
	svc, err := NewService(ServiceParams{
		Logger:    logg,
		DB:        db,
		Orders:    orders.NewRepository(db),
		Inventory: invSvc,
		Carts:     cartSvc,
		Esewa:     esewaStub,
		Khalti:    khaltiStub,
	})
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}

	return &fixture{db: db, svc: svc, esewa: esewaStub, khalti: khaltiStub, userID: uuid.New()}
}

// seedOrder creates a pending gateway order for one product line, plus a
// matching staged cart item for the same user.
func (f *fixture) seedOrder(t *testing.T, method enums.PaymentMethod, total int64, stock, qty int, buyNow bool) (*models.Order, *models.Product) {
	t.Helper()
	product := &models.Product{
		VendorID: uuid.New(),
		Name:     "Pressure Cooker",
		Price:    decimal.NewFromInt(total),
		Stock:    stock,
		Status:   enums.ProductStatusForStock(stock),
	}
	if err := f.db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	txnID := uuid.NewString()
	order := &models.Order{
		UserID:            f.userID,
		TotalPrice:        decimal.NewFromInt(total),
		PaymentMethod:     method,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		Status:            enums.OrderStatusPending,
		MerchantTxnID:     &txnID,
		Phone:             "9800000000",
		IsBuyNow:          buyNow,
		ShippingAddressID: uuid.New(),
		Items: []models.OrderItem{{
			ProductID: product.ID,
			VendorID:  product.VendorID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  qty,
		}},
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	userCart := &models.Cart{UserID: f.userID, Total: product.Price}
	if err := f.db.Create(userCart).Error; err != nil {
		t.Fatalf("seed cart: %v", err)
	}
	item := &models.CartItem{
		CartID: userCart.ID, ProductID: product.ID, VendorID: product.VendorID,
		Name: product.Name, Price: product.Price, Quantity: 1,
	}
	if err := f.db.Create(item).Error; err != nil {
		t.Fatalf("seed cart item: %v", err)
	}
	return order, product
}

func (f *fixture) reloadOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	if err := f.db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	return &order
}

func (f *fixture) productStock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := f.db.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return product.Stock
}

func (f *fixture) cartItemCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := f.db.Model(&models.CartItem{}).Count(&count).Error; err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	return count
}

func assertCode(t *testing.T, err error, want pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %s, got nil", want)
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	if typed.Code() != want {
		t.Fatalf("expected code %s, got %s (%v)", want, typed.Code(), err)
	}
}

func TestReconcileSuccess(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	reconciled, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.PaymentStatus != enums.PaymentStatusPaid || reconciled.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected paid/confirmed, got %s/%s", reconciled.PaymentStatus, reconciled.Status)
	}
	if got := f.productStock(t, product.ID); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
	if got := f.cartItemCount(t); got != 0 {
		t.Fatalf("expected cart cleared, %d items remain", got)
	}
}

func TestReconcileSuccessIsIdempotent(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	if _, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}

	// the user stages something new before the gateway redelivers
	userCart := models.Cart{}
	if err := f.db.First(&userCart, "user_id = ?", f.userID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	restaged := &models.CartItem{
		CartID: userCart.ID, ProductID: product.ID, VendorID: product.VendorID,
		Name: product.Name, Price: product.Price, Quantity: 1,
	}
	if err := f.db.Create(restaged).Error; err != nil {
		t.Fatalf("restage item: %v", err)
	}

	replayed, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess)
	if err != nil {
		t.Fatalf("replay reconcile: %v", err)
	}
	if replayed.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", replayed.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 8 {
		t.Fatalf("replay deducted stock again: %d", got)
	}
	if got := f.cartItemCount(t); got != 1 {
		t.Fatalf("replay cleared the cart again: %d items", got)
	}
}

// staleOrdersRepo serves a fixed order snapshot from FindByMerchantTxnID
// while delegating everything else to the real repository. It stands in
// for a redelivered callback whose order read happened before an earlier
// delivery committed.
type staleOrdersRepo struct {
	orders.Repository
	snapshot models.Order
}

func (r *staleOrdersRepo) FindByMerchantTxnID(ctx context.Context, txnID string) (*models.Order, error) {
	stale := r.snapshot
	return &stale, nil
}

// staleService rebuilds the reconciler around a repository that keeps
// returning the given pre-settlement snapshot.
func (f *fixture) staleService(t *testing.T, snapshot *models.Order) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "payments-test"})
	invSvc, err := inventory.NewService(inventory.NewRepository(f.db), logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(f.db), products.NewRepository(f.db))
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Logger:    logg,
		DB:        f.db,
		Orders:    &staleOrdersRepo{Repository: orders.NewRepository(f.db), snapshot: *snapshot},
		Inventory: invSvc,
		Carts:     cartSvc,
		Esewa:     f.esewa,
		Khalti:    f.khalti,
	})
	if err != nil {
		t.Fatalf("payments service: %v", err)
	}
	return svc
}

func TestReconcileSuccessRedeliveredWithStaleRead(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1500, 10, 3, false)

	// Snapshot the unpaid order the way a second delivery of the same
	// callback would have read it, then let the first delivery settle.
	snapshot, err := orders.NewRepository(f.db).FindByMerchantTxnID(context.Background(), *order.MerchantTxnID)
	if err != nil {
		t.Fatalf("snapshot order: %v", err)
	}
	if _, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if got := f.productStock(t, product.ID); got != 7 {
		t.Fatalf("expected stock 7 after first reconcile, got %d", got)
	}

	// the user stages something new before the redelivery lands
	userCart := models.Cart{}
	if err := f.db.First(&userCart, "user_id = ?", f.userID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	restaged := &models.CartItem{
		CartID: userCart.ID, ProductID: product.ID, VendorID: product.VendorID,
		Name: product.Name, Price: product.Price, Quantity: 1,
	}
	if err := f.db.Create(restaged).Error; err != nil {
		t.Fatalf("restage item: %v", err)
	}

	replayed, err := f.staleService(t, snapshot).Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess)
	if err != nil {
		t.Fatalf("redelivered reconcile: %v", err)
	}
	if replayed.PaymentStatus != enums.PaymentStatusPaid || replayed.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected the settled order back, got %s/%s", replayed.Status, replayed.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 7 {
		t.Fatalf("redelivery deducted stock again: %d", got)
	}
	if got := f.cartItemCount(t); got != 1 {
		t.Fatalf("redelivery cleared the cart again: %d items", got)
	}
}

func TestReconcileFailureAfterSuccessWithStaleRead(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1500, 10, 3, false)

	snapshot, err := orders.NewRepository(f.db).FindByMerchantTxnID(context.Background(), *order.MerchantTxnID)
	if err != nil {
		t.Fatalf("snapshot order: %v", err)
	}
	if _, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess); err != nil {
		t.Fatalf("success reconcile: %v", err)
	}

	// a failure callback that read the order before the success landed
	// must not cancel a paid order
	result, err := f.staleService(t, snapshot).Reconcile(context.Background(), *order.MerchantTxnID, OutcomeFailed)
	if err != nil {
		t.Fatalf("stale failure reconcile: %v", err)
	}
	if result.Status != enums.OrderStatusConfirmed || result.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("stale failure unsettled the order: %s/%s", result.Status, result.PaymentStatus)
	}
	reloaded := f.reloadOrder(t, order.ID)
	if reloaded.Status != enums.OrderStatusConfirmed || reloaded.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("stale failure mutated the stored order: %s/%s", reloaded.Status, reloaded.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 7 {
		t.Fatalf("expected stock 7, got %d", got)
	}
}

func TestReconcileFailureCancels(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	reconciled, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeFailed)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.Status != enums.OrderStatusCancelled || reconciled.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("expected cancelled/unpaid, got %s/%s", reconciled.Status, reconciled.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 10 {
		t.Fatalf("failure must not deduct stock, got %d", got)
	}
	if got := f.cartItemCount(t); got != 1 {
		t.Fatalf("failure must not clear the cart, got %d items", got)
	}
}

func TestReconcileUnknownOutcomeIsNoOp(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	reconciled, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeUnknown)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reconciled.Status != enums.OrderStatusPending || reconciled.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("expected untouched order, got %s/%s", reconciled.Status, reconciled.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestReconcileUnknownTxnID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reconcile(context.Background(), "no-such-txn", OutcomeSuccess)
	assertCode(t, err, pkgerrors.CodeNotFound)
}

func TestReconcileSuccessForBuyNowLeavesCart(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodKhalti, 1100, 10, 2, true)

	if _, err := f.svc.Reconcile(context.Background(), *order.MerchantTxnID, OutcomeSuccess); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if got := f.cartItemCount(t); got != 1 {
		t.Fatalf("buy-now success must not touch the cart, got %d items", got)
	}
}

func TestHandleEsewaCallback(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)
	f.esewa.payload = &esewa.CallbackPayload{
		Status:          esewa.StatusComplete,
		TotalAmount:     "1,100.0",
		TransactionUUID: *order.MerchantTxnID,
	}

	reconciled, err := f.svc.HandleEsewaCallback(context.Background(), "irrelevant-blob")
	if err != nil {
		t.Fatalf("handle callback: %v", err)
	}
	if reconciled.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", reconciled.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
}

func TestHandleEsewaCallbackBadSignature(t *testing.T) {
	f := newFixture(t)
	order, product := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)
	f.esewa.decErr = errors.New("esewa callback signature mismatch")

	_, err := f.svc.HandleEsewaCallback(context.Background(), "tampered-blob")
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	reloaded := f.reloadOrder(t, order.ID)
	if reloaded.Status != enums.OrderStatusPending || reloaded.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("signature failure mutated order: %s/%s", reloaded.Status, reloaded.PaymentStatus)
	}
	if got := f.productStock(t, product.ID); got != 10 {
		t.Fatalf("signature failure mutated stock: %d", got)
	}
}

func TestHandleEsewaCallbackAmountMismatch(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)
	f.esewa.payload = &esewa.CallbackPayload{
		Status:          esewa.StatusComplete,
		TotalAmount:     "999.00",
		TransactionUUID: *order.MerchantTxnID,
	}

	_, err := f.svc.HandleEsewaCallback(context.Background(), "blob")
	assertCode(t, err, pkgerrors.CodeValidation)

	reloaded := f.reloadOrder(t, order.ID)
	if reloaded.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("amount mismatch mutated order: %s", reloaded.PaymentStatus)
	}
}

func TestHandleKhaltiReturn(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodKhalti, 1100, 10, 2, false)
	f.khalti.resp = &khalti.LookupResponse{
		Pidx:        *order.MerchantTxnID,
		TotalAmount: 110000,
		Status:      khalti.StatusCompleted,
	}

	reconciled, err := f.svc.HandleKhaltiReturn(context.Background(), *order.MerchantTxnID)
	if err != nil {
		t.Fatalf("handle return: %v", err)
	}
	if reconciled.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", reconciled.PaymentStatus)
	}
}

func TestHandleKhaltiReturnUserCanceled(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodKhalti, 1100, 10, 2, false)
	f.khalti.resp = &khalti.LookupResponse{
		Pidx:   *order.MerchantTxnID,
		Status: khalti.StatusUserCanceled,
	}

	reconciled, err := f.svc.HandleKhaltiReturn(context.Background(), *order.MerchantTxnID)
	if err != nil {
		t.Fatalf("handle return: %v", err)
	}
	if reconciled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reconciled.Status)
	}
}

func TestHandleKhaltiReturnAmountMismatch(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodKhalti, 1100, 10, 2, false)
	f.khalti.resp = &khalti.LookupResponse{
		Pidx:        *order.MerchantTxnID,
		TotalAmount: 50000,
		Status:      khalti.StatusCompleted,
	}

	_, err := f.svc.HandleKhaltiReturn(context.Background(), *order.MerchantTxnID)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestHandleNotificationBadSignature(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)
	f.esewa.valid = false

	fields := map[string]string{
		"transaction_uuid": *order.MerchantTxnID,
		"status":           esewa.StatusComplete,
		"signature":        "forged",
	}
	_, err := f.svc.HandleNotification(context.Background(), fields)
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	reloaded := f.reloadOrder(t, order.ID)
	if reloaded.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("forged notification mutated order: %s", reloaded.PaymentStatus)
	}
}

func TestHandleNotification(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	fields := map[string]string{
		"transaction_uuid": *order.MerchantTxnID,
		"status":           esewa.StatusComplete,
		"signature":        "valid",
	}
	reconciled, err := f.svc.HandleNotification(context.Background(), fields)
	if err != nil {
		t.Fatalf("handle notification: %v", err)
	}
	if reconciled.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", reconciled.PaymentStatus)
	}
}

func TestCancelLanding(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodEsewa, 1100, 10, 2, false)

	reconciled, err := f.svc.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if reconciled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", reconciled.Status)
	}

	// replays stay no-ops
	again, err := f.svc.Cancel(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("cancel replay: %v", err)
	}
	if again.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.Status)
	}
}

func TestCancelRejectsCODOrder(t *testing.T) {
	f := newFixture(t)
	order, _ := f.seedOrder(t, enums.PaymentMethodCOD, 1100, 10, 2, false)

	_, err := f.svc.Cancel(context.Background(), order.ID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
}
