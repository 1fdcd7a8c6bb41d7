package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Variant{}, &models.Cart{}, &models.CartItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), products.NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedProduct(t *testing.T, db *gorm.DB, price int64, discount int64, dt *enums.DiscountType, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		VendorID:     uuid.New(),
		Name:         "Kettle",
		Price:        decimal.NewFromInt(price),
		Discount:     decimal.NewFromInt(discount),
		DiscountType: dt,
		Stock:        stock,
		Status:       enums.ProductStatusForStock(stock),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func TestGetCreatesEmptyCart(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	cart, err := svc.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestAddItemSnapshotsDiscountedPrice(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	dt := enums.DiscountTypePercentage
	p := seedProduct(t, db, 1000, 10, &dt, 20)

	cart, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: p.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(cart.Items))
	}
	if !cart.Items[0].Price.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("expected snapshot price 900, got %s", cart.Items[0].Price)
	}
	if !cart.Total.Equal(decimal.NewFromInt(1800)) {
		t.Fatalf("expected total 1800, got %s", cart.Total)
	}
}

func TestAddItemTwiceIncrementsQuantity(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, 500, 0, nil, 10)
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 2})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("expected single line with qty 3, got %+v", cart.Items)
	}
}

func TestAddItemRejectsOverStock(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, 500, 0, nil, 2)

	_, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{ProductID: p.ID, Quantity: 5})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddItemVariantPriceVerbatim(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	dt := enums.DiscountTypePercentage
	p := seedProduct(t, db, 1000, 50, &dt, 0)
	v := &models.Variant{
		ProductID: p.ID,
		Name:      "Kettle / Large",
		Price:     decimal.NewFromInt(1500),
		Stock:     5,
		Status:    enums.ProductStatusForStock(5),
	}
	if err := db.Create(v).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}

	cart, err := svc.AddItem(context.Background(), uuid.New(), AddItemInput{
		ProductID: p.ID,
		VariantID: &v.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	// variant price is not discounted
	if !cart.Items[0].Price.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected variant price 1500, got %s", cart.Items[0].Price)
	}
}

func TestUpdateItemQuantityRecomputesTotal(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, 400, 0, nil, 10)
	userID := uuid.New()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err = svc.UpdateItemQuantity(ctx, userID, cart.Items[0].ID, 4)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !cart.Total.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("expected total 1600, got %s", cart.Total)
	}
}

func TestRemoveItem(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, 400, 0, nil, 10)
	userID := uuid.New()
	ctx := context.Background()

	cart, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err = svc.RemoveItem(ctx, userID, cart.Items[0].ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}

func TestRemoveItemNotFound(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)

	_, err := svc.RemoveItem(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClearEmptiesCartAndTotal(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	p := seedProduct(t, db, 400, 0, nil, 10)
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, userID, AddItemInput{ProductID: p.ID, Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := svc.Clear(ctx, nil, userID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cart, err := svc.Get(ctx, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(cart.Items) != 0 || !cart.Total.IsZero() {
		t.Fatalf("expected cleared cart, got %+v", cart)
	}
}
