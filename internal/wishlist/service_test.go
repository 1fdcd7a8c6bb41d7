package wishlist

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

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	dsn := "file:wishlist_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}, &models.Variant{}, &models.WishlistItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	svc, err := NewService(NewRepository(db), products.NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func seedProduct(t *testing.T, db *gorm.DB) *models.Product {
	t.Helper()
	p := &models.Product{
		VendorID: uuid.New(),
		Name:     "Wall Clock",
		Price:    decimal.NewFromInt(900),
		Stock:    3,
		Status:   enums.ProductStatusLowStock,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

func TestAddAndList(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db)
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Add(ctx, userID, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}

	items, err := svc.List(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ProductID != p.ID {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestAddDuplicateConflicts(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db)
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Add(ctx, userID, p.ID); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := svc.Add(ctx, userID, p.ID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAddUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Add(context.Background(), uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	svc, db := newTestService(t)
	p := seedProduct(t, db)
	userID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Add(ctx, userID, p.ID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Remove(ctx, userID, p.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := svc.Remove(ctx, userID, p.ID); err == nil {
		t.Fatal("expected not found on second remove")
	}
}
