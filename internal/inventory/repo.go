package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// ErrInsufficientStock is returned by the conditional deduct when the
// guarded UPDATE matches no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository exposes stock persistence for products and variants.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error)
	DeductProductStock(ctx context.Context, id uuid.UUID, qty int) (int, error)
	DeductVariantStock(ctx context.Context, id uuid.UUID, qty int) (int, error)
	EvictCartItems(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindProduct loads a product with its variants.
func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants").
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant loads a single variant.
func (r *repository) FindVariant(ctx context.Context, id uuid.UUID) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).First(&variant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

// DeductProductStock subtracts qty behind a stock >= qty guard so two
// concurrent deductions cannot drive stock negative, then recomputes
// the derived status. Returns the remaining stock.
func (r *repository) DeductProductStock(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrInsufficientStock
	}

	var remaining int
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Pluck("stock", &remaining).Error
	if err != nil {
		return 0, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumn("status", enums.ProductStatusForStock(remaining)).Error
	return remaining, err
}

// DeductVariantStock is the variant-level counterpart of DeductProductStock.
func (r *repository) DeductVariantStock(ctx context.Context, id uuid.UUID, qty int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrInsufficientStock
	}

	var remaining int
	err := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", id).
		Pluck("stock", &remaining).Error
	if err != nil {
		return 0, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", id).
		UpdateColumn("status", enums.ProductStatusForStock(remaining)).Error
	return remaining, err
}

// EvictCartItems removes the referenced product (or exact variant) from
// every cart and refreshes the affected cart totals. Runs on the base
// connection so it commits independently of any order transaction.
func (r *repository) EvictCartItems(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int64, error) {
	match := func(db *gorm.DB) *gorm.DB {
		db = db.Where("product_id = ?", productID)
		if variantID != nil {
			return db.Where("variant_id = ?", *variantID)
		}
		return db.Where("variant_id IS NULL")
	}

	var cartIDs []uuid.UUID
	err := match(r.db.WithContext(ctx).Model(&models.CartItem{})).
		Distinct().
		Pluck("cart_id", &cartIDs).Error
	if err != nil {
		return 0, err
	}
	if len(cartIDs) == 0 {
		return 0, nil
	}

	res := match(r.db.WithContext(ctx)).Delete(&models.CartItem{})
	if res.Error != nil {
		return 0, res.Error
	}

	err = r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id IN ?", cartIDs).
		UpdateColumn("total", gorm.Expr(
			"(SELECT COALESCE(SUM(price * quantity), 0) FROM cart_items WHERE cart_items.cart_id = carts.id)")).Error
	if err != nil {
		return 0, err
	}

	return res.RowsAffected, nil
}
