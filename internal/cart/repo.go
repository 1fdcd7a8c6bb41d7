package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
)

// Repository exposes persistence for cart staging data.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrCreateByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	UpdateItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
	RecomputeTotal(ctx context.Context, cartID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
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

// FindOrCreateByUser loads the user's cart, creating an empty one on
// first use.
func (r *repository) FindOrCreateByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindByUser(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fresh := &models.Cart{UserID: userID}
	if err := r.db.WithContext(ctx).Create(fresh).Error; err != nil {
		return nil, err
	}
	return fresh, nil
}

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&cart, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *repository) FindItem(ctx context.Context, cartID, itemID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		First(&item, "id = ? AND cart_id = ?", itemID, cartID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) UpdateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

func (r *repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.CartItem{}, "id = ? AND cart_id = ?", itemID, cartID).Error
}

// Clear removes every item and resets the total.
func (r *repository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Delete(&models.CartItem{}, "cart_id = ?", cartID).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("total", 0).Error
}

// RecomputeTotal refreshes the denormalized cart total from its items.
func (r *repository) RecomputeTotal(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		UpdateColumn("total", gorm.Expr(
			"(SELECT COALESCE(SUM(price * quantity), 0) FROM cart_items WHERE cart_items.cart_id = carts.id)")).Error
}
