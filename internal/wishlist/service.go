package wishlist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service manages per-user saved products.
type Service interface {
	Add(ctx context.Context, userID, productID uuid.UUID) (*models.WishlistItem, error)
	List(ctx context.Context, userID uuid.UUID) ([]models.WishlistItem, error)
	Remove(ctx context.Context, userID, productID uuid.UUID) error
}

type service struct {
	repo     *Repository
	products productLoader
}

// NewService wires a wishlist service.
func NewService(repo *Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wishlist repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

// Add saves a product for the user. Saving the same product twice is a
// conflict, surfaced from the composite unique index.
func (s *service) Add(ctx context.Context, userID, productID uuid.UUID) (*models.WishlistItem, error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and product id are required")
	}

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	item := &models.WishlistItem{UserID: userID, ProductID: productID}
	if err := s.repo.Create(ctx, item); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already in wishlist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add wishlist item")
	}
	return item, nil
}

// List returns the user's saved products, newest first.
func (s *service) List(ctx context.Context, userID uuid.UUID) ([]models.WishlistItem, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wishlist")
	}
	return items, nil
}

// Remove drops a saved product.
func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID) error {
	removed, err := s.repo.Delete(ctx, userID, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove wishlist item")
	}
	if removed == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wishlist item not found")
	}
	return nil
}

// Repository exposes persistence for wishlist items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, item *models.WishlistItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.WishlistItem, error) {
	var items []models.WishlistItem
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&items).Error
	return items, err
}

func (r *Repository) Delete(ctx context.Context, userID, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Delete(&models.WishlistItem{}, "user_id = ? AND product_id = ?", userID, productID)
	return res.RowsAffected, res.Error
}
