package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
)

// Repository exposes persistence for catalog products.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a product repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a product together with any variants.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// Update saves the product row (variants untouched).
func (r *Repository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Omit("Variants").Save(product).Error
}

// FindByID loads a product with its variants.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).Preload("Variants").First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListFilters narrows List results.
type ListFilters struct {
	VendorID *uuid.UUID
}

// List returns products, newest first.
func (r *Repository) List(ctx context.Context, filters ListFilters) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Preload("Variants").Order("created_at DESC")
	if filters.VendorID != nil {
		q = q.Where("vendor_id = ?", *filters.VendorID)
	}
	var products []models.Product
	err := q.Find(&products).Error
	return products, err
}

// Delete removes a product; variants cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Select("Variants").Delete(&models.Product{ID: id}).Error
}
