package promos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
)

// Repository exposes persistence for promo codes.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a promo repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode loads a promo by its code, case-insensitively.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).
		Where("LOWER(code) = LOWER(?)", strings.TrimSpace(code)).
		First(&promo).Error
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// FindByID loads a promo by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	var promo models.PromoCode
	if err := r.db.WithContext(ctx).First(&promo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &promo, nil
}

// Create inserts a promo code.
func (r *Repository) Create(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

// Update saves the provided promo code.
func (r *Repository) Update(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Save(promo).Error
}

// Delete removes a promo code.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.PromoCode{}, "id = ?", id).Error
}

// List returns all promo codes, newest first.
func (r *Repository) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&promos).Error
	return promos, err
}
