package vendors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Repository exposes persistence for vendor accounts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a vendor repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, vendor *models.Vendor) error {
	return r.db.WithContext(ctx).Create(vendor).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).First(&vendor, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", strings.TrimSpace(email)).
		First(&vendor).Error
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

// FindByIDs loads vendors in bulk, for shipping-fee computation.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Vendor, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var vendors []models.Vendor
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error
	return vendors, err
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.VendorStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Vendor{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *Repository) List(ctx context.Context, status *enums.VendorStatus) ([]models.Vendor, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var vendors []models.Vendor
	err := q.Find(&vendors).Error
	return vendors, err
}
