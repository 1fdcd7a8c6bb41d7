package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
)

// Repository exposes persistence for user addresses and the district
// allowlist.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Address, error)
	Create(ctx context.Context, addr *models.Address) error
	Update(ctx context.Context, addr *models.Address) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs an address repository bound to the provided DB.
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

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.db.WithContext(ctx).First(&addr, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

func (r *repository) Create(ctx context.Context, addr *models.Address) error {
	return r.db.WithContext(ctx).Create(addr).Error
}

func (r *repository) Update(ctx context.Context, addr *models.Address) error {
	return r.db.WithContext(ctx).Save(addr).Error
}

// DistrictRepository answers deliverability lookups against the
// districts table.
type DistrictRepository struct {
	db *gorm.DB
}

// NewDistrictRepository constructs a district lookup bound to the provided DB.
func NewDistrictRepository(db *gorm.DB) *DistrictRepository {
	return &DistrictRepository{db: db}
}

// Exists reports whether the named district is deliverable. Comparison
// is case-insensitive.
func (r *DistrictRepository) Exists(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.District{}).
		Where("LOWER(name) = LOWER(?)", name).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
