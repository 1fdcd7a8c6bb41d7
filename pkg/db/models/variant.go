package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Variant is a sellable variation of a product (size, color). Variants
// carry their own price verbatim and never independent discount rules.
type Variant struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string              `gorm:"column:name;not null"`
	Price     decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Stock     int                 `gorm:"column:stock;not null;default:0"`
	Status    enums.ProductStatus `gorm:"column:status;not null;default:'out_of_stock'"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
