package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Product is a catalog listing. A product with variants delegates stock
// tracking to its variants; a variant-less product tracks stock directly.
type Product struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	VendorID     uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index"`
	Name         string              `gorm:"column:name;not null"`
	Description  string              `gorm:"column:description"`
	ImageURL     string              `gorm:"column:image_url"`
	Price        decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Discount     decimal.Decimal     `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	DiscountType *enums.DiscountType `gorm:"column:discount_type"`
	Stock        int                 `gorm:"column:stock;not null;default:0"`
	Status       enums.ProductStatus `gorm:"column:status;not null;default:'out_of_stock'"`
	Variants     []Variant           `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// HasVariants reports whether stock tracking is delegated to variants.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}
