package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartItem snapshots a product (and optional variant) at add-to-cart time
// so later catalog edits do not silently reprice a staged purchase.
type CartItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID      uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID   *uuid.UUID      `gorm:"column:variant_id;type:uuid;index"`
	VendorID    uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null"`
	Name        string          `gorm:"column:name;not null"`
	Description string          `gorm:"column:description"`
	ImageURL    string          `gorm:"column:image_url"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
