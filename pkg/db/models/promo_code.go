package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromoCode applies a percentage discount against an order subtotal.
type PromoCode struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code               string          `gorm:"column:code;uniqueIndex;not null"`
	DiscountPercentage decimal.Decimal `gorm:"column:discount_percentage;type:numeric(5,2);not null"`
	Active             bool            `gorm:"column:active;not null;default:true"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PromoCode) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
