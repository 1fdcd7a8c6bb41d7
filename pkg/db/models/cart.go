package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart is the pre-order staging area, exactly one per user.
type Cart struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;uniqueIndex;not null"`
	Total     decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	Items     []CartItem      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
