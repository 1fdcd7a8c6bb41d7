package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Vendor supplies products. District is required for shipping-fee
// computation; Status gates whether the account is usable.
type Vendor struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name         string             `gorm:"column:name;not null"`
	Email        string             `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string             `gorm:"column:password_hash;not null"`
	Phone        string             `gorm:"column:phone"`
	District     string             `gorm:"column:district"`
	Status       enums.VendorStatus `gorm:"column:status;not null;default:'pending'"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
