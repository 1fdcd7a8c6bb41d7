package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Address is a user's shipping address. The unique index on UserID
// enforces at most one row per user; updates mutate in place.
type Address struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex;not null"`
	Province  string    `gorm:"column:province;not null"`
	District  string    `gorm:"column:district;not null"`
	City      string    `gorm:"column:city;not null"`
	Street    string    `gorm:"column:street;not null"`
	Landmark  string    `gorm:"column:landmark"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Matches reports whether every shipping field equals the other address.
func (a *Address) Matches(other Address) bool {
	return a.Province == other.Province &&
		a.District == other.District &&
		a.City == other.City &&
		a.Street == other.Street &&
		a.Landmark == other.Landmark
}
