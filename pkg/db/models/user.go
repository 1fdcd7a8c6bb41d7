package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a customer account. Authentication lives at the edge; the order
// workflow only needs identity, contact fields, and the address relation.
type User struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	FullName     string    `gorm:"column:full_name;not null"`
	Phone        string    `gorm:"column:phone"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false"`
	Address      *Address  `gorm:"foreignKey:UserID"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
