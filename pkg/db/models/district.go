package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// District is a deliverable administrative district. Orders may only ship
// to districts present in this table.
type District struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;uniqueIndex;not null"`
}

func (d *District) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
