package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Order is one purchase transaction. MerchantTxnID is set once an online
// payment has been initiated and is the key payment callbacks reconcile on.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	TotalPrice        decimal.Decimal     `gorm:"column:total_price;type:numeric(12,2);not null"`
	ShippingFee       decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	ServiceCharge     decimal.Decimal     `gorm:"column:service_charge;type:numeric(12,2);not null;default:0"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	Status            enums.OrderStatus   `gorm:"column:status;not null;default:'pending'"`
	PromoCode         *string             `gorm:"column:promo_code"`
	MerchantTxnID     *string             `gorm:"column:merchant_txn_id;uniqueIndex"`
	Phone             string              `gorm:"column:phone;not null"`
	IsBuyNow          bool                `gorm:"column:is_buy_now;not null;default:false"`
	ShippingAddressID uuid.UUID           `gorm:"column:shipping_address_id;type:uuid;not null"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
