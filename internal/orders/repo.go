package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

// Repository is the order persistence surface. WithTx returns a copy
// bound to the given transaction so a caller can compose order writes
// with inventory and cart writes atomically.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByMerchantTxnID(ctx context.Context, txnID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	UpdateFields(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	MarkPaidConfirmed(ctx context.Context, orderID uuid.UUID) (bool, error)
	CancelIfUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error)
	UpdateFieldsFromStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error)
	FindPendingGatewayOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	DeleteBulk(ctx context.Context, ids []uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs an order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Create persists the order together with its items in one insert chain.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByMerchantTxnID(ctx context.Context, txnID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "merchant_txn_id = ?", txnID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) UpdateFields(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

// MarkPaidConfirmed flips an unpaid, uncancelled order to paid and
// confirmed. It reports whether a row changed, so callers racing over
// the same gateway callback can tell which of them actually settled
// the order.
func (r *repository) MarkPaidConfirmed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payment_status = ?", enums.PaymentStatusUnpaid).
		Where("status <> ?", enums.OrderStatusCancelled).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"status":         enums.OrderStatusConfirmed,
		})
	return res.RowsAffected > 0, res.Error
}

// CancelIfUnpaid cancels the order only while payment has not landed,
// reporting whether a row changed.
func (r *repository) CancelIfUnpaid(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("payment_status = ?", enums.PaymentStatusUnpaid).
		Where("status <> ?", enums.OrderStatusCancelled).
		Updates(map[string]any{"status": enums.OrderStatusCancelled})
	return res.RowsAffected > 0, res.Error
}

// UpdateFieldsFromStatus applies updates only while the order still
// holds the expected status, reporting whether a row changed. Two
// writers validating the same transition end up with exactly one
// winner.
func (r *repository) UpdateFieldsFromStatus(ctx context.Context, orderID uuid.UUID, from enums.OrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// FindPendingGatewayOrdersBefore returns gateway orders still awaiting
// payment whose creation predates the cutoff. The cron worker cancels
// them through the normal status transition path.
func (r *repository) FindPendingGatewayOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPending).
		Where("payment_status = ?", enums.PaymentStatusUnpaid).
		Where("payment_method IN ?", []enums.PaymentMethod{
			enums.PaymentMethodOnline,
			enums.PaymentMethodEsewa,
			enums.PaymentMethodKhalti,
		}).
		Where("created_at < ?", cutoff).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// DeleteBulk removes orders and their lines. The cascade is spelled out
// rather than left to the schema so the destructive path stays visible.
func (r *repository) DeleteBulk(ctx context.Context, ids []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id IN ?", ids).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Order{}).Error
	})
}
