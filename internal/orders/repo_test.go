package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}))
	return db
}

func seedRepoOrder(t *testing.T, db *gorm.DB, mutate func(*models.Order)) *models.Order {
	t.Helper()
	txnID := uuid.NewString()
	order := &models.Order{
		UserID:            uuid.New(),
		TotalPrice:        decimal.NewFromInt(1100),
		ShippingFee:       decimal.NewFromInt(100),
		PaymentMethod:     enums.PaymentMethodEsewa,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		Status:            enums.OrderStatusPending,
		MerchantTxnID:     &txnID,
		Phone:             "9841000000",
		ShippingAddressID: uuid.New(),
		Items: []models.OrderItem{
			{
				ProductID: uuid.New(),
				VendorID:  uuid.New(),
				Name:      "Pashmina Shawl",
				Price:     decimal.NewFromInt(500),
				Quantity:  2,
			},
		},
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestRepositoryFindByMerchantTxnID(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedRepoOrder(t, db, nil)

	loaded, err := repo.FindByMerchantTxnID(ctx, *order.MerchantTxnID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, loaded.ID)
	require.Len(t, loaded.Items, 1, "items should be preloaded")
	assert.Equal(t, "Pashmina Shawl", loaded.Items[0].Name)

	_, err = repo.FindByMerchantTxnID(ctx, "no-such-txn")
	assert.Error(t, err)
}

func TestRepositoryUpdateFields(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedRepoOrder(t, db, nil)

	err := repo.UpdateFields(ctx, order.ID, map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"status":         enums.OrderStatusConfirmed,
	})
	require.NoError(t, err)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, loaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, loaded.Status)
}

func TestRepositoryMarkPaidConfirmed(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedRepoOrder(t, db, nil)

	won, err := repo.MarkPaidConfirmed(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, won)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, loaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, loaded.Status)

	// a second writer finds the order already settled
	won, err = repo.MarkPaidConfirmed(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, won, "settled order must not be flipped twice")

	cancelled := seedRepoOrder(t, db, func(o *models.Order) {
		o.Status = enums.OrderStatusCancelled
	})
	won, err = repo.MarkPaidConfirmed(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.False(t, won, "cancelled order must not be confirmed")
}

func TestRepositoryCancelIfUnpaid(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedRepoOrder(t, db, nil)

	won, err := repo.CancelIfUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, won)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, loaded.Status)

	won, err = repo.CancelIfUnpaid(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, won, "cancellation is applied once")

	paid := seedRepoOrder(t, db, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusPaid
		o.Status = enums.OrderStatusConfirmed
	})
	won, err = repo.CancelIfUnpaid(ctx, paid.ID)
	require.NoError(t, err)
	assert.False(t, won, "paid order must not be cancelled")
}

func TestRepositoryUpdateFieldsFromStatus(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := seedRepoOrder(t, db, nil)

	moved, err := repo.UpdateFieldsFromStatus(ctx, order.ID, enums.OrderStatusPending,
		map[string]any{"status": enums.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.True(t, moved)

	// a write still guarded on the old status loses
	moved, err = repo.UpdateFieldsFromStatus(ctx, order.ID, enums.OrderStatusPending,
		map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.False(t, moved)

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, loaded.Status)
}

func TestRepositoryFindPendingGatewayOrdersBefore(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	old := time.Now().UTC().Add(-96 * time.Hour)

	stale := seedRepoOrder(t, db, nil)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", stale.ID).
		Update("created_at", old).Error)

	// Fresh gateway order stays out of the sweep.
	seedRepoOrder(t, db, nil)

	// COD orders never wait on a gateway.
	cod := seedRepoOrder(t, db, func(o *models.Order) {
		o.PaymentMethod = enums.PaymentMethodCOD
		o.MerchantTxnID = nil
		o.Status = enums.OrderStatusConfirmed
	})
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", cod.ID).
		Update("created_at", old).Error)

	// Paid orders are already reconciled.
	paid := seedRepoOrder(t, db, func(o *models.Order) {
		o.PaymentStatus = enums.PaymentStatusPaid
		o.Status = enums.OrderStatusConfirmed
	})
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", paid.ID).
		Update("created_at", old).Error)

	cutoff := time.Now().UTC().Add(-72 * time.Hour)
	found, err := repo.FindPendingGatewayOrdersBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, stale.ID, found[0].ID)
}

func TestRepositoryDeleteBulk(t *testing.T) {
	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first := seedRepoOrder(t, db, nil)
	second := seedRepoOrder(t, db, nil)
	survivor := seedRepoOrder(t, db, nil)

	require.NoError(t, repo.DeleteBulk(ctx, []uuid.UUID{first.ID, second.ID}))

	var orderCount, itemCount int64
	require.NoError(t, db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&itemCount).Error)
	assert.EqualValues(t, 1, orderCount)
	assert.EqualValues(t, 1, itemCount, "items must go with their orders")

	_, err := repo.FindByID(ctx, survivor.ID)
	assert.NoError(t, err)
}
