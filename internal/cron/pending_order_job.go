package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

const defaultPendingOrderTTL = 72 * time.Hour

// staleOrderCanceller is the slice of the order service the job needs.
// Cleanup goes through the same status transition path as any request
// so the two can never diverge.
type staleOrderCanceller interface {
	CancelPendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// PendingOrderJobParams configure the stale order purge.
type PendingOrderJobParams struct {
	Logger *logger.Logger
	Orders staleOrderCanceller
	TTL    time.Duration
}

// NewPendingOrderJob builds the job that cancels gateway orders whose
// payment never arrived within the TTL.
func NewPendingOrderJob(params PendingOrderJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &pendingOrderJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

type pendingOrderJob struct {
	logg   *logger.Logger
	orders staleOrderCanceller
	ttl    time.Duration
	now    func() time.Time
}

func (j *pendingOrderJob) Name() string { return "pending-order-purge" }

func (j *pendingOrderJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	cancelled, err := j.orders.CancelPendingBefore(ctx, cutoff)
	if cancelled > 0 {
		j.logg.Info(j.logg.WithField(ctx, "cancelled", cancelled), "stale pending orders cancelled")
	}
	if err != nil {
		return fmt.Errorf("cancel stale pending orders: %w", err)
	}
	return nil
}
