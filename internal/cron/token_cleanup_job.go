package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type expiredTokenPurger interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenStore purges verification tokens past their expiry.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore constructs a token store bound to the provided DB.
func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

func (s *TokenStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.VerificationToken{})
	return result.RowsAffected, result.Error
}

// TokenCleanupJobParams configure the expired token purge.
type TokenCleanupJobParams struct {
	Logger *logger.Logger
	Tokens expiredTokenPurger
}

// NewTokenCleanupJob builds the job that deletes expired verification
// tokens so one-time links cannot linger in the table indefinitely.
func NewTokenCleanupJob(params TokenCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token store required")
	}
	return &tokenCleanupJob{
		logg:   params.Logger,
		tokens: params.Tokens,
		now:    time.Now,
	}, nil
}

type tokenCleanupJob struct {
	logg   *logger.Logger
	tokens expiredTokenPurger
	now    func() time.Time
}

func (j *tokenCleanupJob) Name() string { return "token-cleanup" }

func (j *tokenCleanupJob) Run(ctx context.Context) error {
	purged, err := j.tokens.DeleteExpiredBefore(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("purge expired tokens: %w", err)
	}
	if purged > 0 {
		j.logg.Info(j.logg.WithField(ctx, "purged", purged), "expired verification tokens purged")
	}
	return nil
}
