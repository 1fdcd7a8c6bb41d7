package promos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// CreateInput is the payload for a new promo code.
type CreateInput struct {
	Code               string
	DiscountPercentage decimal.Decimal
	Active             bool
}

// UpdateInput carries the mutable promo fields; nil fields are left
// unchanged.
type UpdateInput struct {
	DiscountPercentage *decimal.Decimal
	Active             *bool
}

// Service is the administrative surface for promo codes.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PromoCode, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.PromoCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.PromoCode, error)
}

type service struct {
	repo *Repository
}

// NewService wires a promo service with the provided repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PromoCode, error) {
	code := strings.ToUpper(strings.TrimSpace(input.Code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	if err := validPercentage(input.DiscountPercentage); err != nil {
		return nil, err
	}

	promo := &models.PromoCode{
		Code:               code,
		DiscountPercentage: input.DiscountPercentage,
		Active:             input.Active,
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "promo code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promo code")
	}
	return promo, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.PromoCode, error) {
	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}

	if input.DiscountPercentage != nil {
		if err := validPercentage(*input.DiscountPercentage); err != nil {
			return nil, err
		}
		promo.DiscountPercentage = *input.DiscountPercentage
	}
	if input.Active != nil {
		promo.Active = *input.Active
	}

	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update promo code")
	}
	return promo, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete promo code")
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]models.PromoCode, error) {
	promos, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promo codes")
	}
	return promos, nil
}

func validPercentage(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(oneHundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount percentage must be between 0 and 100")
	}
	return nil
}
