package address

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

// Input carries the shipping address fields a request supplies.
type Input struct {
	Province string
	District string
	City     string
	Street   string
	Landmark string
}

// Service keeps the single authoritative shipping address per user.
type Service interface {
	Resolve(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input Input) (*models.Address, error)
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Address, error)
}

type districtLookup interface {
	Exists(ctx context.Context, name string) (bool, error)
}

type service struct {
	repo      Repository
	districts districtLookup
}

// NewService wires an address resolver with its repository and the
// deliverable-district lookup.
func NewService(repo Repository, districts districtLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	if districts == nil {
		return nil, fmt.Errorf("district lookup required")
	}
	return &service{repo: repo, districts: districts}, nil
}

// Resolve finds the user's address and reconciles it with the request:
// missing rows are created, differing rows are updated in place, and a
// matching row is returned untouched. The district must be deliverable.
func (s *service) Resolve(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input Input) (*models.Address, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	requested := models.Address{
		UserID:   userID,
		Province: strings.TrimSpace(input.Province),
		District: strings.TrimSpace(input.District),
		City:     strings.TrimSpace(input.City),
		Street:   strings.TrimSpace(input.Street),
		Landmark: strings.TrimSpace(input.Landmark),
	}
	if requested.Province == "" || requested.District == "" || requested.City == "" || requested.Street == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "province, district, city and street are required")
	}

	deliverable, err := s.districts.Exists(ctx, requested.District)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check district")
	}
	if !deliverable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("district %q is not deliverable", requested.District))
	}

	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := repo.Create(ctx, &requested); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create address")
			}
			return &requested, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}

	if existing.Matches(requested) {
		return existing, nil
	}

	existing.Province = requested.Province
	existing.District = requested.District
	existing.City = requested.City
	existing.Street = requested.Street
	existing.Landmark = requested.Landmark
	if err := repo.Update(ctx, existing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update address")
	}
	return existing, nil
}

// FindByUser returns the user's address, if any.
func (s *service) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Address, error) {
	addr, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load address")
	}
	return addr, nil
}
