package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/security"
)

// RegisterInput is the vendor onboarding payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	District string
}

// Service manages vendor onboarding and approval.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Vendor, error)
	Approve(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	Reject(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Vendor, error)
	List(ctx context.Context, status *enums.VendorStatus) ([]models.Vendor, error)
}

type service struct {
	repo *Repository
}

// NewService wires a vendor service with the provided repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	return &service{repo: repo}, nil
}

// Register creates a pending vendor account. The district is required
// up front since shipping fees cannot be computed without it.
func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Vendor, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	district := strings.TrimSpace(input.District)

	if name == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor name and email are required")
	}
	if district == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor district is required")
	}
	if len(input.Password) < 8 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	vendor := &models.Vendor{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(input.Phone),
		District:     district,
		Status:       enums.VendorStatusPending,
	}
	if err := s.repo.Create(ctx, vendor); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "vendor email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create vendor")
	}
	return vendor, nil
}

// Approve marks a pending vendor usable.
func (s *service) Approve(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return s.decide(ctx, id, enums.VendorStatusApproved)
}

// Reject declines a pending vendor.
func (s *service) Reject(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	return s.decide(ctx, id, enums.VendorStatusRejected)
}

func (s *service) decide(ctx context.Context, id uuid.UUID, status enums.VendorStatus) (*models.Vendor, error) {
	vendor, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if vendor.Status != enums.VendorStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("vendor is already %s", vendor.Status))
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor status")
	}
	vendor.Status = status
	return vendor, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
	}
	return vendor, nil
}

func (s *service) List(ctx context.Context, status *enums.VendorStatus) ([]models.Vendor, error) {
	vendors, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors")
	}
	return vendors, nil
}
