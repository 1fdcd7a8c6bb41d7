package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

// VariantInput is one sellable variation on a create/update payload.
type VariantInput struct {
	Name  string
	Price decimal.Decimal
	Stock int
}

// CreateInput is the payload for a new catalog listing.
type CreateInput struct {
	VendorID     uuid.UUID
	Name         string
	Description  string
	ImageURL     string
	Price        decimal.Decimal
	Discount     decimal.Decimal
	DiscountType *enums.DiscountType
	Stock        int
	Variants     []VariantInput
}

// UpdateInput carries the mutable product fields; nil fields are left
// unchanged.
type UpdateInput struct {
	Name         *string
	Description  *string
	ImageURL     *string
	Price        *decimal.Decimal
	Discount     *decimal.Decimal
	DiscountType *enums.DiscountType
	Stock        *int
}

// Service is the catalog surface for vendors and admins.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, filters ListFilters) ([]models.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo *Repository
}

// NewService wires a product service with the provided repository.
func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
	}
	if err := validDiscount(input.Discount, input.DiscountType, input.Price); err != nil {
		return nil, err
	}

	product := &models.Product{
		VendorID:     input.VendorID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		ImageURL:     strings.TrimSpace(input.ImageURL),
		Price:        input.Price.Round(2),
		Discount:     input.Discount.Round(2),
		DiscountType: input.DiscountType,
		Stock:        input.Stock,
		Status:       enums.ProductStatusForStock(input.Stock),
	}

	for _, v := range input.Variants {
		vName := strings.TrimSpace(v.Name)
		if vName == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant name is required")
		}
		if v.Price.IsNegative() || v.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant price and stock must be non-negative")
		}
		product.Variants = append(product.Variants, models.Variant{
			Name:   vName,
			Price:  v.Price.Round(2),
			Stock:  v.Stock,
			Status: enums.ProductStatusForStock(v.Stock),
		})
	}

	// a product delegating stock to variants carries no direct stock
	if len(product.Variants) > 0 {
		product.Stock = 0
		product.Status = enums.ProductStatusOutOfStock
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
		}
		product.Name = name
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.ImageURL != nil {
		product.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
		}
		product.Price = input.Price.Round(2)
	}
	if input.Discount != nil {
		product.Discount = input.Discount.Round(2)
	}
	if input.DiscountType != nil {
		product.DiscountType = input.DiscountType
	}
	if err := validDiscount(product.Discount, product.DiscountType, product.Price); err != nil {
		return nil, err
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must be non-negative")
		}
		if product.HasVariants() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock is tracked per variant for this product")
		}
		product.Stock = *input.Stock
		product.Status = enums.ProductStatusForStock(*input.Stock)
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]models.Product, error) {
	products, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return products, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	return nil
}

func validDiscount(discount decimal.Decimal, dt *enums.DiscountType, price decimal.Decimal) error {
	if discount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount must be non-negative")
	}
	if dt == nil {
		if discount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "discount type is required when discount is set")
		}
		return nil
	}
	if !dt.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if *dt == enums.DiscountTypePercentage && discount.GreaterThan(decimal.NewFromInt(100)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	return nil
}
