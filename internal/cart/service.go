package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/internal/pricing"
	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// AddItemInput is the payload for adding a product to the cart.
type AddItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// Service exposes the per-user cart staging area.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error)
	UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type service struct {
	repo     Repository
	products productLoader
}

// NewService wires a cart service with its repository and product loader.
func NewService(repo Repository, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &service{repo: repo, products: products}, nil
}

// Get fetches the user's cart, creating an empty one on first use.
func (s *service) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	cart, err := s.repo.FindOrCreateByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

// AddItem snapshots the product (or variant) into the cart at its
// current effective price. Adding the same product+variant again
// increments the existing line.
func (s *service) AddItem(ctx context.Context, userID uuid.UUID, input AddItemInput) (*models.Cart, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	snapshot, available, err := snapshotPrice(product, input.VariantID)
	if err != nil {
		return nil, err
	}

	// existing line for the same product+variant gets topped up
	for i := range cart.Items {
		item := &cart.Items[i]
		if item.ProductID != input.ProductID || !sameVariant(item.VariantID, input.VariantID) {
			continue
		}
		if item.Quantity+input.Quantity > available {
			return nil, insufficientStock(product.Name, item.Quantity+input.Quantity, available)
		}
		item.Quantity += input.Quantity
		if err := s.repo.UpdateItem(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		return s.refresh(ctx, userID, cart.ID)
	}

	if input.Quantity > available {
		return nil, insufficientStock(product.Name, input.Quantity, available)
	}

	item := &models.CartItem{
		CartID:      cart.ID,
		ProductID:   product.ID,
		VariantID:   input.VariantID,
		VendorID:    product.VendorID,
		Name:        product.Name,
		Description: product.Description,
		ImageURL:    product.ImageURL,
		Price:       snapshot,
		Quantity:    input.Quantity,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add cart item")
	}
	return s.refresh(ctx, userID, cart.ID)
}

// UpdateItemQuantity sets the line quantity.
func (s *service) UpdateItemQuantity(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.FindItem(ctx, cart.ID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	item.Quantity = quantity
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.refresh(ctx, userID, cart.ID)
}

// RemoveItem drops a line from the cart.
func (s *service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*models.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.FindItem(ctx, cart.ID, itemID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	if err := s.repo.DeleteItem(ctx, cart.ID, itemID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return s.refresh(ctx, userID, cart.ID)
}

// Clear empties the cart after a successful order. Accepts an optional
// transaction so the clear can commit with the order state.
func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	repo := s.repo.WithTx(tx)

	cart, err := repo.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if err := repo.Clear(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func (s *service) refresh(ctx context.Context, userID, cartID uuid.UUID) (*models.Cart, error) {
	if err := s.repo.RecomputeTotal(ctx, cartID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute cart total")
	}
	cart, err := s.repo.FindByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cart, nil
}

// snapshotPrice resolves the effective unit price and available stock
// for a product or one of its variants. Variant prices are used
// verbatim; product prices have the catalog discount applied.
func snapshotPrice(product *models.Product, variantID *uuid.UUID) (price decimal.Decimal, available int, err error) {
	if variantID != nil {
		for i := range product.Variants {
			v := &product.Variants[i]
			if v.ID == *variantID {
				return v.Price, v.Stock, nil
			}
		}
		return price, 0, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	if product.HasVariants() {
		return price, 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("product %q requires a variant selection", product.Name))
	}

	unit := pricing.LineSubtotal(pricing.Line{
		UnitPrice:    product.Price,
		Discount:     product.Discount,
		DiscountType: product.DiscountType,
		Quantity:     1,
	})
	return unit, product.Stock, nil
}

func sameVariant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func insufficientStock(name string, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeConflict,
		fmt.Sprintf("insufficient stock for %q: requested %d, available %d", name, requested, available))
}
