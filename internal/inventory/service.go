package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

// Line references one product (or product variant) and a quantity.
type Line struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// SoldOutRef identifies a catalog entry whose stock just reached zero.
type SoldOutRef struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
}

// Service is the inventory ledger: all stock reads and mutations the
// order workflow performs go through it.
type Service interface {
	CheckAvailability(ctx context.Context, lines []Line) error
	Deduct(ctx context.Context, tx *gorm.DB, lines []Line) ([]SoldOutRef, error)
	EvictFromCarts(ctx context.Context, refs []SoldOutRef)
}

type service struct {
	repo   Repository
	logger *logger.Logger
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logger: logg}, nil
}

// CheckAvailability reads current stock for each line and fails fast on
// the first shortfall, naming the item and the requested vs available
// quantities. A read-only pre-check: deduction re-validates.
func (s *service) CheckAvailability(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}

		name, available, err := s.currentStock(ctx, s.repo, line)
		if err != nil {
			return err
		}
		if available < line.Quantity {
			return insufficientStock(name, line.Quantity, available)
		}
	}
	return nil
}

// Deduct subtracts stock for every line inside the caller's transaction,
// re-validating each row with a guarded UPDATE. Any shortfall aborts the
// whole batch (the tx rollback undoes prior lines). Returns the refs
// that sold out so the caller can evict them from carts after commit.
func (s *service) Deduct(ctx context.Context, tx *gorm.DB, lines []Line) ([]SoldOutRef, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "deduct requires a transaction")
	}

	repo := s.repo.WithTx(tx)
	var soldOut []SoldOutRef

	for _, line := range lines {
		var (
			remaining int
			err       error
		)
		if line.VariantID != nil {
			remaining, err = repo.DeductVariantStock(ctx, *line.VariantID, line.Quantity)
		} else {
			remaining, err = repo.DeductProductStock(ctx, line.ProductID, line.Quantity)
		}

		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				name, available, lookupErr := s.currentStock(ctx, repo, line)
				if lookupErr != nil {
					return nil, lookupErr
				}
				return nil, insufficientStock(name, line.Quantity, available)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deduct stock")
		}

		if remaining <= 0 {
			soldOut = append(soldOut, SoldOutRef{ProductID: line.ProductID, VariantID: line.VariantID})
		}
	}

	return soldOut, nil
}

// EvictFromCarts removes sold-out entries from every user's cart. Runs
// outside the order transaction as short independent commits so the
// cross-user writes cannot deadlock a concurrent cart operation; a
// failed eviction is logged and skipped, never fatal.
func (s *service) EvictFromCarts(ctx context.Context, refs []SoldOutRef) {
	for _, ref := range refs {
		removed, err := s.repo.EvictCartItems(ctx, ref.ProductID, ref.VariantID)
		if err != nil {
			s.logger.Error(ctx, "cart eviction failed", err)
			continue
		}
		if removed > 0 {
			s.logger.Info(s.logger.WithFields(ctx, map[string]any{
				"product_id": ref.ProductID,
				"removed":    removed,
			}), "evicted sold-out item from carts")
		}
	}
}

func (s *service) currentStock(ctx context.Context, repo Repository, line Line) (string, int, error) {
	if line.VariantID != nil {
		variant, err := repo.FindVariant(ctx, *line.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", 0, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		return variant.Name, variant.Stock, nil
	}

	product, err := repo.FindProduct(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return "", 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.HasVariants() {
		return "", 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("product %q requires a variant selection", product.Name))
	}
	return product.Name, product.Stock, nil
}

func insufficientStock(name string, requested, available int) error {
	return pkgerrors.New(pkgerrors.CodeConflict,
		fmt.Sprintf("insufficient stock for %q: requested %d, available %d", name, requested, available))
}
