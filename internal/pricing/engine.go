package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bijaykarki/meromart-backend/pkg/db/models"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

type promoLookup interface {
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
}

// Engine resolves promo codes against the catalog on top of the pure
// pricing functions.
type Engine struct {
	promos promoLookup
}

// NewEngine builds a pricing engine backed by the promo store.
func NewEngine(promos promoLookup) (*Engine, error) {
	if promos == nil {
		return nil, fmt.Errorf("promo lookup required")
	}
	return &Engine{promos: promos}, nil
}

// ApplyPromo looks up the code and returns the subtotal-wide discount
// amount. Absent or inactive codes fail as validation errors with no
// effect on totals.
func (e *Engine) ApplyPromo(ctx context.Context, subtotal decimal.Decimal, code string) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil
	}

	promo, err := e.promos.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "invalid promo code")
		}
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load promo code")
	}
	if !promo.Active {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "invalid promo code")
	}

	return PromoDiscount(subtotal, promo.DiscountPercentage), nil
}
