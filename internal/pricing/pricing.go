package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/pkg/enums"
)

var oneHundred = decimal.NewFromInt(100)

// Line is one order line as the pricing engine sees it. Variant-backed
// lines carry the variant price verbatim with no discount fields.
type Line struct {
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	DiscountType *enums.DiscountType
	Quantity     int
}

// LineSubtotal applies the line's discount rule to its unit price and
// multiplies by quantity. A flat discount never drives the price below
// zero.
func LineSubtotal(l Line) decimal.Decimal {
	price := l.UnitPrice

	if l.DiscountType != nil && l.Discount.IsPositive() {
		switch *l.DiscountType {
		case enums.DiscountTypePercentage:
			price = price.Mul(oneHundred.Sub(l.Discount)).Div(oneHundred)
		case enums.DiscountTypeFlat:
			price = price.Sub(l.Discount)
			if price.IsNegative() {
				price = decimal.Zero
			}
		}
	}

	return price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderSubtotal sums the line subtotals.
func OrderSubtotal(lines []Line) decimal.Decimal {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineSubtotal(l))
	}
	return subtotal
}

// PromoDiscount computes the subtotal-wide discount for a promo
// percentage.
func PromoDiscount(subtotal, discountPercentage decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(discountPercentage).Div(oneHundred)
}

// OrderTotal assembles the grand total, rounded to 2 places for
// persistence.
func OrderTotal(subtotal, promoDiscount, shippingFee, serviceCharge decimal.Decimal) decimal.Decimal {
	return subtotal.Sub(promoDiscount).Add(shippingFee).Add(serviceCharge).Round(2)
}
