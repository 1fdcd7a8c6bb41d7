package enums

import "fmt"

// ProductStatus is derived from remaining stock, never set directly.
type ProductStatus string

const (
	ProductStatusAvailable  ProductStatus = "available"
	ProductStatusLowStock   ProductStatus = "low_stock"
	ProductStatusOutOfStock ProductStatus = "out_of_stock"
)

// lowStockThreshold marks the stock level below which a product is flagged.
const lowStockThreshold = 5

var validProductStatuses = []ProductStatus{
	ProductStatusAvailable,
	ProductStatusLowStock,
	ProductStatusOutOfStock,
}

// String implements fmt.Stringer.
func (s ProductStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ProductStatus.
func (s ProductStatus) IsValid() bool {
	for _, candidate := range validProductStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ProductStatusForStock derives the status from a stock count.
func ProductStatusForStock(stock int) ProductStatus {
	switch {
	case stock <= 0:
		return ProductStatusOutOfStock
	case stock < lowStockThreshold:
		return ProductStatusLowStock
	default:
		return ProductStatusAvailable
	}
}

// ParseProductStatus converts raw input into a ProductStatus.
func ParseProductStatus(value string) (ProductStatus, error) {
	for _, candidate := range validProductStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product status %q", value)
}
