package enums

import "fmt"

// PaymentMethod is the closed set of ways an order can be paid.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodEsewa  PaymentMethod = "esewa"
	PaymentMethodKhalti PaymentMethod = "khalti"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodOnline,
	PaymentMethodEsewa,
	PaymentMethodKhalti,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsGateway reports whether the method settles through an external gateway.
func (m PaymentMethod) IsGateway() bool {
	switch m {
	case PaymentMethodOnline, PaymentMethodEsewa, PaymentMethodKhalti:
		return true
	default:
		return false
	}
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
