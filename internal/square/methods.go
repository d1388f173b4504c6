package square

import "farmstand/backend/internal/domain"

// SupportedPaymentMethods lists the provider tenders the register offers.
var SupportedPaymentMethods = []string{
	"CARD",
	"CASH_APP_PAY",
	"APPLE_PAY",
	"GOOGLE_PAY",
	"SQUARE_GIFT_CARD",
	"VENMO",
}

var methodDisplayNames = map[string]string{
	"CARD":             "Credit/Debit Card",
	"CASH_APP_PAY":     "Cash App Pay",
	"APPLE_PAY":        "Apple Pay",
	"GOOGLE_PAY":       "Google Pay",
	"SQUARE_GIFT_CARD": "Square Gift Card",
	"VENMO":            "Venmo",
}

func MethodDisplayName(method string) string {
	if name, ok := methodDisplayNames[method]; ok {
		return name
	}
	return method
}

func PaymentMethodCatalog() []domain.PaymentMethodInfo {
	catalog := make([]domain.PaymentMethodInfo, 0, len(SupportedPaymentMethods))
	for _, method := range SupportedPaymentMethods {
		catalog = append(catalog, domain.PaymentMethodInfo{
			ID:   method,
			Name: MethodDisplayName(method),
		})
	}
	return catalog
}
