package enums

// PaymentMethod is how a shopper settles an order.
type PaymentMethod string

const (
	// PaymentMethodCOD orders are created unpaid and settled on delivery.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodPayHere orders exist only after the gateway confirms
	// payment.
	PaymentMethodPayHere PaymentMethod = "payhere"
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	return p == PaymentMethodCOD || p == PaymentMethodPayHere
}

// IsHosted reports whether checkout redirects to the gateway.
func (p PaymentMethod) IsHosted() bool {
	return p == PaymentMethodPayHere
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse[PaymentMethod]("payment method", value)
}
